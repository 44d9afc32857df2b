package state

import (
	"fmt"
	"path/filepath"
)

// NewSeenStore returns the SeenStore implementation selected by config for
// the given namespace.
func NewSeenStore(config Config, namespace string) (SeenStore, error) {
	switch config.Backend {
	case BackendSQLite:
		return NewSQLiteSeenStore(filepath.Join(config.StorageRoot, "seen.db"), namespace)
	case BackendRedis:
		if config.RedisConfig == nil {
			return nil, fmt.Errorf("redis backend selected but no redis configuration provided")
		}
		return NewRedisSeenStore(*config.RedisConfig, namespace)
	case BackendDapr:
		dc := DaprConfig{}
		if config.DaprConfig != nil {
			dc = *config.DaprConfig
		}
		return NewDaprSeenStore(dc, namespace)
	case BackendFile, "":
		return NewFileSeenStore(filepath.Join(config.StorageRoot, namespace+".txt"))
	default:
		return nil, fmt.Errorf("unknown seen-set backend %q", config.Backend)
	}
}
