package state

import (
	"context"
)

// SeenStore is a durable set of identifiers shared across crawl and dispatch
// runs. Implementations must tolerate concurrent appends from independent
// sessions; membership checks are idempotent so at-least-once insertion is
// acceptable.
type SeenStore interface {
	// Contains reports whether id has been recorded before.
	Contains(ctx context.Context, id string) (bool, error)

	// AddAll records every id in ids.
	AddAll(ctx context.Context, ids []string) error

	// Close releases any underlying resources.
	Close() error
}

// Namespaces used by the runners. Each namespace is an independent set.
const (
	NamespaceSeen  = "seen"
	NamespaceActed = "acted"
)

// Backend selects the SeenStore implementation.
type Backend string

const (
	BackendFile   Backend = "file"
	BackendSQLite Backend = "sqlite"
	BackendRedis  Backend = "redis"
	BackendDapr   Backend = "dapr"
)

// Config contains the configuration for all store implementations.
type Config struct {
	Backend Backend

	// Base storage location for file and sqlite backends
	StorageRoot string

	RedisConfig *RedisConfig
	DaprConfig  *DaprConfig
}

// RedisConfig contains Redis-specific configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// DaprConfig contains Dapr-specific configuration
type DaprConfig struct {
	StateStoreName string
	GRPCPort       string
}
