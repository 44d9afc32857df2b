package state

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// FileSeenStore keeps identifiers in a flat append-only text file, one per
// line. The file is loaded once at open; later appends from other processes
// are not observed until the store is reopened, which is harmless because
// membership is add-only.
type FileSeenStore struct {
	path  string
	mutex sync.RWMutex
	known map[string]struct{}
}

// NewFileSeenStore opens (or creates) the seen-set file at path.
func NewFileSeenStore(path string) (*FileSeenStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create seen-set directory: %w", err)
	}

	s := &FileSeenStore{
		path:  path,
		known: make(map[string]struct{}),
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Debug().Str("path", path).Msg("Seen-set file does not exist yet, starting empty")
			return s, nil
		}
		return nil, fmt.Errorf("failed to open seen-set file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		s.known[line] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read seen-set file: %w", err)
	}

	log.Info().Str("path", path).Int("entries", len(s.known)).Msg("Loaded seen-set file")
	return s, nil
}

// Contains reports whether id is present.
func (s *FileSeenStore) Contains(_ context.Context, id string) (bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	_, ok := s.known[id]
	return ok, nil
}

// AddAll appends every id not yet present in a single write.
func (s *FileSeenStore) AddAll(_ context.Context, ids []string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var sb strings.Builder
	fresh := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := s.known[id]; ok {
			continue
		}
		s.known[id] = struct{}{}
		fresh = append(fresh, id)
		sb.WriteString(id)
		sb.WriteByte('\n')
	}
	if len(fresh) == 0 {
		return nil
	}

	file, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open seen-set file for append: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(sb.String()); err != nil {
		return fmt.Errorf("failed to append to seen-set file: %w", err)
	}

	log.Debug().Str("path", s.path).Int("added", len(fresh)).Msg("Appended to seen-set file")
	return nil
}

// Close is a no-op; the file is opened per append.
func (s *FileSeenStore) Close() error {
	return nil
}
