// Package tier resolves a pilot's entitlement tier from a hashed identity.
// The table is process-wide, loaded from a YAML file maintained out of band
// and reloaded whenever that file changes.
package tier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// File is the on-disk tier table format
type File struct {
	// Pledges maps HashIdentity(email, name) to a tier label
	Pledges map[string]string `yaml:"pledges"`
}

// Table is a concurrency-safe hash to tier lookup
type Table struct {
	logger *slog.Logger

	mu    sync.RWMutex
	tiers map[string]string
}

// New creates an empty Table
func New(logger *slog.Logger) *Table {
	return &Table{
		logger: logger.With(slog.String("component", "tier-table")),
		tiers:  make(map[string]string),
	}
}

// HashIdentity returns the lookup key for a supporter: the hex SHA-256 of
// email followed by name
func HashIdentity(email, name string) string {
	sum := sha256.Sum256([]byte(email + name))
	return hex.EncodeToString(sum[:])
}

// CheckHash returns the tier recorded for hash
func (t *Table) CheckHash(hash string) (string, bool) {
	hash = strings.ToLower(strings.TrimSpace(hash))
	if hash == "" {
		return "", false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	label, ok := t.tiers[hash]
	return label, ok
}

// Len returns the number of entries in the table
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.tiers)
}

// Replace swaps in a new set of entries
func (t *Table) Replace(entries map[string]string) {
	tiers := make(map[string]string, len(entries))
	for hash, label := range entries {
		tiers[strings.ToLower(strings.TrimSpace(hash))] = label
	}
	t.mu.Lock()
	t.tiers = tiers
	t.mu.Unlock()
}

// Load reads the table from a YAML file. On error the previous entries stay.
func (t *Table) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read tier table: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse tier table %s: %w", path, err)
	}
	t.Replace(f.Pledges)

	t.logger.Info("tier table loaded",
		slog.String("path", path),
		slog.Int("entries", len(f.Pledges)),
	)
	return nil
}

// Watch reloads the table whenever path is written or replaced, until ctx
// is done. The parent directory is watched so atomic renames are seen.
func (t *Table) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	path = filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			if err := t.Load(path); err != nil {
				t.logger.Warn("tier table reload failed", slog.String("error", err.Error()))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			t.logger.Warn("tier table watch error", slog.String("error", err.Error()))
		}
	}
}
