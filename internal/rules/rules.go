// Package rules holds the operator-maintained ignore list: domains the
// shield leaves alone entirely (no classification, no overlay).
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// File is the YAML shape of a rules file.
type File struct {
	IgnoreDomains []string `yaml:"ignore_domains"`
}

// Set is the active ignore list. A Set loaded from an empty path is inert:
// nothing matches and Watch is a no-op.
type Set struct {
	path string

	mu      sync.RWMutex
	domains map[string]struct{}
}

// Load reads and validates a rules file. An empty path yields an inert set.
func Load(path string) (*Set, error) {
	s := &Set{path: path, domains: make(map[string]struct{})}
	if path == "" {
		return s, nil
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the rules file and swaps the active set.
func (s *Set) Reload() error {
	if s.path == "" {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("rules: read %s: %w", s.path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("rules: parse %s: %w", s.path, err)
	}

	domains := make(map[string]struct{}, len(f.IgnoreDomains))
	for i, d := range f.IgnoreDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			return fmt.Errorf("rules: ignore_domains[%d] is empty", i)
		}
		domains[d] = struct{}{}
	}

	s.mu.Lock()
	s.domains = domains
	s.mu.Unlock()

	slog.Info("ignore rules loaded", "file", s.path, "domains", len(domains))
	return nil
}

// Ignored reports whether a domain is covered by the ignore list, either
// exactly or as a subdomain of a listed domain.
func (s *Set) Ignored(domain string) bool {
	domain = strings.ToLower(domain)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.domains[domain]; ok {
		return true
	}
	for d := range s.domains {
		if strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}

// Len returns the number of listed domains.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.domains)
}

// Watch reloads the set whenever the rules file changes. The parent
// directory is watched because editors often replace the file by rename.
// Blocks until ctx is done; callers run it in a goroutine.
func (s *Set) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("rules: watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("rules: watch %s: %w", dir, err)
	}

	target := filepath.Clean(s.path)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := s.Reload(); err != nil {
				slog.Warn("ignore rules reload failed, keeping previous set", "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("rules watcher error", "error", err)
		case <-ctx.Done():
			return nil
		}
	}
}
