package rag

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/relocato/assistant/internal/logging"
)

// SeedDocument is one knowledge entry in a seed file.
type SeedDocument struct {
	Category string `yaml:"category"`
	Title    string `yaml:"title"`
	Content  string `yaml:"content"`
}

type seedFile struct {
	Documents []SeedDocument `yaml:"documents"`
}

// SeedKnowledgeDir loads every *.yaml/*.yml file in dir and upserts its
// documents into the knowledge corpus. Returns the number of documents
// loaded. A missing directory is not an error.
func (s *Store) SeedKnowledgeDir(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read knowledge directory: %w", err)
	}

	total := 0
	for _, entry := range entries {
		if entry.IsDir() || !isSeedFile(entry.Name()) {
			continue
		}
		n, err := s.seedFile(ctx, filepath.Join(dir, entry.Name()))
		if err != nil {
			return total, err
		}
		total += n
	}
	logging.Get(logging.CategoryRAG).Info("Seeded %d knowledge documents from %s", total, dir)
	return total, nil
}

func (s *Store) seedFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	count := 0
	for _, doc := range file.Documents {
		if doc.Category == "" || doc.Title == "" || doc.Content == "" {
			logging.Get(logging.CategoryRAG).Warn("Skipping incomplete document in %s (title=%q)", path, doc.Title)
			continue
		}
		if err := s.AddKnowledge(ctx, doc.Category, doc.Title, doc.Content); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func isSeedFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// WatchKnowledgeDir reloads seed files when they change on disk. Blocks
// until ctx is cancelled; run it in a goroutine.
func (s *Store) WatchKnowledgeDir(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	log := logging.Get(logging.CategoryRAG)
	log.Info("Watching knowledge directory %s", dir)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !isSeedFile(event.Name) {
				continue
			}
			if n, err := s.seedFile(ctx, event.Name); err != nil {
				log.Warn("Failed to reload %s: %v", event.Name, err)
			} else {
				log.Info("Reloaded %d documents from %s", n, event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("Watcher error: %v", err)
		}
	}
}
