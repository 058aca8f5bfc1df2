package storage

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/voxdial/voxdial-core/internal/config"
)

// LocalStore writes artifacts to a directory served by the runtime's HTTP
// server under /audio/. Files older than the retention window are swept
// periodically.
type LocalStore struct {
	dir       string
	publicURL string
	retention time.Duration
	log       *slog.Logger
	ticker    *time.Ticker
	done      chan struct{}
	wg        sync.WaitGroup
}

func NewLocalStore(cfg config.StorageConfig, publicURL string, log *slog.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	s := &LocalStore{
		dir:       cfg.Directory,
		publicURL: strings.TrimSuffix(publicURL, "/"),
		retention: time.Duration(cfg.RetentionMinutes) * time.Minute,
		log:       log.With(slog.String("component", "local-storage")),
		done:      make(chan struct{}),
	}
	if s.retention > 0 {
		s.ticker = time.NewTicker(s.retention)
		s.wg.Add(1)
		go s.runSweep()
	}
	return s, nil
}

// Dir returns the directory artifacts are written to.
func (s *LocalStore) Dir() string { return s.dir }

func (s *LocalStore) Save(_ context.Context, name, _ string, data []byte) (string, error) {
	if name == "" || strings.Contains(name, "/") || strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return s.publicURL + "/audio/" + url.PathEscape(name), nil
}

func (s *LocalStore) Close() error {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.done)
	s.wg.Wait()
	return nil
}

func (s *LocalStore) runSweep() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case <-s.ticker.C:
			if err := s.Sweep(); err != nil {
				s.log.Warn("artifact sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Sweep deletes artifacts older than the retention window.
func (s *LocalStore) Sweep() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	cutoff := time.Now().Add(-s.retention)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
				s.log.Warn("failed to delete expired artifact",
					slog.String("name", entry.Name()), slog.String("error", err.Error()))
				continue
			}
			s.log.Info("deleted expired artifact", slog.String("name", entry.Name()))
		}
	}
	return nil
}
