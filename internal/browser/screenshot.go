// internal/browser/screenshot.go
package browser

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/operant/internal/config"
)

const screenshotPrefix = "screenshot_"

// ScreenshotStore persists captures to disk with bounded retention. Identical
// consecutive captures are deduplicated by content hash so an idle page does
// not churn the directory. Retention runs every CleanupInterval saves and
// deletes the oldest files beyond MaxFiles.
type ScreenshotStore struct {
	cfg    config.ScreenshotConfig
	dir    string
	logger *zap.Logger

	mu       sync.Mutex
	saves    int
	lastHash string
	lastPath string
}

// NewScreenshotStore resolves the target directory and creates it when disk
// persistence is on.
func NewScreenshotStore(cfg config.ScreenshotConfig, logger *zap.Logger) (*ScreenshotStore, error) {
	dir, err := cfg.ResolvedDir()
	if err != nil {
		return nil, fmt.Errorf("resolving screenshot directory: %w", err)
	}
	s := &ScreenshotStore{
		cfg:    cfg,
		dir:    dir,
		logger: logger.Named("screenshot_store"),
	}
	if cfg.SaveToDisk {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating screenshot directory %q: %w", dir, err)
		}
	}
	return s, nil
}

// Dir reports the resolved on-disk directory.
func (s *ScreenshotStore) Dir() string { return s.dir }

// Save writes one capture and returns its path. It returns ("", nil) when
// persistence is disabled, and the previous path when duplicate suppression
// is on and the capture is byte-identical to the last one saved.
func (s *ScreenshotStore) Save(data []byte) (string, error) {
	if !s.cfg.SaveToDisk || len(data) == 0 {
		return "", nil
	}

	sum := md5.Sum(data)
	hash := hex.EncodeToString(sum[:])

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.CompareThreshold > 0 && hash == s.lastHash && s.lastPath != "" {
		s.logger.Debug("Skipping duplicate capture.", zap.String("path", s.lastPath))
		return s.lastPath, nil
	}

	name := fmt.Sprintf("%s%s_%s.%s",
		screenshotPrefix,
		time.Now().Format("20060102_150405"),
		hash[:8],
		s.cfg.Format,
	)
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing screenshot %q: %w", path, err)
	}

	s.lastHash = hash
	s.lastPath = path
	s.saves++
	s.logger.Debug("Saved screenshot.", zap.String("path", path), zap.Int("saves", s.saves))

	if s.cfg.CleanupInterval > 0 && s.saves%s.cfg.CleanupInterval == 0 {
		s.pruneLocked()
	}
	return path, nil
}

// pruneLocked deletes the oldest screenshots beyond the retention cap. The
// caller holds s.mu.
func (s *ScreenshotStore) pruneLocked() {
	if s.cfg.MaxFiles <= 0 {
		return
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn("Screenshot retention scan failed.", zap.Error(err))
		return
	}

	type aged struct {
		path string
		mod  time.Time
	}
	var files []aged
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), screenshotPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, aged{path: filepath.Join(s.dir, entry.Name()), mod: info.ModTime()})
	}
	if len(files) <= s.cfg.MaxFiles {
		return
	}

	sort.Slice(files, func(i, j int) bool { return files[i].mod.Before(files[j].mod) })
	for _, f := range files[:len(files)-s.cfg.MaxFiles] {
		if err := os.Remove(f.path); err != nil {
			s.logger.Warn("Failed to delete old screenshot.", zap.String("path", f.path), zap.Error(err))
			continue
		}
		s.logger.Debug("Deleted old screenshot.", zap.String("path", f.path))
	}
}
