package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Overlay is the optional YAML file layered over the environment. Zero
// values leave the environment setting in place.
type Overlay struct {
	RateLimit struct {
		GuestLimit int `yaml:"guest_limit"`
	} `yaml:"rate_limit"`

	Audit struct {
		RetentionDays int `yaml:"retention_days"`
	} `yaml:"audit"`
}

// LoadOverlay reads an overlay file
func LoadOverlay(path string) (*Overlay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var overlay Overlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return &overlay, nil
}

// Apply copies the overlay's non-zero settings into cfg
func (o *Overlay) Apply(cfg *Config) {
	if o.RateLimit.GuestLimit > 0 {
		cfg.RateLimit.Guest.Limit = o.RateLimit.GuestLimit
	}
	if o.Audit.RetentionDays > 0 {
		cfg.Audit.Retention.RetentionDays = o.Audit.RetentionDays
	}
}

// OverlayWatcher reloads an overlay file whenever it changes
type OverlayWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	logger   logrus.FieldLogger
	onChange func(*Overlay)
	done     chan struct{}
}

// WatchOverlay calls onChange with the reloaded overlay after each write to
// path. The parent directory is watched so editors that replace the file
// are picked up. A file that fails to parse is logged and skipped.
func WatchOverlay(path string, logger logrus.FieldLogger, onChange func(*Overlay)) (*OverlayWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	path = filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}

	w := &OverlayWatcher{
		path:     path,
		watcher:  watcher,
		logger:   logger.WithField("overlay", path),
		onChange: onChange,
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *OverlayWatcher) loop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			overlay, err := LoadOverlay(w.path)
			if err != nil {
				w.logger.WithError(err).Warn("Config overlay reload failed")
				continue
			}
			w.logger.Info("Config overlay reloaded")
			w.onChange(overlay)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("Config overlay watcher error")
		}
	}
}

// Close stops watching and waits for the watch loop to exit
func (w *OverlayWatcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}
