package config

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads the config file when it changes and reports a new symbol
// list to the callback. Other keys take effect on restart.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *zap.Logger
	symbols []string
}

// NewWatcher watches the directory of path so editors that replace the file
// are still noticed. current is the symbol list in effect.
func NewWatcher(path string, current []string, logger *zap.Logger) (*Watcher, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	return &Watcher{
		path:    path,
		watcher: fw,
		logger:  logger.Named("config-watcher"),
		symbols: append([]string(nil), current...),
	}, nil
}

// Run blocks until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context, onChange func(*Config)) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.reload(onChange)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload(onChange func(*Config)) {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("ignoring invalid config", zap.String("path", w.path), zap.Error(err))
		return
	}

	if slices.Equal(cfg.Symbols, w.symbols) {
		return
	}

	w.logger.Info("symbol list changed",
		zap.Strings("from", w.symbols),
		zap.Strings("to", cfg.Symbols),
	)
	w.symbols = cfg.Symbols
	onChange(cfg)
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}
