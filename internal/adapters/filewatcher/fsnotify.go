// Package filewatcher provides file system monitoring adapters.
// Clean Architecture: Adapter implementing ports.FileWatcher.
package filewatcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/0xcro3dile/boardsearch-go/internal/domain/entities"
	"github.com/0xcro3dile/boardsearch-go/internal/domain/ports"
)

// FSNotifyWatcher implements ports.FileWatcher using fsnotify.
// The whole tree below the watched directory is monitored; folders created
// later are added as they appear.
type FSNotifyWatcher struct {
	watcher    *fsnotify.Watcher
	extensions []string // File extensions to watch (e.g., ".jpg", ".png")
}

// NewFSNotifyWatcher creates a new file watcher. Nil extensions select the
// corpus image formats.
func NewFSNotifyWatcher(extensions []string) (*FSNotifyWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if len(extensions) == 0 {
		extensions = append([]string(nil), entities.ImageExtensions...)
	}

	return &FSNotifyWatcher{
		watcher:    w,
		extensions: extensions,
	}, nil
}

// Watch starts monitoring the directory tree and emits events.
func (w *FSNotifyWatcher) Watch(ctx context.Context, dir string) (<-chan ports.FileEvent, error) {
	if err := w.addTree(dir); err != nil {
		return nil, err
	}

	events := make(chan ports.FileEvent, 100)

	go func() {
		defer close(events)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Create == fsnotify.Create && isDir(event.Name) {
					if err := w.addTree(event.Name); err != nil {
						logrus.WithError(err).WithField("dir", event.Name).Warn("Could not watch new folder")
					}
					continue
				}
				if !w.isWatchedExtension(event.Name) {
					continue
				}

				var op ports.FileOperation
				switch {
				case event.Op&fsnotify.Create == fsnotify.Create:
					op = ports.FileCreated
				case event.Op&fsnotify.Write == fsnotify.Write:
					op = ports.FileModified
				case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
					op = ports.FileDeleted
				default:
					continue
				}

				select {
				case events <- ports.FileEvent{Path: event.Name, Operation: op}:
				case <-ctx.Done():
					return
				}
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				logrus.WithError(err).Warn("File watcher error")
			}
		}
	}()

	return events, nil
}

// Stop stops the watcher.
func (w *FSNotifyWatcher) Stop() error {
	return w.watcher.Close()
}

// addTree watches root and every folder below it.
func (w *FSNotifyWatcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		return w.watcher.Add(path)
	})
}

// isWatchedExtension checks if the file has a watched extension.
func (w *FSNotifyWatcher) isWatchedExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range w.extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
