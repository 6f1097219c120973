package filewatch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// ErrModified is the cause of contexts canceled by file modification.
var ErrModified = errors.New("file is modified")

// UntilModified returns a context that is canceled
// when one of files is modified (= written, created, removed, or renamed).
//
// Directories containing the files are watched, so replacing a file by renaming
// another onto it (as editors and mounted ConfigMaps do) is also a modification.
// Changes of other files in the directories are ignored.
//
// # Args
//
// - ctx: context.Context
//
// - files ...string: paths of files to be watched.
//
// # Returns
//
// - context.Context: context that is canceled when one of files is modified.
// Its context.Cause wraps ErrModified.
//
// - context.CancelFunc: cancel function. It stops watching.
//
// - error: error caused when it fails to start watching files.
// If error is not nil, both of the the context and the cancel function are nil.
func UntilModified(ctx context.Context, files ...string) (context.Context, context.CancelFunc, error) {
	targets := map[string]struct{}{}
	dirs := map[string]struct{}{}
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, nil, err
		}
		targets[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}
	for d := range dirs {
		if err := w.Add(d); err != nil {
			w.Close()
			return nil, nil, err
		}
	}

	cctx, cancel := context.WithCancelCause(ctx)
	go func() {
		defer w.Close()

		for {
			select {
			case <-cctx.Done():
				return
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				cancel(fmt.Errorf("%w: watcher failed: %w", ErrModified, err))
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Op == fsnotify.Chmod {
					continue
				}
				name, err := filepath.Abs(event.Name)
				if err != nil {
					continue
				}
				if _, ok := targets[name]; !ok {
					continue
				}
				cancel(fmt.Errorf("%w: %s (%s)", ErrModified, event.Name, event.Op.String()))
				return
			}
		}
	}()

	return cctx, func() { cancel(nil) }, nil
}
