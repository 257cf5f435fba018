package scan

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/karrick/godirwalk"
	"go.uber.org/zap"
)

// WatchOptions configures Watch. Output, Reporter, Logger and MaxPathLen
// carry the same meaning as in Options.
type WatchOptions struct {
	Output     io.Writer
	Reporter   Reporter
	Logger     *zap.Logger
	MaxPathLen int

	// Recursive watches every subdirectory on the root's device as well,
	// including directories created while watching.
	Recursive bool
}

// Watch monitors root and emits a fresh metadata record for every object
// an event names, in the same format Run uses. Removes and renames cannot
// be lstat'ed anymore and produce a diagnostic instead of a record. The
// call blocks until ctx is canceled.
func Watch(ctx context.Context, root string, opts WatchOptions) error {
	w := NewWalker(Options{
		Output:     opts.Output,
		Reporter:   opts.Reporter,
		Logger:     opts.Logger,
		MaxPathLen: opts.MaxPathLen,
	})

	md, err := lstatMeta(root)
	if err != nil {
		return fmt.Errorf("unable to lstat(2) '%s': %w", root, err)
	}
	if !md.IsDir() {
		return fmt.Errorf("'%s' is not a directory", root)
	}
	w.rootDev = md.Dev

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(root); err != nil {
		return fmt.Errorf("watching '%s': %w", root, err)
	}
	if opts.Recursive {
		w.addSubdirs(watcher, root)
	}
	w.log.Debug("watching", zap.String("root", root), zap.Bool("recursive", opts.Recursive))

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				w.rep.Warnf("'%s' is gone (%s)", ev.Name, ev.Op)
				continue
			}
			md, err := lstatMeta(ev.Name)
			if err != nil {
				w.rep.Errno(err, "unable to lstat('%s')", ev.Name)
				continue
			}
			if err := w.writeRecord(ev.Name, filepath.Base(ev.Name), filepath.Dir(ev.Name), md); err != nil {
				return fmt.Errorf("writing records: %w", err)
			}
			if err := w.out.Flush(); err != nil {
				return fmt.Errorf("writing records: %w", err)
			}
			if opts.Recursive && ev.Op&fsnotify.Create != 0 && md.IsDir() && md.Dev == w.rootDev {
				if err := watcher.Add(ev.Name); err != nil {
					w.rep.Errno(err, "unable to watch '%s'", ev.Name)
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.rep.Errno(err, "watch error on '%s'", root)
		}
	}
}

// addSubdirs registers every subdirectory on the root's device with the
// watcher. Failures are warnings; the directories we could reach are still
// watched.
func (w *Walker) addSubdirs(watcher *fsnotify.Watcher, dir string) {
	failed, _ := w.walkDirFn(dir, func(path string, md *Metadata) {
		if err := watcher.Add(path); err != nil {
			w.rep.Errno(err, "unable to watch '%s'", path)
		}
	})
	if failed {
		w.rep.Warnf("some directories under '%s' are not watched", dir)
	}
}

// walkDirFn is a record-less variant of walkDir used to seed the watcher:
// it applies fn to every qualifying subdirectory instead of emitting
// records, with the same device containment and skip rules.
func (w *Walker) walkDirFn(dir string, fn func(path string, md *Metadata)) (bool, error) {
	scanner, err := godirwalk.NewScanner(dir)
	if err != nil {
		w.rep.Errno(err, "unable to open directory '%s'", dir)
		return true, nil
	}
	var failed bool
	for scanner.Scan() {
		name := scanner.Name()
		osPath := dir + "/" + name
		md, err := lstatMeta(osPath)
		if err != nil {
			w.rep.Errno(err, "unable to lstat('%s')", osPath)
			continue
		}
		if !md.IsDir() || md.Dev != w.rootDev || name == "." || name == ".." {
			continue
		}
		if len(osPath) >= w.maxPath {
			w.rep.Warnf("name too long: '%s'", osPath)
			failed = true
			break
		}
		fn(osPath, md)
		childFailed, err := w.walkDirFn(osPath, fn)
		if err != nil {
			return failed, err
		}
		failed = failed || childFailed
	}
	if err := scanner.Err(); err != nil {
		w.rep.Errno(err, "error while reading directory '%s'", dir)
	}
	return failed, nil
}
