// Package scan implements the single-device filesystem enumeration behind
// the fist command: a depth-first walk that emits one machine-parseable
// metadata record per object, percent-encoding names so the output stays
// byte-safe and colon-delimited regardless of what the filesystem holds.
//
// The walk never follows symlinks, never crosses onto another device, and
// treats almost every failure as a warning: one unreadable entry or subtree
// is skipped while the rest of the traversal continues.
package scan

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/karrick/godirwalk"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// DefaultMaxPathLen bounds accumulated path construction. It matches the
// usual PATH_MAX on the supported platforms; building a deeper path aborts
// the affected subtree rather than growing without limit.
const DefaultMaxPathLen = 4096

// ErrIncomplete is returned by Run when the walk finished but one or more
// entries or subtrees had to be skipped. The problems themselves have
// already been sent to the Reporter; callers decide whether best-effort
// completion is good enough (the fist CLI exits 0 unless --strict).
var ErrIncomplete = errors.New("traversal incomplete")

// Options configures a Walker.
type Options struct {
	// Output receives the record stream, one line per object.
	Output io.Writer

	// Reporter receives warnings. Defaults to a StreamReporter on stderr.
	Reporter Reporter

	// Logger traces the walk lifecycle at debug level. Defaults to a nop
	// logger; diagnostics meant for operators go through Reporter instead.
	Logger *zap.Logger

	// MaxPathLen bounds accumulated path construction. Defaults to
	// DefaultMaxPathLen.
	MaxPathLen int

	// Exclude holds doublestar patterns matched against the raw (non
	// encoded) path of a directory relative to the root. A matching
	// directory still gets its own record but is not descended into.
	Exclude []string
}

// Walker performs the depth-first, device-bounded walk. It is strictly
// single-threaded: records appear in the order the filesystem yields the
// entries, and no ordering beyond that is promised.
type Walker struct {
	out     *bufio.Writer
	rep     Reporter
	log     *zap.Logger
	maxPath int
	exclude []string

	rootDev uint64
	records int64
	buf     []byte // reused record build buffer
}

// NewWalker returns a Walker for the given options.
func NewWalker(opts Options) *Walker {
	if opts.Reporter == nil {
		opts.Reporter = &StreamReporter{W: os.Stderr}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxPathLen <= 0 {
		opts.MaxPathLen = DefaultMaxPathLen
	}
	return &Walker{
		out:     bufio.NewWriter(opts.Output),
		rep:     opts.Reporter,
		log:     opts.Logger,
		maxPath: opts.MaxPathLen,
		exclude: opts.Exclude,
	}
}

// Run walks the tree rooted at root and emits one record per object,
// starting with the root itself.
//
// The root's device identifier is captured from its snapshot and every
// directory must match it before the walk descends, so the traversal never
// crosses a mount point.
//
// A root that cannot be lstat'ed, or an output stream that stops accepting
// writes, is fatal and returned as an error. Everything else is reported
// through the Reporter and summarized as ErrIncomplete.
func (w *Walker) Run(root string) error {
	md, err := lstatMeta(root)
	if err != nil {
		return fmt.Errorf("unable to lstat(2) '%s': %w", root, err)
	}
	if !md.IsDir() {
		return fmt.Errorf("unable to change directory to '%s': %w", root, unix.ENOTDIR)
	}
	if err := unix.Access(root, unix.X_OK); err != nil {
		return fmt.Errorf("unable to change directory to '%s': %w", root, err)
	}
	w.rootDev = md.Dev
	w.log.Debug("starting walk",
		zap.String("root", root),
		zap.Uint64("device", w.rootDev),
		zap.Int("max_path", w.maxPath),
	)

	if err := w.writeRecord(root, root, "", md); err != nil {
		return fmt.Errorf("writing records: %w", err)
	}

	failed, err := w.walkDir(root, root, "")
	if err != nil {
		return err
	}
	if err := w.out.Flush(); err != nil {
		return fmt.Errorf("writing records: %w", err)
	}

	w.log.Debug("walk finished",
		zap.Int64("records", w.records),
		zap.Bool("complete", !failed),
	)
	if failed {
		w.rep.Warnf("a problem occurred while traversing '%s'", root)
		return ErrIncomplete
	}
	return nil
}

// walkDir lists one directory, emits a record per entry and recurses into
// qualifying subdirectories. dir is the real filesystem location, parent
// the accumulated raw path printed in records, and rel the path relative
// to the root used for exclude matching.
//
// The returned bool reports whether this branch had problems; they have
// already gone to the Reporter and must not stop siblings or ancestors.
// The returned error is fatal (output stream failure) and unwinds the
// whole walk.
func (w *Walker) walkDir(dir, parent, rel string) (bool, error) {
	scanner, err := godirwalk.NewScanner(dir)
	if err != nil {
		w.rep.Errno(err, "unable to open directory '%s'", parent)
		return true, nil
	}

	var failed bool
	for scanner.Scan() {
		name := scanner.Name()
		osPath := dir + "/" + name

		md, err := lstatMeta(osPath)
		if err != nil {
			// Entry gone or unreadable: skip it, keep the siblings.
			w.rep.Errno(err, "unable to lstat('%s/%s')", parent, name)
			continue
		}
		if err := w.writeRecord(osPath, name, parent, md); err != nil {
			return failed, fmt.Errorf("writing records: %w", err)
		}

		// Descend only into directories on the root's device. "." and ".."
		// are excluded by name, not mode, should a listing ever yield them.
		if !md.IsDir() || md.Dev != w.rootDev || name == "." || name == ".." {
			continue
		}
		if len(parent)+1+len(name) >= w.maxPath {
			w.rep.Warnf("name too long: '%s/%s'", parent, name)
			failed = true
			break
		}
		childRel := name
		if rel != "" {
			childRel = rel + "/" + name
		}
		if w.excluded(childRel) {
			w.log.Debug("pruned by exclude pattern", zap.String("path", childRel))
			continue
		}
		childFailed, err := w.walkDir(osPath, parent+"/"+name, childRel)
		if err != nil {
			return failed, err
		}
		failed = failed || childFailed
	}
	if err := scanner.Err(); err != nil {
		// Listing or close trouble after the entries we did get; the
		// records already emitted for this directory stand.
		w.rep.Errno(err, "error while reading directory '%s'", parent)
	}
	return failed, nil
}

func (w *Walker) excluded(rel string) bool {
	for _, pattern := range w.exclude {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}
