// Package summary aggregates fist record streams into per-owner usage
// reports. It is the consumer-side counterpart of the scanner: records are
// parsed back out of the colon-delimited format, paths are percent-decoded,
// and the result is a JSON report suitable for billing or capacity review.
package summary

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/bits"
	"os/user"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/fsaudit/fist/internal/scan"
)

// recordFields is the number of colon-separated fields in one record.
const recordFields = 10

// Options configures Parse.
type Options struct {
	// Histogram additionally accumulates a power-of-two file size
	// distribution across all owners.
	Histogram bool

	// Now anchors future-mtime scrubbing; zero means time.Now(). Any
	// modification time more than a day past Now is treated as Now.
	Now time.Time
}

// OwnerStats aggregates the objects belonging to one owner.
type OwnerStats struct {
	Objects  int64 `json:"objects"`
	Files    int64 `json:"files"`
	Dirs     int64 `json:"directories"`
	Symlinks int64 `json:"symlinks"`
	Other    int64 `json:"other"`

	TotalSize   int64 `json:"total_size"`
	TotalBlocks int64 `json:"total_blocks_kib"`
	MinSize     int64 `json:"min_file_size"`
	MaxSize     int64 `json:"max_file_size"`

	MinNameLen int `json:"min_name_length"`
	MaxNameLen int `json:"max_name_length"`
	MinDepth   int `json:"min_depth"`
	MaxDepth   int `json:"max_depth"`

	LastMtime int64 `json:"last_mtime"`
}

// Report is the aggregation result for one record stream.
type Report struct {
	Generated time.Time              `json:"generated"`
	Records   int64                  `json:"records"`
	Skipped   int64                  `json:"skipped"`
	Owners    map[string]*OwnerStats `json:"owners"`

	// Histogram maps a power-of-two bucket label ("<= 4096") to the number
	// of regular files whose size falls in it. Nil unless requested.
	Histogram map[string]int64 `json:"histogram,omitempty"`
}

// Parse reads fist records from r and aggregates them. Lines that do not
// parse as records are counted in Skipped rather than failing the whole
// report; a record stream is best-effort by construction.
func Parse(r io.Reader, opts Options) (*Report, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	cutoff := now.Add(24 * time.Hour).Unix()

	rep := &Report{
		Generated: now,
		Owners:    make(map[string]*OwnerStats),
	}
	if opts.Histogram {
		rep.Histogram = make(map[string]int64)
	}

	names := newNameCache()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		rec, err := parseRecord(line)
		if err != nil {
			rep.Skipped++
			continue
		}
		rep.Records++

		mtime := rec.mtime
		if mtime > cutoff {
			mtime = now.Unix()
		}

		owner := names.owner(rec.uid, rec.gid)
		st := rep.Owners[owner]
		if st == nil {
			st = &OwnerStats{
				MinSize:    math.MaxInt64,
				MinNameLen: math.MaxInt32,
				MinDepth:   math.MaxInt32,
			}
			rep.Owners[owner] = st
		}
		st.Objects++
		st.TotalBlocks += rec.blocks
		if mtime > st.LastMtime {
			st.LastMtime = mtime
		}

		switch rec.mode & unix.S_IFMT {
		case unix.S_IFREG:
			st.Files++
			st.TotalSize += rec.size
			if rec.size < st.MinSize {
				st.MinSize = rec.size
			}
			if rec.size > st.MaxSize {
				st.MaxSize = rec.size
			}
			if rep.Histogram != nil {
				rep.Histogram[bucket(rec.size)]++
			}
		case unix.S_IFDIR:
			st.Dirs++
		case unix.S_IFLNK:
			st.Symlinks++
		default:
			st.Other++
		}

		l := len(rec.path)
		d := strings.Count(rec.path, "/") + 1
		if l < st.MinNameLen {
			st.MinNameLen = l
		}
		if l > st.MaxNameLen {
			st.MaxNameLen = l
		}
		if d < st.MinDepth {
			st.MinDepth = d
		}
		if d > st.MaxDepth {
			st.MaxDepth = d
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading records: %w", err)
	}

	// Owners with no regular files keep zeroed size extrema.
	for _, st := range rep.Owners {
		if st.Files == 0 {
			st.MinSize = 0
		}
	}
	return rep, nil
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteHuman writes a short per-owner footer with grouped digits and
// binary-prefix sizes.
func (r *Report) WriteHuman(w io.Writer) error {
	p := message.NewPrinter(language.English)
	for owner, st := range r.Owners {
		if _, err := p.Fprintf(w, "%s: %d objects (%d files, %d dirs, %d symlinks), %s used\n",
			owner, st.Objects, st.Files, st.Dirs, st.Symlinks, humanSize(st.TotalBlocks*1024)); err != nil {
			return err
		}
	}
	_, err := p.Fprintf(w, "total: %d records, %d skipped\n", r.Records, r.Skipped)
	return err
}

type record struct {
	blocks int64
	mode   uint32
	uid    uint32
	gid    uint32
	size   int64
	mtime  int64
	path   string
}

// parseRecord parses one output line of the scanner. The link target, when
// present, is split off the path field; the encoder guarantees a literal
// " -> " can only be the link separator since spaces in names are escaped.
func parseRecord(line string) (*record, error) {
	fields := strings.SplitN(line, ":", recordFields)
	if len(fields) != recordFields {
		return nil, fmt.Errorf("expected %d fields, got %d", recordFields, len(fields))
	}

	path := fields[9]
	if i := strings.Index(path, " -> "); i >= 0 {
		path = path[:i]
	}
	decoded, err := scan.Decode(path)
	if err != nil {
		return nil, err
	}

	rec := &record{path: decoded}
	if rec.blocks, err = strconv.ParseInt(fields[0], 10, 64); err != nil {
		return nil, err
	}
	mode, err := strconv.ParseUint(fields[1], 8, 32)
	if err != nil {
		return nil, err
	}
	rec.mode = uint32(mode)
	uid, err := strconv.ParseUint(fields[3], 10, 32)
	if err != nil {
		return nil, err
	}
	rec.uid = uint32(uid)
	gid, err := strconv.ParseUint(fields[4], 10, 32)
	if err != nil {
		return nil, err
	}
	rec.gid = uint32(gid)
	if rec.size, err = strconv.ParseInt(fields[5], 10, 64); err != nil {
		return nil, err
	}
	if rec.mtime, err = strconv.ParseInt(fields[6], 10, 64); err != nil {
		return nil, err
	}
	return rec, nil
}

// nameCache memoizes UID/GID resolution; unresolvable IDs render as "#<id>"
// so the report never fails on a stale passwd entry.
type nameCache struct {
	users  map[uint32]string
	groups map[uint32]string
}

func newNameCache() *nameCache {
	return &nameCache{
		users:  make(map[uint32]string),
		groups: make(map[uint32]string),
	}
}

func (c *nameCache) owner(uid, gid uint32) string {
	return c.user(uid) + ":" + c.group(gid)
}

func (c *nameCache) user(uid uint32) string {
	if name, ok := c.users[uid]; ok {
		return name
	}
	name := "#" + strconv.FormatUint(uint64(uid), 10)
	if u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10)); err == nil {
		name = u.Username
	}
	c.users[uid] = name
	return name
}

func (c *nameCache) group(gid uint32) string {
	if name, ok := c.groups[gid]; ok {
		return name
	}
	name := "#" + strconv.FormatUint(uint64(gid), 10)
	if g, err := user.LookupGroupId(strconv.FormatUint(uint64(gid), 10)); err == nil {
		name = g.Name
	}
	c.groups[gid] = name
	return name
}

// bucket returns the power-of-two histogram label for a file size.
func bucket(size int64) string {
	if size <= 0 {
		return "0"
	}
	return "<= " + strconv.FormatUint(1<<uint(bits.Len64(uint64(size-1))), 10)
}

var prefixes = []string{"", "Ki", "Mi", "Gi", "Ti", "Pi"}

// humanSize renders a byte count with IEC binary prefixes.
func humanSize(n int64) string {
	if n <= 0 {
		return strconv.FormatInt(n, 10) + " B"
	}
	idx := (bits.Len64(uint64(n)) - 1) / 10
	if idx >= len(prefixes) {
		idx = len(prefixes) - 1
	}
	return fmt.Sprintf("%d %sB", n>>(10*uint(idx)), prefixes[idx])
}
