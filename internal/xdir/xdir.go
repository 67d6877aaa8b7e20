// Package xdir scans a directory of xlog files belonging to one kind
// (snapshots or write-ahead logs), extracts the monotonic signature
// encoded in each filename, and hands out readers by signature.
package xdir

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/joydb/joydb/internal/xlog"
)

// Dir tracks the sorted signatures of one file kind within a directory.
// Rescan replaces the stored signature list atomically.
type Dir struct {
	mu         sync.RWMutex
	path       string
	kind       xlog.Kind
	signatures []int64
}

// Open creates a Dir for path and kind without scanning yet; call Rescan to
// populate it.
func Open(path string, kind xlog.Kind) *Dir {
	return &Dir{path: path, kind: kind}
}

// Rescan lists path, keeps entries whose name matches "<signature><ext>"
// for this directory's kind, parses and sorts their signatures, and
// atomically installs the new list in place of whatever Rescan last found.
// A malformed name is skipped with a warning; it does not fail the scan.
func (d *Dir) Rescan() error {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return &ScanError{Path: d.path, Err: err}
	}

	var fresh []int64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		sig, ok := ParseSignature(entry.Name(), d.kind)
		if !ok {
			slog.Warn("xdir: skipping unrecognized file name", "dir", d.path, "name", entry.Name())
			continue
		}
		fresh = append(fresh, sig)
	}

	sort.Slice(fresh, func(i, j int) bool { return fresh[i] < fresh[j] })

	d.mu.Lock()
	d.signatures = fresh
	d.mu.Unlock()

	return nil
}

// Signatures returns a copy of the most recently scanned, sorted signature
// list.
func (d *Dir) Signatures() []int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]int64, len(d.signatures))
	copy(out, d.signatures)
	return out
}

// Last returns the highest known signature and true, or 0 and false if the
// directory is empty.
func (d *Dir) Last() (int64, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if len(d.signatures) == 0 {
		return 0, false
	}
	return d.signatures[len(d.signatures)-1], true
}

// FormatFilename returns the path a file with the given signature would
// have inside dir's directory, for this kind.
func (d *Dir) FormatFilename(sig int64) string {
	return FormatFilename(d.path, sig, d.kind)
}

// FormatFilename returns "<dirPath>/<signature, zero-padded to 20
// digits><extension>". ParseSignature(filepath.Base(FormatFilename(dirPath,
// sig, kind)), kind) always round-trips to (sig, true).
func FormatFilename(dirPath string, sig int64, kind xlog.Kind) string {
	return filepath.Join(dirPath, fmt.Sprintf("%020d%s", sig, xlog.Extension(kind)))
}

// ParseSignature extracts the signature from a bare filename (no
// directory component) if it has exactly one '.', the suffix from that dot
// onward matches kind's extension, and the prefix parses as a signed
// 64-bit decimal integer within (MinInt64, MaxInt64).
func ParseSignature(name string, kind xlog.Kind) (int64, bool) {
	if strings.Count(name, ".") != 1 {
		return 0, false
	}
	dot := strings.IndexByte(name, '.')
	prefix, suffix := name[:dot], name[dot:]

	if suffix != xlog.Extension(kind) {
		return 0, false
	}

	sig, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0, false
	}
	if sig == math.MinInt64 || sig == math.MaxInt64 {
		return 0, false
	}
	return sig, true
}

// OpenForRead opens the file with the given signature for reading,
// validating its header via xlog.
func (d *Dir) OpenForRead(sig int64) (*xlog.Cursor, error) {
	path := d.FormatFilename(sig)
	return xlog.OpenCursor(path, d.kind)
}

// CreateForAppend creates a new file named after sig and returns an
// Appender ready to write records starting at LSN sig.
func (d *Dir) CreateForAppend(sig int64, meta map[string]string) (*xlog.Appender, error) {
	path := d.FormatFilename(sig)
	return xlog.CreateAppender(path, d.kind, meta, sig)
}

// ScanError wraps a directory-listing failure during Rescan.
type ScanError struct {
	Path string
	Err  error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("xdir: failed to scan %s: %v", e.Path, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }
