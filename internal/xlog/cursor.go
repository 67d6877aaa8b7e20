package xlog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Cursor reads a v11 file record by record, resynchronizing past corrupted
// byte ranges by sliding a 4-byte window forward one byte at a time in
// search of the next ROW_MARKER.
type Cursor struct {
	file   *os.File
	path   string
	kind   Kind

	goodOffset int64
	rowCount   int
	eofRead    bool
	truncated  bool
}

// OpenCursor opens path, validates its header matches kind, and positions
// the cursor at the first record.
func OpenCursor(path string, kind Kind) (*Cursor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &IoError{Op: "open", Err: err}
	}

	br := bufio.NewReader(f)
	_, consumed, err := readHeader(br, kind)
	if err != nil {
		f.Close()
		var invalid *InvalidHeaderError
		if errors.As(err, &invalid) {
			invalid.Path = path
		}
		return nil, err
	}

	return &Cursor{
		file:       f,
		path:       path,
		kind:       kind,
		goodOffset: consumed,
	}, nil
}

// GoodOffset reports the byte offset just past the last successfully
// decoded record.
func (c *Cursor) GoodOffset() int64 { return c.goodOffset }

// RowCount reports the number of records successfully returned so far.
func (c *Cursor) RowCount() int { return c.rowCount }

// EOFRead reports whether the cursor has observed the file's EOF_MARKER,
// meaning the file was sealed.
func (c *Cursor) EOFRead() bool { return c.eofRead }

// Truncated reports whether the cursor gave up resynchronizing because it
// reached end of file without finding another row marker.
func (c *Cursor) Truncated() bool { return c.truncated }

// Next returns the next record, or (nil, nil) when there are no more rows
// to read right now — either because the file was cleanly sealed
// (EOFRead() becomes true), the writer simply hasn't appended further yet,
// or the tail is truncated (Truncated() becomes true). A non-nil error
// indicates an I/O failure distinct from any of those three dispositions.
func (c *Cursor) Next() (*Record, error) {
	if c.eofRead || c.truncated {
		return nil, nil
	}

	start := c.goodOffset
	pos := start
	window := make([]byte, 4)

	for {
		n, err := c.file.ReadAt(window, pos)
		if n < 4 {
			if err != nil && !errors.Is(err, io.EOF) {
				return nil, &IoError{Op: "read marker", Err: err}
			}
			return c.dispositionAtEOF(start, pos)
		}

		marker := byteOrder.Uint32(window)
		switch marker {
		case RowMarker:
			rec, newOffset, decErr := c.decodeRecordAt(pos)
			if decErr == nil {
				if skipped := pos - start; skipped > 0 {
					slog.Warn("xlog: resynchronized past corruption",
						"path", c.path, "skipped_bytes", skipped)
				}
				c.goodOffset = newOffset
				c.rowCount++
				return rec, nil
			}
			// CRC mismatch or short body: this marker was a false
			// positive (or its frame is corrupt); keep sliding.
			pos++
		case EOFMarker:
			if skipped := pos - start; skipped > 0 {
				slog.Warn("xlog: resynchronized past corruption before eof marker",
					"path", c.path, "skipped_bytes", skipped)
			}
			c.eofRead = true
			c.goodOffset = pos + 4
			return nil, nil
		default:
			pos++
		}
	}
}

// dispositionAtEOF decides what a short read at pos means: if nothing has
// been skipped since start, the writer simply hasn't appended more data
// yet (no warning, not truncated). Otherwise a corrupted run ran all the
// way to end of file without ever finding a marker: the tail is
// truncated.
func (c *Cursor) dispositionAtEOF(start, pos int64) (*Record, error) {
	if pos == start {
		return nil, nil
	}
	c.truncated = true
	slog.Warn("xlog: truncated tail, no row marker found before end of file",
		"path", c.path, "skipped_bytes", pos-start)
	return nil, nil
}

// decodeRecordAt reads and validates the fixed 32-byte frame and body
// starting at pos. A non-nil error means the frame at pos is not a valid
// record (CRC mismatch, bad length, or short read) and resync should
// continue past it.
func (c *Cursor) decodeRecordAt(pos int64) (*Record, int64, error) {
	header := make([]byte, recordHeaderSize)
	n, err := c.file.ReadAt(header, pos)
	if n < recordHeaderSize {
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, 0, &IoError{Op: "read header", Err: err}
		}
		return nil, 0, fmt.Errorf("xlog: short record header at offset %d", pos)
	}

	wantHeaderCRC := byteOrder.Uint32(header[4:8])
	gotHeaderCRC := crc32c(header[8:32])
	if gotHeaderCRC != wantHeaderCRC {
		return nil, 0, fmt.Errorf("xlog: header crc mismatch at offset %d", pos)
	}

	lsn := int64(byteOrder.Uint64(header[8:16]))
	tm := float64frombits(byteOrder.Uint64(header[16:24]))
	length := byteOrder.Uint32(header[24:28])
	wantDataCRC := byteOrder.Uint32(header[28:32])

	if length > 64<<20 {
		return nil, 0, fmt.Errorf("xlog: implausible record length %d at offset %d", length, pos)
	}

	body := make([]byte, length)
	bn, err := c.file.ReadAt(body, pos+recordHeaderSize)
	if uint32(bn) < length {
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, 0, &IoError{Op: "read body", Err: err}
		}
		return nil, 0, fmt.Errorf("xlog: short record body at offset %d", pos)
	}

	gotDataCRC := crc32c(body)
	if gotDataCRC != wantDataCRC {
		return nil, 0, fmt.Errorf("xlog: data crc mismatch at offset %d", pos)
	}

	typ, cookie, payload, err := decodeBody(body)
	if err != nil {
		return nil, 0, err
	}

	rec := &Record{LSN: lsn, Tm: tm, Type: typ, Cookie: cookie, Body: payload}
	return rec, pos + recordHeaderSize + int64(length), nil
}

// Close seeks the underlying file back to GoodOffset, so a subsequent
// cursor (or the live Appender) picks up exactly where this one left off,
// then closes the file.
func (c *Cursor) Close() error {
	if _, err := c.file.Seek(c.goodOffset, io.SeekStart); err != nil {
		c.file.Close()
		return &IoError{Op: "seek", Err: err}
	}
	return c.file.Close()
}
