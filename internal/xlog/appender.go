package xlog

import (
	"bufio"
	"fmt"
	"os"
	"sync"
)

// Appender is the single writer of a v11 file: it writes the header on
// open, frames and flushes each record on Append, and writes the EOF
// marker on Close. Appends are synchronous — Append does not return until
// the frame has reached the OS (an explicit Sync additionally fsyncs).
type Appender struct {
	mu      sync.Mutex
	file    *os.File
	w       *bufio.Writer
	nextLSN int64
	sealed  bool
}

// CreateAppender creates a new file at path, writes its header, and
// prepares to assign LSNs starting at initialLSN (the file's signature).
func CreateAppender(path string, kind Kind, meta map[string]string, initialLSN int64) (*Appender, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, &IoError{Op: "create", Err: err}
	}

	w := bufio.NewWriter(f)
	if err := writeHeader(w, FileHeader{Kind: kind, Version: Version, Meta: meta}); err != nil {
		f.Close()
		return nil, &IoError{Op: "write header", Err: err}
	}

	return &Appender{
		file:    f,
		w:       w,
		nextLSN: initialLSN,
	}, nil
}

// NextLSN reports the LSN that will be assigned to the next appended
// record.
func (a *Appender) NextLSN() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nextLSN
}

// Append assigns the next monotonic LSN, frames (typ, cookie, payload)
// behind a ROW_MARKER with both CRCs computed, writes and flushes it, and
// returns the resulting record (with LSN and tm filled in). A non-nil
// error means the caller must treat the transaction as failed and roll
// back; Append does not partially advance nextLSN on failure.
func (a *Appender) Append(tm float64, typ uint16, cookie uint64, payload []byte) (Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sealed {
		return Record{}, fmt.Errorf("xlog: append to sealed file")
	}

	lsn := a.nextLSN
	body := encodeBody(typ, cookie, payload)

	frame := make([]byte, recordHeaderSize+len(body))
	byteOrder.PutUint32(frame[0:4], RowMarker)
	byteOrder.PutUint64(frame[8:16], uint64(lsn))
	byteOrder.PutUint64(frame[16:24], float64bits(tm))
	byteOrder.PutUint32(frame[24:28], uint32(len(body)))
	dataCRC := crc32c(body)
	byteOrder.PutUint32(frame[28:32], dataCRC)
	headerCRC := crc32c(frame[8:32])
	byteOrder.PutUint32(frame[4:8], headerCRC)
	copy(frame[32:], body)

	if _, err := a.w.Write(frame); err != nil {
		return Record{}, &IoError{Op: "append", Err: err}
	}
	if err := a.w.Flush(); err != nil {
		return Record{}, &IoError{Op: "flush", Err: err}
	}

	a.nextLSN++

	return Record{LSN: lsn, Tm: tm, Type: typ, Cookie: cookie, Body: payload}, nil
}

// Sync fsyncs the underlying file, making prior Appends durable across a
// power loss, not merely visible to other processes.
func (a *Appender) Sync() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.w.Flush(); err != nil {
		return &IoError{Op: "flush", Err: err}
	}
	if err := a.file.Sync(); err != nil {
		return &IoError{Op: "fsync", Err: err}
	}
	return nil
}

// Close writes the EOF marker, sealing the file, then closes it.
func (a *Appender) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sealed {
		return nil
	}

	var eof [4]byte
	byteOrder.PutUint32(eof[:], EOFMarker)
	if _, err := a.w.Write(eof[:]); err != nil {
		a.file.Close()
		return &IoError{Op: "write eof marker", Err: err}
	}
	if err := a.w.Flush(); err != nil {
		a.file.Close()
		return &IoError{Op: "flush", Err: err}
	}
	if err := a.file.Sync(); err != nil {
		a.file.Close()
		return &IoError{Op: "fsync", Err: err}
	}
	a.sealed = true
	return a.file.Close()
}
