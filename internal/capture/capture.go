// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture records raw SmartAudio link traffic to CBOR files and reads
// it back for replay.
//
// A capture is a CBOR sequence: one Header followed by any number of Records.
package capture

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// FormatVersion is written into every header
const FormatVersion = 1

// Direction of a chunk relative to the host
type Direction string

const (
	DirRX Direction = "rx" // VTX to host
	DirTX Direction = "tx" // host to VTX
)

// Header opens a capture
type Header struct {
	Version int       `cbor:"1,keyasint"`
	ID      string    `cbor:"2,keyasint"`
	Started time.Time `cbor:"3,keyasint"`
	Source  string    `cbor:"4,keyasint"`
}

// Record is one chunk of bytes seen on the link
type Record struct {
	Time int64     `cbor:"1,keyasint"` // unix nanoseconds
	Dir  Direction `cbor:"2,keyasint"`
	Data []byte    `cbor:"3,keyasint"`
}

// Timestamp returns the record time
func (r Record) Timestamp() time.Time {
	return time.Unix(0, r.Time)
}

var encMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Writer appends records to a capture. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	enc    *cbor.Encoder
	header Header
	now    func() time.Time
}

// NewWriter writes a new header to w and returns a Writer for its records
func NewWriter(w io.Writer, source string) (*Writer, error) {
	cw := &Writer{
		enc: encMode.NewEncoder(w),
		now: time.Now,
	}
	cw.header = Header{
		Version: FormatVersion,
		ID:      uuid.New().String(),
		Started: cw.now(),
		Source:  source,
	}
	if err := cw.enc.Encode(cw.header); err != nil {
		return nil, fmt.Errorf("write capture header: %w", err)
	}
	return cw, nil
}

// Header returns the header written for this capture
func (w *Writer) Header() Header {
	return w.header
}

// Write records a chunk. Empty chunks are skipped.
func (w *Writer) Write(dir Direction, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	rec := Record{
		Time: w.now().UnixNano(),
		Dir:  dir,
		Data: append([]byte(nil), data...),
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("write capture record: %w", err)
	}
	return nil
}

// Reader reads a capture written by Writer
type Reader struct {
	dec    *cbor.Decoder
	header Header
}

// NewReader reads and validates the capture header
func NewReader(r io.Reader) (*Reader, error) {
	cr := &Reader{dec: cbor.NewDecoder(r)}
	if err := cr.dec.Decode(&cr.header); err != nil {
		return nil, fmt.Errorf("read capture header: %w", err)
	}
	if cr.header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported capture version %d", cr.header.Version)
	}
	return cr, nil
}

// Header returns the capture header
func (r *Reader) Header() Header {
	return r.header
}

// Next returns the next record, or io.EOF at the end of the capture
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("read capture record: %w", err)
	}
	return rec, nil
}

// Recorder wraps a connection and records everything read from and written to it
type Recorder struct {
	rw io.ReadWriter
	w  *Writer
}

// NewRecorder returns an io.ReadWriter that tees traffic on rw into w
func NewRecorder(rw io.ReadWriter, w *Writer) *Recorder {
	return &Recorder{rw: rw, w: w}
}

func (r *Recorder) Read(p []byte) (int, error) {
	n, err := r.rw.Read(p)
	if n > 0 {
		if werr := r.w.Write(DirRX, p[:n]); werr != nil && err == nil {
			err = werr
		}
	}
	return n, err
}

func (r *Recorder) Write(p []byte) (int, error) {
	n, err := r.rw.Write(p)
	if n > 0 {
		if werr := r.w.Write(DirTX, p[:n]); werr != nil && err == nil {
			err = werr
		}
	}
	return n, err
}

// Close closes the wrapped connection if it is closable
func (r *Recorder) Close() error {
	if c, ok := r.rw.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
