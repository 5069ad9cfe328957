// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterReader(t *testing.T) {
	var buf bytes.Buffer

	w, err := NewWriter(&buf, "/dev/ttyUSB0")
	require.NoError(t, err)
	_, err = uuid.Parse(w.Header().ID)
	require.NoError(t, err)

	require.NoError(t, w.Write(DirTX, []byte{0xAA, 0x55, 0x03, 0x00, 0x9F}))
	require.NoError(t, w.Write(DirRX, nil))
	require.NoError(t, w.Write(DirRX, []byte{0xAA, 0x55, 0x03, 0x03, 0x00, 0x01, 0x4A}))

	r, err := NewReader(&buf)
	require.NoError(t, err)

	h := r.Header()
	assert.Equal(t, w.Header().ID, h.ID)
	assert.Equal(t, "/dev/ttyUSB0", h.Source)
	assert.True(t, w.Header().Started.Equal(h.Started))

	rec, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, DirTX, rec.Dir)
	assert.Equal(t, []byte{0xAA, 0x55, 0x03, 0x00, 0x9F}, rec.Data)
	assert.WithinDuration(t, time.Now(), rec.Timestamp(), time.Minute)

	rec, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, DirRX, rec.Dir)
	assert.Len(t, rec.Data, 7)

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestWriter_CopiesData(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, "test")
	require.NoError(t, err)

	data := []byte{0x01, 0x02}
	require.NoError(t, w.Write(DirRX, data))
	data[0] = 0xFF

	r, err := NewReader(&buf)
	require.NoError(t, err)
	rec, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, rec.Data)
}

func TestNewReader_Invalid(t *testing.T) {
	_, err := NewReader(bytes.NewReader([]byte{0xFF, 0x00}))
	assert.Error(t, err)

	_, err = NewReader(bytes.NewReader(nil))
	assert.Error(t, err)
}

// loopback echoes writes back on the next read
type loopback struct {
	bytes.Buffer
}

func TestRecorder(t *testing.T) {
	var capBuf bytes.Buffer
	w, err := NewWriter(&capBuf, "loopback")
	require.NoError(t, err)

	rec := NewRecorder(&loopback{}, w)
	_, err = rec.Write([]byte{0xAA, 0x55})
	require.NoError(t, err)

	p := make([]byte, 8)
	n, err := rec.Read(p)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, rec.Close())

	r, err := NewReader(&capBuf)
	require.NoError(t, err)

	var dirs []Direction
	for {
		record, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		dirs = append(dirs, record.Dir)
	}
	assert.Equal(t, []Direction{DirTX, DirRX}, dirs)
}
