package witness

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

func openJournal(c *qt.C) *os.File {
	f, err := os.OpenFile(filepath.Join(c.TempDir(), "journal"), os.O_RDWR|os.O_CREATE, 0o644)
	c.Assert(err, qt.IsNil)
	c.Cleanup(func() { f.Close() })
	return f
}

func TestAppendReadAll(t *testing.T) {
	c := qt.New(t)
	f := openJournal(c)

	want := []Interval{
		{PID: 1, Start: 10, End: 20},
		{PID: 2, Start: 20, End: 35, Recovered: true},
		{PID: 1, Start: 40, End: 41},
	}
	for _, iv := range want {
		c.Assert(Append(f, iv), qt.IsNil)
		// Appends land at the end whatever the current offset.
		_, err := f.Seek(0, io.SeekStart)
		c.Assert(err, qt.IsNil)
	}

	got, err := ReadAll(f)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, want)
}

func TestReadAllEmpty(t *testing.T) {
	c := qt.New(t)
	got, err := ReadAll(bytes.NewReader(nil))
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.HasLen, 0)
}

func TestReadAllSkipsTruncatedTail(t *testing.T) {
	c := qt.New(t)
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	c.Assert(enc.Encode(Interval{PID: 7, Start: 1, End: 2}), qt.IsNil)
	c.Assert(enc.Encode(Interval{PID: 8, Start: 3, End: 4}), qt.IsNil)

	for _, cut := range []int{1, headerLen - 1, headerLen + 1} {
		b := buf.Bytes()[:buf.Len()-cut]
		got, err := ReadAll(bytes.NewReader(b))
		c.Assert(err, qt.IsNil, qt.Commentf("cut %d", cut))
		c.Assert(got, qt.DeepEquals, []Interval{{PID: 7, Start: 1, End: 2}}, qt.Commentf("cut %d", cut))
	}
}

func TestDecodeRejectsHugeFrame(t *testing.T) {
	c := qt.New(t)
	var header [headerLen]byte
	binary.BigEndian.PutUint32(header[:], maxFrame+1)

	_, err := NewDecoder(bytes.NewReader(header[:])).Decode()
	c.Assert(errors.Is(err, ErrFrameTooLarge), qt.IsTrue, qt.Commentf("err: %v", err))

	_, err = ReadAll(bytes.NewReader(header[:]))
	c.Assert(errors.Is(err, ErrFrameTooLarge), qt.IsTrue)
}

func TestDecodeGarbage(t *testing.T) {
	c := qt.New(t)
	frame := []byte{0, 0, 0, 2, 0xc1, 0xc1}
	_, err := NewDecoder(bytes.NewReader(frame)).Decode()
	c.Assert(err, qt.ErrorMatches, `decoding interval: .*`)
}

func TestRecord(t *testing.T) {
	c := qt.New(t)
	f := openJournal(c)

	iv, err := Record(f, 5*time.Millisecond)
	c.Assert(err, qt.IsNil)
	c.Assert(iv.PID, qt.Equals, os.Getpid())
	c.Assert(iv.Duration() >= 5*time.Millisecond, qt.IsTrue, qt.Commentf("held %v", iv.Duration()))

	got, err := ReadAll(f)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, []Interval{iv})
}
