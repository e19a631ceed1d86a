package witness

import (
	"bytes"
	"sync"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestFramePoolConcurrent(t *testing.T) {
	c := qt.New(t)
	pool := newFramePool(64, 4)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				buf := pool.get()
				if len(buf) != 64 {
					c.Errorf("got buffer of length %d, want 64", len(buf))
					return
				}
				buf[0] = byte(j)
				pool.put(buf)
			}
		}()
	}
	wg.Wait()
}

func TestFramePoolDropsForeignBuffers(t *testing.T) {
	c := qt.New(t)
	pool := newFramePool(64, 2)

	a, b := pool.get(), pool.get()
	pool.put(a)
	pool.put(b)
	// Full pool, and the wrong size anyway.
	pool.put(make([]byte, 128))
	c.Assert(len(pool.frames), qt.Equals, 2)

	pool.get()
	pool.get()
	pool.put(make([]byte, 128))
	c.Assert(len(pool.frames), qt.Equals, 0)

	// A dry pool allocates.
	c.Assert(cap(pool.get()), qt.Equals, 64)
}

func TestEncodeConcurrent(t *testing.T) {
	c := qt.New(t)
	// Encoders share the package pool; frames must not bleed into each
	// other.
	var wg sync.WaitGroup
	out := make([]bytes.Buffer, 20)
	for i := range out {
		wg.Add(1)
		go func() {
			defer wg.Done()
			enc := NewEncoder(&out[i])
			for j := 0; j < 50; j++ {
				if err := enc.Encode(Interval{PID: i, Start: int64(j), End: int64(j + 1)}); err != nil {
					c.Errorf("encode: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	for i := range out {
		ivs, err := ReadAll(bytes.NewReader(out[i].Bytes()))
		c.Assert(err, qt.IsNil)
		c.Assert(ivs, qt.HasLen, 50)
		for j, iv := range ivs {
			c.Assert(iv, qt.Equals, Interval{PID: i, Start: int64(j), End: int64(j + 1)})
		}
	}
}
