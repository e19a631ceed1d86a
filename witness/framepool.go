package witness

// framePool is a bounded pool of fixed-size frame buffers shared by
// Encoder and Decoder.
type framePool struct {
	frames chan []byte
	size   int
}

func newFramePool(size, count int) *framePool {
	p := &framePool{
		frames: make(chan []byte, count),
		size:   size,
	}
	for i := 0; i < count; i++ {
		p.frames <- make([]byte, size)
	}
	return p
}

// get hands out a buffer of length size, allocating when the pool is dry.
func (p *framePool) get() []byte {
	select {
	case b := <-p.frames:
		return b[:p.size]
	default:
		return make([]byte, p.size)
	}
}

// put takes a buffer back. Buffers that grew past size while in use are
// dropped, as is anything offered to a full pool.
func (p *framePool) put(b []byte) {
	if cap(b) != p.size {
		return
	}
	select {
	case p.frames <- b[:p.size]:
	default:
	}
}
