package server

import "sync"

// bufferProvider hands out read scratch buffers. The pooled variant
// recycles buffers across reads, the plain variant allocates per read and
// lets the GC take them.
type bufferProvider interface {
	Get() []byte
	Put(b []byte)
}

type pooledBuffers struct {
	pool sync.Pool
}

func newPooledBuffers() *pooledBuffers {
	return &pooledBuffers{pool: sync.Pool{
		New: func() any { return make([]byte, readChunkSize) },
	}}
}

func (p *pooledBuffers) Get() []byte  { return p.pool.Get().([]byte) }
func (p *pooledBuffers) Put(b []byte) { p.pool.Put(b[:readChunkSize]) }

type heapBuffers struct{}

func (heapBuffers) Get() []byte { return make([]byte, readChunkSize) }
func (heapBuffers) Put([]byte)  {}
