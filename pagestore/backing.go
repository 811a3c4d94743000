package pagestore

import (
	"os"

	"github.com/edsrzf/mmap-go"
)

// backing is the byte storage a Store maps its pages onto: either a real
// mmap'd file or an in-process buffer for anonymous/test stores.
type backing interface {
	Bytes() []byte
	Grow(newSize int) error
	Close() error
}

type fileBacking struct {
	f *os.File
	m mmap.MMap
}

func newFileBacking(path string) (*fileBacking, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	fb := &fileBacking{f: f}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() > 0 {
		if err := fb.remap(int(info.Size())); err != nil {
			f.Close()
			return nil, err
		}
	}
	return fb, nil
}

func (b *fileBacking) Bytes() []byte {
	if b.m == nil {
		return nil
	}
	return b.m
}

func (b *fileBacking) Grow(newSize int) error {
	if b.m != nil {
		if err := b.m.Unmap(); err != nil {
			return err
		}
		b.m = nil
	}
	if err := b.f.Truncate(int64(newSize)); err != nil {
		return err
	}
	return b.remap(newSize)
}

func (b *fileBacking) remap(size int) error {
	if size == 0 {
		return nil
	}
	m, err := mmap.MapRegion(b.f, size, mmap.RDWR, 0, 0)
	if err != nil {
		return err
	}
	b.m = m
	return nil
}

func (b *fileBacking) Close() error {
	var err error
	if b.m != nil {
		err = b.m.Unmap()
	}
	if cerr := b.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// memBacking is a plain growable buffer used by anonymous (path == "")
// stores, i.e. every unit test in this repository.
type memBacking struct {
	buf []byte
}

func newMemBacking() *memBacking { return &memBacking{} }

func (b *memBacking) Bytes() []byte { return b.buf }

func (b *memBacking) Grow(newSize int) error {
	if newSize <= len(b.buf) {
		return nil
	}
	grown := make([]byte, newSize)
	copy(grown, b.buf)
	b.buf = grown
	return nil
}

func (b *memBacking) Close() error { return nil }
