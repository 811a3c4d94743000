//go:build mdbx

package mdbxkv

import (
	"github.com/erigontech/mdbx-go/mdbx"

	"github.com/erigontech/tablestore/kvtree"
)

type cursor struct{ c *mdbx.Cursor }

func (x *cursor) get(op uint) (k, v []byte, err error) {
	k, v, err = x.c.Get(nil, nil, mdbx.CursorOp(op))
	if mdbx.IsNotFound(err) {
		return nil, nil, nil
	}
	return k, v, err
}

func (x *cursor) First() (k, v []byte, err error) { return x.get(mdbx.First) }
func (x *cursor) Next() (k, v []byte, err error)  { return x.get(mdbx.Next) }
func (x *cursor) Prev() (k, v []byte, err error)  { return x.get(mdbx.Prev) }
func (x *cursor) Last() (k, v []byte, err error)  { return x.get(mdbx.Last) }

func (x *cursor) Seek(seek []byte) (k, v []byte, err error) {
	k, v, err = x.c.Get(seek, nil, mdbx.SetRange)
	if mdbx.IsNotFound(err) {
		return nil, nil, nil
	}
	return k, v, err
}

func (x *cursor) SeekExact(key []byte) ([]byte, error) {
	_, v, err := x.c.Get(key, nil, mdbx.Set)
	if mdbx.IsNotFound(err) {
		return nil, nil
	}
	return v, err
}

func (x *cursor) Close() { x.c.Close() }

func (x *cursor) Put(k, v []byte) error { return x.c.Put(k, v, 0) }

func (x *cursor) Delete(k []byte) error {
	if _, _, err := x.c.Get(k, nil, mdbx.Set); err != nil {
		return err
	}
	return x.c.Del(0)
}

func (x *cursor) DeleteCurrent() error { return x.c.Del(0) }

func (x *cursor) SeekBothExact(key, value []byte) ([]byte, error) {
	_, v, err := x.c.Get(key, value, mdbx.GetBoth)
	if mdbx.IsNotFound(err) {
		return nil, nil
	}
	return v, err
}

func (x *cursor) SeekBothRange(key, value []byte) ([]byte, error) {
	_, v, err := x.c.Get(key, value, mdbx.GetBothRange)
	if mdbx.IsNotFound(err) {
		return nil, nil
	}
	return v, err
}

func (x *cursor) FirstDup() ([]byte, error) {
	_, v, err := x.c.Get(nil, nil, mdbx.FirstDup)
	if mdbx.IsNotFound(err) {
		return nil, nil
	}
	return v, err
}

func (x *cursor) NextDup() (k, v []byte, err error) { return x.get(mdbx.NextDup) }

func (x *cursor) LastDup() ([]byte, error) {
	_, v, err := x.c.Get(nil, nil, mdbx.LastDup)
	if mdbx.IsNotFound(err) {
		return nil, nil
	}
	return v, err
}

func (x *cursor) CountDuplicates() (uint64, error) {
	n, err := x.c.Count()
	return n, err
}

func (x *cursor) PutNoDupData(k, v []byte) error {
	err := x.c.Put(k, v, mdbx.NoDupData)
	if mdbx.IsKeyExists(err) {
		return nil
	}
	return err
}

func (x *cursor) DeleteCurrentDup() error { return x.c.Del(0) }

func (x *cursor) DeleteExact(k, v []byte) error {
	_, _, err := x.c.Get(k, v, mdbx.GetBoth)
	if mdbx.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return x.c.Del(0)
}

var _ kvtree.RwCursorDupSort = (*cursor)(nil)
