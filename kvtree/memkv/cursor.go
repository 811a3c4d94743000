package memkv

import (
	"bytes"
)

func dupEqual(a, b dupItem) bool {
	return bytes.Equal(a.key, b.key) && bytes.Equal(a.val, b.val)
}

type plainCursor struct {
	t      *table
	curKey []byte
	valid  bool
}

func newPlainCursor(t *table) *plainCursor { return &plainCursor{t: t} }

func (c *plainCursor) First() (k, v []byte, err error) {
	var found *kvItem
	c.t.plain.Ascend(func(it kvItem) bool { f := it; found = &f; return false })
	return c.land(found)
}

func (c *plainCursor) Last() (k, v []byte, err error) {
	var found *kvItem
	c.t.plain.Descend(func(it kvItem) bool { f := it; found = &f; return false })
	return c.land(found)
}

func (c *plainCursor) Next() (k, v []byte, err error) {
	if !c.valid {
		return c.First()
	}
	var found *kvItem
	skip := true
	c.t.plain.AscendGreaterOrEqual(kvItem{key: c.curKey}, func(it kvItem) bool {
		if skip && bytes.Equal(it.key, c.curKey) {
			skip = false
			return true
		}
		f := it
		found = &f
		return false
	})
	return c.land(found)
}

func (c *plainCursor) Prev() (k, v []byte, err error) {
	if !c.valid {
		return c.Last()
	}
	var found *kvItem
	skip := true
	c.t.plain.DescendLessOrEqual(kvItem{key: c.curKey}, func(it kvItem) bool {
		if skip && bytes.Equal(it.key, c.curKey) {
			skip = false
			return true
		}
		f := it
		found = &f
		return false
	})
	return c.land(found)
}

func (c *plainCursor) Seek(seek []byte) (k, v []byte, err error) {
	var found *kvItem
	c.t.plain.AscendGreaterOrEqual(kvItem{key: seek}, func(it kvItem) bool { f := it; found = &f; return false })
	return c.land(found)
}

func (c *plainCursor) SeekExact(key []byte) ([]byte, error) {
	it, ok := c.t.plain.Get(kvItem{key: key})
	if !ok {
		c.valid = false
		return nil, nil
	}
	c.curKey, c.valid = it.key, true
	return it.val, nil
}

func (c *plainCursor) Close() {}

func (c *plainCursor) Put(k, v []byte) error {
	c.t.plain.ReplaceOrInsert(kvItem{key: append([]byte(nil), k...), val: append([]byte(nil), v...)})
	c.curKey, c.valid = k, true
	return nil
}

func (c *plainCursor) Delete(k []byte) error {
	c.t.plain.Delete(kvItem{key: k})
	if bytes.Equal(k, c.curKey) {
		c.valid = false
	}
	return nil
}

func (c *plainCursor) DeleteCurrent() error {
	if !c.valid {
		return nil
	}
	return c.Delete(c.curKey)
}

func (c *plainCursor) land(found *kvItem) ([]byte, []byte, error) {
	if found == nil {
		c.valid = false
		return nil, nil, nil
	}
	c.curKey, c.valid = found.key, true
	return found.key, found.val, nil
}

// dupCursor is a kvtree.RwCursorDupSort over a tidwall/btree DupSort table.
type dupCursor struct {
	t      *table
	curKey []byte
	curVal []byte
	valid  bool
}

func newDupCursor(t *table) *dupCursor { return &dupCursor{t: t} }

func (c *dupCursor) land(found *dupItem) ([]byte, []byte, error) {
	if found == nil {
		c.valid = false
		return nil, nil, nil
	}
	c.curKey, c.curVal, c.valid = found.key, found.val, true
	return found.key, found.val, nil
}

func (c *dupCursor) First() (k, v []byte, err error) {
	var found *dupItem
	c.t.dup.Scan(func(it dupItem) bool { f := it; found = &f; return false })
	return c.land(found)
}

func (c *dupCursor) Last() (k, v []byte, err error) {
	var found *dupItem
	c.t.dup.Reverse(func(it dupItem) bool { f := it; found = &f; return false })
	return c.land(found)
}

func (c *dupCursor) Next() (k, v []byte, err error) {
	if !c.valid {
		return c.First()
	}
	cur := dupItem{key: c.curKey, val: c.curVal}
	var found *dupItem
	skip := true
	c.t.dup.Ascend(cur, func(it dupItem) bool {
		if skip && dupEqual(it, cur) {
			skip = false
			return true
		}
		f := it
		found = &f
		return false
	})
	return c.land(found)
}

func (c *dupCursor) Prev() (k, v []byte, err error) {
	if !c.valid {
		return c.Last()
	}
	cur := dupItem{key: c.curKey, val: c.curVal}
	var found *dupItem
	skip := true
	c.t.dup.Descend(cur, func(it dupItem) bool {
		if skip && dupEqual(it, cur) {
			skip = false
			return true
		}
		f := it
		found = &f
		return false
	})
	return c.land(found)
}

func (c *dupCursor) Seek(seek []byte) (k, v []byte, err error) {
	var found *dupItem
	c.t.dup.Ascend(dupItem{key: seek}, func(it dupItem) bool { f := it; found = &f; return false })
	return c.land(found)
}

func (c *dupCursor) SeekExact(key []byte) ([]byte, error) {
	var found *dupItem
	c.t.dup.Ascend(dupItem{key: key}, func(it dupItem) bool {
		if !bytes.Equal(it.key, key) {
			return false
		}
		f := it
		found = &f
		return false
	})
	if found == nil {
		c.valid = false
		return nil, nil
	}
	c.curKey, c.curVal, c.valid = found.key, found.val, true
	return found.val, nil
}

func (c *dupCursor) SeekBothExact(key, value []byte) ([]byte, error) {
	it, ok := c.t.dup.Get(dupItem{key: key, val: value})
	if !ok {
		c.valid = false
		return nil, nil
	}
	c.curKey, c.curVal, c.valid = it.key, it.val, true
	return it.val, nil
}

func (c *dupCursor) SeekBothRange(key, value []byte) ([]byte, error) {
	var found *dupItem
	c.t.dup.Ascend(dupItem{key: key, val: value}, func(it dupItem) bool { f := it; found = &f; return false })
	if found == nil {
		c.valid = false
		return nil, nil
	}
	c.curKey, c.curVal, c.valid = found.key, found.val, true
	return found.val, nil
}

func (c *dupCursor) FirstDup() ([]byte, error) {
	if !c.valid {
		return nil, nil
	}
	var found *dupItem
	c.t.dup.Ascend(dupItem{key: c.curKey}, func(it dupItem) bool {
		if !bytes.Equal(it.key, c.curKey) {
			return false
		}
		f := it
		found = &f
		return false
	})
	if found == nil {
		return nil, nil
	}
	c.curVal = found.val
	return found.val, nil
}

func (c *dupCursor) NextDup() (k, v []byte, err error) {
	prev, wasValid := c.curKey, c.valid
	k, v, err = c.Next()
	if err != nil || k == nil {
		return nil, nil, err
	}
	if !wasValid || !bytes.Equal(k, prev) {
		return nil, nil, nil
	}
	return k, v, nil
}

func (c *dupCursor) LastDup() ([]byte, error) {
	if !c.valid {
		return nil, nil
	}
	key := c.curKey
	var last *dupItem
	c.t.dup.Ascend(dupItem{key: key}, func(it dupItem) bool {
		if !bytes.Equal(it.key, key) {
			return false
		}
		f := it
		last = &f
		return true
	})
	if last == nil {
		return nil, nil
	}
	c.curVal = last.val
	return last.val, nil
}

func (c *dupCursor) CountDuplicates() (uint64, error) {
	if !c.valid {
		return 0, nil
	}
	key := c.curKey
	var n uint64
	c.t.dup.Ascend(dupItem{key: key}, func(it dupItem) bool {
		if !bytes.Equal(it.key, key) {
			return false
		}
		n++
		return true
	})
	return n, nil
}

func (c *dupCursor) Close() {}

func (c *dupCursor) Put(k, v []byte) error {
	c.t.dup.Set(dupItem{key: append([]byte(nil), k...), val: append([]byte(nil), v...)})
	c.curKey, c.curVal, c.valid = k, v, true
	return nil
}

func (c *dupCursor) PutNoDupData(k, v []byte) error {
	if _, ok := c.t.dup.Get(dupItem{key: k, val: v}); ok {
		return nil
	}
	return c.Put(k, v)
}

func (c *dupCursor) Delete(k []byte) error {
	var victims []dupItem
	c.t.dup.Ascend(dupItem{key: k}, func(it dupItem) bool {
		if !bytes.Equal(it.key, k) {
			return false
		}
		victims = append(victims, it)
		return true
	})
	for _, v := range victims {
		c.t.dup.Delete(v)
	}
	if bytes.Equal(k, c.curKey) {
		c.valid = false
	}
	return nil
}

func (c *dupCursor) DeleteCurrent() error {
	if !c.valid {
		return nil
	}
	c.t.dup.Delete(dupItem{key: c.curKey, val: c.curVal})
	c.valid = false
	return nil
}

func (c *dupCursor) DeleteCurrentDup() error { return c.DeleteCurrent() }

func (c *dupCursor) DeleteExact(k, v []byte) error {
	c.t.dup.Delete(dupItem{key: k, val: v})
	if bytes.Equal(k, c.curKey) && bytes.Equal(v, c.curVal) {
		c.valid = false
	}
	return nil
}
