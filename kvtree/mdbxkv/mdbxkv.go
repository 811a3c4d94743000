//go:build mdbx

// Package mdbxkv is the production kvtree backend, a thin pass-through onto
// github.com/erigontech/mdbx-go. It is built only with `-tags mdbx` (mdbx-go
// is a cgo binding to libmdbx and most development/test environments do not
// have the C library available); kvtree/memkv is the default backend for
// everything in this repository's own test suite.
package mdbxkv

import (
	"github.com/erigontech/mdbx-go/mdbx"

	"github.com/erigontech/tablestore/kvtree"
)

// Env opens an MDBX environment. One Env backs many short-lived Tx/RwTx,
// matching spec.md §5: a single writer transaction at a time, many
// concurrent readers.
type Env struct {
	env *mdbx.Env
}

// Open creates or opens the MDBX data file at path with maxTables named
// tables available.
func Open(path string, maxTables int) (*Env, error) {
	env, err := mdbx.NewEnv()
	if err != nil {
		return nil, err
	}
	if err := env.SetOption(mdbx.OptMaxDB, uint64(maxTables)); err != nil {
		env.Close()
		return nil, err
	}
	if err := env.Open(path, mdbx.NoSubdir, 0o644); err != nil {
		env.Close()
		return nil, err
	}
	return &Env{env: env}, nil
}

// Close closes the environment; all transactions must already be closed.
func (e *Env) Close() error { return e.env.Close() }

// View runs fn in a read-only transaction.
func (e *Env) View(fn func(tx kvtree.Tx) error) error {
	return e.env.View(func(txn *mdbx.Txn) error {
		return fn(&Tx{txn: txn, env: e.env})
	})
}

// Update runs fn in the single writer transaction, committing on a nil
// return and aborting otherwise.
func (e *Env) Update(fn func(tx kvtree.RwTx) error) error {
	return e.env.Update(func(txn *mdbx.Txn) error {
		return fn(&RwTx{Tx{txn: txn, env: e.env}})
	})
}

// Tx wraps a read-only *mdbx.Txn.
type Tx struct {
	txn *mdbx.Txn
	env *mdbx.Env
}

func (tx *Tx) dbi(table string) (mdbx.DBI, error) {
	return tx.txn.OpenDBI(table, 0, nil, nil)
}

func (tx *Tx) GetOne(table string, key []byte) ([]byte, error) {
	dbi, err := tx.dbi(table)
	if err != nil {
		return nil, err
	}
	v, err := tx.txn.Get(dbi, key)
	if mdbx.IsNotFound(err) {
		return nil, kvtree.ErrKeyNotFound
	}
	return v, err
}

func (tx *Tx) Cursor(table string) (kvtree.Cursor, error) {
	dbi, err := tx.dbi(table)
	if err != nil {
		return nil, err
	}
	c, err := tx.txn.OpenCursor(dbi)
	if err != nil {
		return nil, err
	}
	return &cursor{c: c}, nil
}

func (tx *Tx) CursorDupSort(table string) (kvtree.CursorDupSort, error) {
	dbi, err := tx.dbi(table)
	if err != nil {
		return nil, err
	}
	c, err := tx.txn.OpenCursor(dbi)
	if err != nil {
		return nil, err
	}
	return &cursor{c: c}, nil
}

// RwTx wraps a writable *mdbx.Txn.
type RwTx struct{ Tx }

func (tx *RwTx) CreateTable(table string, flags kvtree.TableFlags) error {
	var f uint = mdbx.Create
	if flags&kvtree.DupSort != 0 {
		f |= mdbx.DupSort
	}
	if flags&kvtree.DupFixed != 0 {
		f |= mdbx.DupFixed
	}
	_, err := tx.txn.OpenDBI(table, mdbx.DBIFlags(f), nil, nil)
	return err
}

func (tx *RwTx) Put(table string, key, value []byte) error {
	dbi, err := tx.dbi(table)
	if err != nil {
		return err
	}
	return tx.txn.Put(dbi, key, value, 0)
}

func (tx *RwTx) Delete(table string, key []byte) error {
	dbi, err := tx.dbi(table)
	if err != nil {
		return err
	}
	err = tx.txn.Del(dbi, key, nil)
	if mdbx.IsNotFound(err) {
		return nil
	}
	return err
}

func (tx *RwTx) RwCursor(table string) (kvtree.RwCursor, error) {
	dbi, err := tx.dbi(table)
	if err != nil {
		return nil, err
	}
	c, err := tx.txn.OpenCursor(dbi)
	if err != nil {
		return nil, err
	}
	return &cursor{c: c}, nil
}

func (tx *RwTx) RwCursorDupSort(table string) (kvtree.RwCursorDupSort, error) {
	dbi, err := tx.dbi(table)
	if err != nil {
		return nil, err
	}
	c, err := tx.txn.OpenCursor(dbi)
	if err != nil {
		return nil, err
	}
	return &cursor{c: c}, nil
}

var (
	_ kvtree.Tx   = (*Tx)(nil)
	_ kvtree.RwTx = (*RwTx)(nil)
)
