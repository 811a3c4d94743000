package table

import (
	"errors"

	"github.com/erigontech/tablestore/kvtree"
)

// getOneOrNil adapts kvtree.Tx.GetOne's ErrKeyNotFound into the
// nil-means-absent convention this package's root-slot and index helpers
// are written against.
func getOneOrNil(tx kvtree.Tx, table string, key []byte) ([]byte, error) {
	v, err := tx.GetOne(table, key)
	if errors.Is(err, kvtree.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}
