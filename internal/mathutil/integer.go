// Copyright 2017 The go-ethereum Authors
// (original work)
// Copyright 2024 The Erigon Authors
// (modifications)
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

// Package mathutil holds small overflow-checked integer helpers used by
// pagestore (SafeMul) and table (CeilDiv).
package mathutil

import "math/bits"

const (
	MaxUint32 = 1<<32 - 1
	MaxUint64 = 1<<64 - 1
)

// CeilDiv returns ceil(x/y), the page-count convention used for overflow
// runs: a size of exactly one page occupies 1 page, a size of one byte over
// a page boundary occupies 2.
func CeilDiv(x, y int) int {
	if y == 0 {
		return 0
	}
	return (x + y - 1) / y
}

// SafeAdd returns x+y and whether the addition overflowed.
func SafeAdd(x, y uint64) (sum uint64, overflow bool) {
	sum, carryOut := bits.Add64(x, y, 0)
	return sum, carryOut != 0
}

// SafeMul returns x*y and whether the multiplication overflowed.
func SafeMul(x, y uint64) (product uint64, overflow bool) {
	hi, lo := bits.Mul64(x, y)
	return lo, hi != 0
}

// AbsoluteDifference returns |x-y| without risking signed overflow.
func AbsoluteDifference(x, y uint64) uint64 {
	if x > y {
		return x - y
	}
	return y - x
}
