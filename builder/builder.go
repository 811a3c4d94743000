// Package builder implements the Table Value Builder spec.md's component
// table budgets at roughly a tenth of the engine: stage typed columns,
// encode them into one row, and optionally compress that row against a
// section's current dictionary (spec.md §4.2 "try_compression") before
// handing the result to section.TryWriteDirect.
package builder

import (
	"github.com/erigontech/tablestore/codec"
	"github.com/erigontech/tablestore/dictionary"
	"github.com/erigontech/tablestore/entry"
	"github.com/erigontech/tablestore/internal/debugassert"
)

// Builder stages columns for one row. It is not safe for concurrent use;
// callers build one row per Builder value (or Reset between rows).
type Builder struct {
	columns []entry.Column
}

// New returns an empty Builder.
func New() *Builder { return &Builder{} }

// Add stages one more column, in order, and returns b for chaining.
func (b *Builder) Add(c entry.Column) *Builder {
	b.columns = append(b.columns, c)
	return b
}

// Reset clears staged columns so b can be reused for the next row.
func (b *Builder) Reset() { b.columns = b.columns[:0] }

// Result is one built row: Raw is the uncompressed encoded columns (what
// index extraction always reads, regardless of what gets persisted);
// Bytes is what the caller should actually persist, Compressed reports
// whether Bytes differs from Raw, and (when compressed) Ratio is the
// achieved ratio. Ratio follows the glossary's "expected ratio" convention
// — an integer percentage where higher is better (100 × size reduction),
// so the all-zero-dictionary sentinel (101) is unbeatable — for the
// caller's should_replace_dictionary bookkeeping.
type Result struct {
	Raw        []byte
	Bytes      []byte
	Compressed bool
	Ratio      int32
}

// Reader decodes Raw, the form table.Table's index maintenance extracts
// keys from regardless of whether Bytes ended up compressed.
func (r Result) Reader() (*entry.Reader, error) { return entry.NewReader(r.Raw) }

// Build encodes the staged columns and, when dict is non-empty, attempts
// compression (spec.md §4.2 "try_compression"). Compression is kept only
// when it actually shrinks the row; callers never persist a compressed
// form larger than the raw one.
func (b *Builder) Build(c *codec.Codec, dict *dictionary.Handle) (Result, error) {
	return BuildFromRaw(entry.Encode(b.columns), c, dict)
}

// BuildFromRaw repeats Build's compression decision against an already-
// encoded row. table.Table uses this to re-try compression against a
// different section's dictionary after allocate_from_another_section
// switches sections mid-insert (spec.md §4.4 step 3: switching "may change
// the encoded form and size") — the raw columns never change, only which
// dictionary (if any) encodes them.
func BuildFromRaw(raw []byte, c *codec.Codec, dict *dictionary.Handle) (Result, error) {
	if dict == nil || len(dict.Bytes) == 0 {
		return Result{Raw: raw, Bytes: raw}, nil
	}

	dst := make([]byte, codec.MaxCompressionBound(len(raw)))
	n, err := c.Compress(raw, dst, dict.Bytes)
	if err != nil {
		return Result{}, err
	}
	dst = dst[:n]
	debugassert.NoAlias("builder.Build raw/compressed", raw, dst)

	if len(dst) >= len(raw) {
		return Result{Raw: raw, Bytes: raw}, nil
	}
	ratio := int32(100 - len(dst)*100/len(raw))
	return Result{Raw: raw, Bytes: dst, Compressed: true, Ratio: ratio}, nil
}

// ShouldReplaceDictionary reports whether a candidate dictionary's ratio
// beats the current one by the spec's 10-percentage-point improvement
// margin (spec.md §4.3 "should_replace_dictionary ... enforces a margin —
// the candidate must beat the current by >= 10%"), matching the additive
// "+10" threshold the same section uses for the skip-training decision.
// Avoids thrashing a section's dictionary for marginal gains.
func ShouldReplaceDictionary(currentExpectedRatio, candidateRatio int32) bool {
	return candidateRatio >= currentExpectedRatio+10
}
