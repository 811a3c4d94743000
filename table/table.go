// Package table implements Table, the engine's orchestrator (spec.md's
// component table, 47% share): routes reads/writes between raw-data
// sections and overflow pages, maintains every declared index, drives
// compaction and the dictionary-compression lifecycle, and answers every
// operation in spec.md §6.
package table

import (
	"fmt"

	"github.com/c2h5oh/datasize"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/erigontech/tablestore/builder"
	"github.com/erigontech/tablestore/codec"
	"github.com/erigontech/tablestore/dictionary"
	"github.com/erigontech/tablestore/entry"
	"github.com/erigontech/tablestore/kvtree"
	"github.com/erigontech/tablestore/pagestore"
	"github.com/erigontech/tablestore/schema"
	"github.com/erigontech/tablestore/section"
)

// maxSectionBytes32/64 are spec.md §4.7's growth caps: 1 MiB on 32-bit
// hosts, 32 MiB otherwise. maxSectionPages divides by the store's actual
// page size so the byte cap holds regardless of configured page size.
const (
	maxSectionBytes32 = 1 * datasize.MB
	maxSectionBytes64 = 32 * datasize.MB
)

// trainingCorpusCap is spec.md §4.3's 512 KiB cap on the dictionary
// training corpus assembled from the previous active section's live entries
// when allocateFromAnotherSection switches away from it.
const trainingCorpusCap = int(512 * datasize.KB)

// Option configures Open/Create.
type Option func(*options)

type options struct {
	log                  *zap.SugaredLogger
	maxItemSize          int
	initialSectionPages  int
	decompressionMemoCap int
	is32Bit              bool
}

func defaultOptions(pageSize int) *options {
	return &options{
		log:                  zap.NewNop().Sugar(),
		maxItemSize:          pageSize / 4,
		initialSectionPages:  4,
		decompressionMemoCap: 4096,
		is32Bit:              ^uint(0)>>32 == 0,
	}
}

// WithLogger attaches a *zap.SugaredLogger; Open/Create default to a no-op
// logger, following the teacher's "logger is a constructor argument, never
// a package global" convention.
func WithLogger(l *zap.SugaredLogger) Option { return func(o *options) { o.log = l } }

// WithMaxItemSize overrides the small/overflow routing threshold (spec.md
// §4.1 "MAX_ITEM_SIZE is a tunable bounded below the page size after
// headers").
func WithMaxItemSize(n pagestore.ByteSize) Option {
	return func(o *options) { o.maxItemSize = int(n) }
}

// WithInitialSectionPages sets the page count of a table's very first
// active section (spec.md §4.7's doubling policy needs a starting point).
func WithInitialSectionPages(n int) Option { return func(o *options) { o.initialSectionPages = n } }

// WithDecompressionMemoCapacity bounds the per-transaction decompressed-row
// memo (spec.md §4.3 point 3), so an unbounded scan of a compressed table
// cannot exhaust memory within one transaction.
func WithDecompressionMemoCapacity(n int) Option {
	return func(o *options) { o.decompressionMemoCap = n }
}

// With32BitHost forces the 32-bit active-section growth cap (1 MiB,
// spec.md §8 boundary case), overriding the build's native word size — for
// tests that need to exercise the cap without an actual 32-bit binary.
func With32BitHost(v bool) Option { return func(o *options) { o.is32Bit = v } }

// Table is one opened table instance: its schema, its raw-data sections
// (addressed through a pagestore.Store) and its index trees (addressed
// through a kvtree.Tx/RwTx). Per spec.md §5, a Table's caches are owned
// exclusively by the instance and dropped when it is disposed — never
// shared across transactions.
type Table struct {
	name      string
	ownerHash uint64
	sch       *schema.Schema
	rootTable string

	store *pagestore.Store
	prtx  *pagestore.Tx
	pwtx  *pagestore.RwTx

	kv  kvtree.Tx
	kvw kvtree.RwTx

	codec      *codec.Codec
	dictHolder *dictionary.Holder

	decomp *lru.Cache[uint64, []byte]
	sects  map[uint64]*section.Section

	log *zap.SugaredLogger
	opt *options
}

// OpenOrCreate opens name within the enclosing pagestore/kvtree write
// transactions, creating and initializing it on first use. It validates
// the requested schema against the persisted one otherwise (spec.md §6
// "validate schema against on-disk schema").
func OpenOrCreate(store *pagestore.Store, pwtx *pagestore.RwTx, kvw kvtree.RwTx, name string, ownerHash uint64, sch *schema.Schema, c *codec.Codec, dictHolder *dictionary.Holder, opts ...Option) (*Table, error) {
	o := defaultOptions(store.PageSize())
	for _, fn := range opts {
		fn(o)
	}
	t, err := newTable(store, nil, pwtx, kv(kvw), kvw, name, ownerHash, sch, c, dictHolder, o)
	if err != nil {
		return nil, err
	}

	root := t.rootTable
	if err := kvw.CreateTable(root, kvtree.Default); err != nil {
		return nil, fmt.Errorf("table: create root table: %w", err)
	}
	existing, err := getOneOrNil(kvw, root, []byte(slotSchema))
	if err != nil {
		return nil, err
	}
	if existing == nil {
		if err := t.initialize(); err != nil {
			return nil, err
		}
		return t, nil
	}
	if err := sch.Validate(existing); err != nil {
		return nil, &ErrSchemaMismatch{Cause: err}
	}
	return t, nil
}

// Open opens an existing, already-initialized table for read-write use.
func Open(store *pagestore.Store, pwtx *pagestore.RwTx, kvw kvtree.RwTx, name string, ownerHash uint64, sch *schema.Schema, c *codec.Codec, dictHolder *dictionary.Holder, opts ...Option) (*Table, error) {
	o := defaultOptions(store.PageSize())
	for _, fn := range opts {
		fn(o)
	}
	t, err := newTable(store, nil, pwtx, kv(kvw), kvw, name, ownerHash, sch, c, dictHolder, o)
	if err != nil {
		return nil, err
	}
	if err := t.validateExisting(); err != nil {
		return nil, err
	}
	return t, nil
}

// OpenReadOnly opens an existing table for reads only; every mutating
// method returns ErrReadOnly (spec.md §7 error kind 9).
func OpenReadOnly(store *pagestore.Store, prtx *pagestore.Tx, kvTx kvtree.Tx, name string, ownerHash uint64, sch *schema.Schema, c *codec.Codec, dictHolder *dictionary.Holder, opts ...Option) (*Table, error) {
	o := defaultOptions(store.PageSize())
	for _, fn := range opts {
		fn(o)
	}
	t, err := newTable(store, prtx, nil, kvTx, nil, name, ownerHash, sch, c, dictHolder, o)
	if err != nil {
		return nil, err
	}
	if err := t.validateExisting(); err != nil {
		return nil, err
	}
	return t, nil
}

// kv is a trivial helper so newTable's call sites read naturally whether
// or not a write transaction is present; kvw already satisfies kvtree.Tx.
func kv(kvw kvtree.RwTx) kvtree.Tx { return kvw }

func newTable(store *pagestore.Store, prtx *pagestore.Tx, pwtx *pagestore.RwTx, kvTx kvtree.Tx, kvw kvtree.RwTx, name string, ownerHash uint64, sch *schema.Schema, c *codec.Codec, dictHolder *dictionary.Holder, o *options) (*Table, error) {
	cache, err := lru.New[uint64, []byte](o.decompressionMemoCap)
	if err != nil {
		return nil, err
	}
	return &Table{
		name:       name,
		ownerHash:  ownerHash,
		sch:        sch,
		rootTable:  rootTableName(name),
		store:      store,
		prtx:       prtx,
		pwtx:       pwtx,
		kv:         kvTx,
		kvw:        kvw,
		codec:      c,
		dictHolder: dictHolder,
		decomp:     cache,
		sects:      make(map[uint64]*section.Section),
		log:        o.log.With("table", name),
		opt:        o,
	}, nil
}

func (t *Table) readOnly() bool { return t.kvw == nil }

func (t *Table) maxSectionPages() int {
	bytes := maxSectionBytes64
	if t.opt.is32Bit {
		bytes = maxSectionBytes32
	}
	return int(bytes) / t.store.PageSize()
}

// initialize sets up a freshly created table's root slots and first active
// section.
func (t *Table) initialize() error {
	if t.readOnly() {
		return ErrReadOnly
	}
	if err := t.kvw.CreateTable(primaryTableName(t.name), kvtree.Default); err != nil {
		return err
	}
	for _, idx := range t.sch.Indexes {
		flags := kvtree.Default
		if idx.Kind == schema.IndexVariableKey {
			flags = kvtree.DupSort
		}
		if err := t.kvw.CreateTable(indexTableName(t.name, idx.Name), flags); err != nil {
			return err
		}
	}
	if err := t.kvw.Put(t.rootTable, []byte(slotSchema), t.sch.Encode()); err != nil {
		return err
	}
	if err := t.kvw.Put(t.rootTable, []byte(slotStats), Stats{}.Encode()); err != nil {
		return err
	}
	sec, err := section.Create(t.pwtx, t.ownerHash, byte(t.sch.TableType), t.opt.initialSectionPages, t.store.PageSize())
	if err != nil {
		return err
	}
	t.sects[uint64(sec.FirstPage())] = sec
	return t.kvw.Put(t.rootTable, []byte(slotActiveSection), encodePageNumber(uint64(sec.FirstPage())))
}

func (t *Table) validateExisting() error {
	persisted, err := getOneOrNil(t.kv, t.rootTable, []byte(slotSchema))
	if err != nil {
		return err
	}
	if persisted == nil {
		return ErrMissingRoot
	}
	if err := t.sch.Validate(persisted); err != nil {
		return &ErrSchemaMismatch{Cause: err}
	}
	if _, _, err := t.readStats(); err != nil {
		return err
	}
	if _, err := t.activeSectionPage(); err != nil {
		return err
	}
	return nil
}

func (t *Table) readStats() (Stats, []byte, error) {
	b, err := getOneOrNil(t.kv, t.rootTable, []byte(slotStats))
	if err != nil {
		return Stats{}, nil, err
	}
	if b == nil {
		return Stats{}, nil, ErrMissingRoot
	}
	st, err := decodeStats(b)
	return st, b, err
}

func (t *Table) writeStats(st Stats) error {
	if t.readOnly() {
		return ErrReadOnly
	}
	return t.kvw.Put(t.rootTable, []byte(slotStats), st.Encode())
}

func (t *Table) activeSectionPage() (pagestore.PageNumber, error) {
	b, err := getOneOrNil(t.kv, t.rootTable, []byte(slotActiveSection))
	if err != nil {
		return 0, err
	}
	pn, ok := decodePageNumber(b)
	if !ok {
		return 0, ErrMissingRoot
	}
	return pagestore.PageNumber(pn), nil
}

func (t *Table) setActiveSectionPage(pn pagestore.PageNumber) error {
	if t.readOnly() {
		return ErrReadOnly
	}
	return t.kvw.Put(t.rootTable, []byte(slotActiveSection), encodePageNumber(uint64(pn)))
}

func (t *Table) inactiveSections() ([]uint64, error) {
	b, err := getOneOrNil(t.kv, t.rootTable, []byte(slotInactiveSections))
	if err != nil {
		return nil, err
	}
	return decodePageNumberSet(b), nil
}

func (t *Table) setInactiveSections(pns []uint64) error {
	return t.kvw.Put(t.rootTable, []byte(slotInactiveSections), encodePageNumberSet(pns))
}

func (t *Table) candidateSections() ([]uint64, error) {
	b, err := getOneOrNil(t.kv, t.rootTable, []byte(slotCandidateSections))
	if err != nil {
		return nil, err
	}
	return decodePageNumberSet(b), nil
}

func (t *Table) setCandidateSections(pns []uint64) error {
	return t.kvw.Put(t.rootTable, []byte(slotCandidateSections), encodePageNumberSet(pns))
}

// openSection returns (caching) the Section starting at pn.
func (t *Table) openSection(pn pagestore.PageNumber) (*section.Section, error) {
	if s, ok := t.sects[uint64(pn)]; ok {
		return s, nil
	}
	s, err := section.Open(t.pageReader(), pn, t.store.PageSize())
	if err != nil {
		return nil, err
	}
	t.sects[uint64(pn)] = s
	return s, nil
}

func (t *Table) pageReader() pageReader {
	if t.pwtx != nil {
		return t.pwtx
	}
	return t.prtx
}

func (t *Table) pageWriter() (pageWriter, error) {
	if t.pwtx == nil {
		return nil, ErrReadOnly
	}
	return t.pwtx, nil
}

type pageReader interface {
	ReadPage(pagestore.PageNumber) ([]byte, error)
}

type pageWriter interface {
	pageReader
	ModifyPage(pagestore.PageNumber) ([]byte, error)
	AllocPages(int, pagestore.Flags) (pagestore.PageNumber, error)
	FreePages(pagestore.PageNumber, int) error
}

// dictionaryLoader adapts this table's Dictionaries tree into a
// dictionary.Loader for dictHolder.Get.
func (t *Table) dictionaryLoader() dictionary.Loader {
	return func(hash [32]byte) ([]byte, int32, error) {
		row, err := getOneOrNil(t.kv, t.rootTable, dictKey(hash))
		if err != nil {
			return nil, 0, err
		}
		if row == nil {
			return nil, 0, fmt.Errorf("table: dictionary row missing for hash")
		}
		info, dictBytes, ok := decodeDictionaryRow(row)
		if !ok {
			return nil, 0, fmt.Errorf("table: malformed dictionary row")
		}
		return dictBytes, info.ExpectedRatio, nil
	}
}

// decodeRow decodes a stored row into an entry.Reader. raw is always the
// compressed stream itself — for an overflow entry, the caller (readByID,
// via readOverflowPages) has already stripped the 32-byte dictionary-hash
// prefix and passed the real hash in sectionDictHash (spec.md §4.3 point 2).
func (t *Table) decodeRow(id uint64, raw []byte, compressed bool, sectionDictHash [32]byte) (*entry.Reader, error) {
	if !compressed {
		return entry.NewReader(raw)
	}
	if cached, ok := t.decomp.Get(id); ok {
		return entry.NewReader(cached)
	}

	handle, err := t.dictHolder.Get(sectionDictHash, t.dictionaryLoader())
	if err != nil {
		return nil, err
	}
	size, err := codec.DecompressedSize(raw)
	if err != nil {
		return nil, err
	}
	dst := make([]byte, size)
	n, err := t.codec.Decompress(raw, dst, handle.Bytes)
	if err != nil {
		return nil, err
	}
	dst = dst[:n]
	t.decomp.Add(id, dst)
	return entry.NewReader(dst)
}

func (t *Table) evictDecompressed(id uint64) { t.decomp.Remove(id) }

// PrepareForCommit is spec.md §6's commit hook. Every mutation in this
// implementation writes through immediately, so there is nothing buffered
// to flush; it exists so a future write-buffering change has a place to
// hook into without changing the Table interface.
func (t *Table) PrepareForCommit() error {
	return nil
}

// Dispose releases this Table's in-memory caches. Call when done with the
// instance; it does not touch the underlying store or kv transactions.
func (t *Table) Dispose() {
	t.sects = nil
	t.decomp.Purge()
}

func fitsSmall(payloadSize, maxItemSize int) bool {
	return entryOverhead+payloadSize < maxItemSize
}

// entryOverhead is section's per-entry header size, mirrored here so
// Table's small-vs-overflow routing decision (spec.md §4.1's
// MAX_ITEM_SIZE test) matches what section.TryAllocate will actually
// accept.
const entryOverhead = 16
