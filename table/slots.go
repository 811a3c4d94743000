package table

// Well-known keys within a table's root kvtree table (spec.md §3 "Table
// root"). Grounded on erigon-lib/kv/tables.go's convention of one const
// block naming every well-known table/key with a comment documenting its
// value shape, generalized here from "one key per named table" to "one key
// per slot within a single per-table root table".
const (
	// slotStats holds a layout.Stats: {u64 number_of_entries, u64 overflow_page_count}.
	slotStats = "stats"
	// slotSchema holds the schema.Schema.Encode() form validated on open.
	slotSchema = "schema"
	// slotActiveSection holds one little-endian u64 page number.
	slotActiveSection = "active"
	// slotInactiveSections holds a concatenation of little-endian u64 page
	// numbers: sections that are full and not compaction candidates.
	slotInactiveSections = "inactive"
	// slotCandidateSections holds a concatenation of little-endian u64 page
	// numbers: sections whose density fell into (0.15, 0.5] on a Delete,
	// eligible for reuse.
	slotCandidateSections = "candidate"
	// dictKeyPrefix namespaces Dictionaries-tree rows within the root table:
	// dictKeyPrefix + 32-byte hash -> layout.CompressionDictionaryInfo || bytes.
	dictKeyPrefix = "dict:"
)

// indexTableName derives the kvtree table name backing one declared index.
// Primary and fixed-key indexes are plain tables (key -> 8-byte id);
// variable-key indexes are DupSort tables (extracted key -> many ids),
// since kvtree's DupSort primitive already gives the exact "outer key
// addresses a set of ids" shape spec.md §3 describes as a nested
// fixed-size tree — a literal nested tree is unneeded with DupSort
// available (see DESIGN.md).
func indexTableName(tableName, indexName string) string {
	return tableName + "#idx#" + indexName
}

func primaryTableName(tableName string) string {
	return tableName + "#primary"
}

func rootTableName(tableName string) string {
	return tableName + "#root"
}
