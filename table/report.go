// Report: spec.md §6 get_report(include_details), field shape from
// SPEC_FULL.md §10 — generalizes the teacher's DbInfo-style introspection
// table to a structured value rather than a single fixed key.
package table

import (
	"github.com/erigontech/tablestore/pagestore"
	"github.com/erigontech/tablestore/schema"
)

// IndexReport is one declared index's leaf count.
type IndexReport struct {
	Name       string
	EntryCount uint64
}

// SectionReport is one tracked section's occupancy, only populated when
// includeDetails is set.
type SectionReport struct {
	FirstPage      uint64
	NumPages       int
	Density        float64
	DictionaryHash [32]byte
	IsActive       bool
	IsCandidate    bool
}

// Report is GetReport's return value.
type Report struct {
	NumEntries        uint64
	OverflowPageCount uint64
	Indexes           []IndexReport
	Sections          []SectionReport // only set when includeDetails
}

// GetReport answers spec.md §6's get_report(include_details): entry count,
// overflow page count, and per-index sizes always; per-section occupancy,
// dictionary hash, and density only when includeDetails is true, since
// walking every tracked section's id list is the expensive part.
func (t *Table) GetReport(includeDetails bool) (Report, error) {
	st, _, err := t.readStats()
	if err != nil {
		return Report{}, err
	}

	rep := Report{
		NumEntries:        st.NumEntries,
		OverflowPageCount: st.OverflowPageCount,
	}

	if t.sch.PrimaryKey != nil {
		n, err := t.countTable(primaryTableName(t.name))
		if err != nil {
			return Report{}, err
		}
		rep.Indexes = append(rep.Indexes, IndexReport{Name: "primary", EntryCount: n})
	}
	for _, idx := range t.sch.Indexes {
		n, err := t.countIndexTable(idx)
		if err != nil {
			return Report{}, err
		}
		rep.Indexes = append(rep.Indexes, IndexReport{Name: idx.Name, EntryCount: n})
	}

	if !includeDetails {
		return rep, nil
	}

	activePage, err := t.activeSectionPage()
	if err != nil {
		return Report{}, err
	}
	inactive, err := t.inactiveSections()
	if err != nil {
		return Report{}, err
	}
	candidates, err := t.candidateSections()
	if err != nil {
		return Report{}, err
	}
	candidateSet := make(map[uint64]bool, len(candidates))
	for _, pn := range candidates {
		candidateSet[pn] = true
	}

	all := append([]uint64{uint64(activePage)}, inactive...)
	all = append(all, candidates...)
	seen := make(map[uint64]bool, len(all))
	for _, pn := range all {
		if seen[pn] {
			continue
		}
		seen[pn] = true
		sec, err := t.openSection(pagestore.PageNumber(pn))
		if err != nil {
			return Report{}, err
		}
		rep.Sections = append(rep.Sections, SectionReport{
			FirstPage:      pn,
			NumPages:       sec.NumPages(),
			Density:        sec.Density(),
			DictionaryHash: sec.CurrentCompressionDictionaryHash(),
			IsActive:       pn == uint64(activePage),
			IsCandidate:    candidateSet[pn],
		})
	}

	return rep, nil
}

// countTable walks a non-DupSort table and counts its keys.
func (t *Table) countTable(name string) (uint64, error) {
	cur, err := t.kv.Cursor(name)
	if err != nil {
		return 0, err
	}
	defer cur.Close()
	var n uint64
	for k, _, err := cur.First(); k != nil; k, _, err = cur.Next() {
		if err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

// countIndexTable counts a declared secondary index's leaves: one per key
// for a fixed-key index, one per (key, value) duplicate for a variable-key
// index.
func (t *Table) countIndexTable(idx schema.Index) (uint64, error) {
	name := indexTableName(t.name, idx.Name)
	if idx.Kind == schema.IndexFixedKey {
		return t.countTable(name)
	}
	cur, err := t.kv.CursorDupSort(name)
	if err != nil {
		return 0, err
	}
	defer cur.Close()
	var n uint64
	for k, _, err := cur.First(); k != nil; k, _, err = cur.Next() {
		if err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}
