// Active-section switching, the dictionary-replacement driver, and
// compact-away relocation: spec.md §4.3, §4.6, §4.7.
package table

import (
	"github.com/erigontech/tablestore/builder"
	"github.com/erigontech/tablestore/codec"
	"github.com/erigontech/tablestore/dictionary"
	"github.com/erigontech/tablestore/hashkey"
	"github.com/erigontech/tablestore/pagestore"
	"github.com/erigontech/tablestore/section"
)

// allocateFromAnotherSection implements spec.md §4.7: the current active
// section refused an allocation of size bytes. It is pushed to
// InactiveSections, a candidate section is reused if one fits, and
// otherwise a new section is created (possibly with a freshly trained
// dictionary). Returns the new active section.
func (t *Table) allocateFromAnotherSection(oldActive *section.Section, size int, wantCompressed bool) (*section.Section, error) {
	inactive, err := t.inactiveSections()
	if err != nil {
		return nil, err
	}
	inactive = append(inactive, uint64(oldActive.FirstPage()))
	if err := t.setInactiveSections(inactive); err != nil {
		return nil, err
	}

	candidates, err := t.candidateSections()
	if err != nil {
		return nil, err
	}
	wantDict := oldActive.CurrentCompressionDictionaryHash()
	for i, pn := range candidates {
		cand, err := t.openSection(pagestore.PageNumber(pn))
		if err != nil {
			return nil, err
		}
		if wantCompressed && cand.CurrentCompressionDictionaryHash() != wantDict {
			continue
		}
		if _, err := cand.TryAllocate(t.pwtx, size); err == nil {
			remaining := append(append([]uint64{}, candidates[:i]...), candidates[i+1:]...)
			if err := t.setCandidateSections(remaining); err != nil {
				return nil, err
			}
			if err := t.setActiveSectionPage(cand.FirstPage()); err != nil {
				return nil, err
			}
			return cand, nil
		}
	}

	newDict, newRatio, trained, err := t.maybeTrainDictionary(oldActive)
	if err != nil {
		return nil, err
	}

	newPages := oldActive.NumPages() * 2
	if max := t.maxSectionPages(); newPages > max {
		newPages = max
	}
	if newPages < 1 {
		newPages = t.opt.initialSectionPages
	}
	sec, err := section.Create(t.pwtx, t.ownerHash, byte(t.sch.TableType), newPages, t.store.PageSize())
	if err != nil {
		return nil, err
	}
	if trained {
		if err := sec.SetDictionary(t.pwtx, newDict); err != nil {
			return nil, err
		}
		if err := sec.SetCompressionRate(t.pwtx, newRatio); err != nil {
			return nil, err
		}
	} else if wantDict != ([32]byte{}) {
		if err := sec.SetDictionary(t.pwtx, wantDict); err != nil {
			return nil, err
		}
	}
	t.sects[uint64(sec.FirstPage())] = sec
	if err := t.setActiveSectionPage(sec.FirstPage()); err != nil {
		return nil, err
	}
	return sec, nil
}

// maybeTrainDictionary implements spec.md §4.3's dictionary-replacement
// decision. It returns (hash, expectedRatio, true) when a new dictionary
// was accepted and stored, or (zero, 0, false) when the current one is
// kept.
func (t *Table) maybeTrainDictionary(previous *section.Section) ([32]byte, int32, bool, error) {
	if !t.sch.Compressed {
		return [32]byte{}, 0, false, nil
	}
	currentHash := previous.CurrentCompressionDictionaryHash()
	current, err := t.dictHolder.Get(currentHash, t.dictionaryLoader())
	if err != nil {
		return [32]byte{}, 0, false, err
	}
	if previous.MinCompressionRatio()+10 >= current.ExpectedRatio {
		return [32]byte{}, 0, false, nil // current dictionary is good enough
	}

	samples, err := t.trainingCorpus(previous, current)
	if err != nil {
		return [32]byte{}, 0, false, err
	}
	if len(samples) == 0 {
		return [32]byte{}, 0, false, nil
	}

	dictBuf := make([]byte, 4096)
	n := codec.Train(samples, dictBuf)
	if n == 0 {
		return [32]byte{}, 0, false, nil
	}
	candidateBytes := dictBuf[:n]
	hash := hashkey.Generic(candidateBytes, []byte(t.name))

	candidateRatio, err := t.estimateRatio(samples, candidateBytes)
	if err != nil {
		return [32]byte{}, 0, false, err
	}
	if !builder.ShouldReplaceDictionary(current.ExpectedRatio, candidateRatio) {
		return [32]byte{}, 0, false, nil
	}

	row := encodeDictionaryRow(CompressionDictionaryInfo{ExpectedRatio: candidateRatio}, candidateBytes)
	if err := t.kvw.Put(t.rootTable, dictKey(hash), row); err != nil {
		return [32]byte{}, 0, false, err
	}
	return hash, candidateRatio, true, nil
}

// trainingCorpus assembles up to trainingCorpusCap bytes of the previous
// section's live entries, decompressed against its existing dictionary
// (spec.md §4.3: "assemble a training corpus from the previous section's
// live entries, decompressing as needed with the existing dictionary").
func (t *Table) trainingCorpus(previous *section.Section, currentDict *dictionary.Handle) ([][]byte, error) {
	ids, err := previous.GetAllIDs(t.pageReader())
	if err != nil {
		return nil, err
	}
	var samples [][]byte
	total := 0
	skipped := 0
	for _, id := range ids {
		if total >= trainingCorpusCap {
			skipped++
			continue
		}
		raw, compressed, _, dictHash, err := section.DirectRead(t.pageReader(), id, t.store.PageSize())
		if err != nil {
			return nil, err
		}
		body := raw
		if compressed {
			handle := currentDict
			if dictHash != previous.CurrentCompressionDictionaryHash() {
				handle, err = t.dictHolder.Get(dictHash, t.dictionaryLoader())
				if err != nil {
					return nil, err
				}
			}
			size, err := codec.DecompressedSize(raw)
			if err != nil {
				return nil, err
			}
			dst := make([]byte, size)
			nn, err := t.codec.Decompress(raw, dst, handle.Bytes)
			if err != nil {
				return nil, err
			}
			body = dst[:nn]
		}
		if total+len(body) > trainingCorpusCap {
			body = body[:trainingCorpusCap-total]
		}
		samples = append(samples, body)
		total += len(body)
	}
	if skipped > 0 {
		t.log.Debugw("dictionary training corpus capped", "skipped_entries", skipped, "cap_bytes", trainingCorpusCap)
	}
	return samples, nil
}

// estimateRatio compresses a sample of the corpus against candidateBytes
// to approximate the expected ratio a real section using this dictionary
// would achieve.
func (t *Table) estimateRatio(samples [][]byte, candidateBytes []byte) (int32, error) {
	if len(samples) == 0 {
		return 0, nil
	}
	totalRaw, totalCompressed := 0, 0
	dst := make([]byte, 0)
	for _, s := range samples {
		need := codec.MaxCompressionBound(len(s))
		if cap(dst) < need {
			dst = make([]byte, need)
		}
		n, err := t.codec.Compress(s, dst[:need], candidateBytes)
		if err != nil {
			return 0, err
		}
		totalRaw += len(s)
		totalCompressed += n
	}
	if totalRaw == 0 {
		return 0, nil
	}
	return int32(100 - totalCompressed*100/totalRaw), nil
}

// compactAway implements spec.md §4.6 step 3: relocate every live entry out
// of a doomed section into the current active section (or overflow), then
// free the section. observer is invoked for every relocated id so the
// caller's index maintenance can retarget it.
func (t *Table) compactAway(doomed *section.Section, observer section.Observer) error {
	// Step 3(a): untrack the doomed section before relocating anything. If
	// this ran after the relocation loop instead, allocateFromAnotherSection
	// could still see it in the candidate set, allocate into it, and even
	// promote it to active — which the loop would then free out from under
	// the entries it had just relocated there.
	inactive, err := t.inactiveSections()
	if err != nil {
		return err
	}
	candidates, err := t.candidateSections()
	if err != nil {
		return err
	}
	if err := t.setInactiveSections(removeValue(inactive, uint64(doomed.FirstPage()))); err != nil {
		return err
	}
	if err := t.setCandidateSections(removeValue(candidates, uint64(doomed.FirstPage()))); err != nil {
		return err
	}

	currentHash, current, err := t.resolveActiveDictionary()
	if err != nil {
		return err
	}

	ids, err := doomed.GetAllIDs(t.pageReader())
	if err != nil {
		return err
	}
	for _, id := range ids {
		raw, compressed, _, dictHash, err := section.DirectRead(t.pageReader(), id, t.store.PageSize())
		if err != nil {
			return err
		}

		// logical is always the decoded, uncompressed row: index key
		// extraction and the relocation observer both read this form,
		// never the persisted (possibly compressed) bytes. payload/
		// newCompressed default to keeping the entry exactly as stored;
		// they are only recomputed when the entry's dictionary differs
		// from the section it is moving into.
		logical := raw
		payload := raw
		newCompressed := compressed
		if compressed {
			needRecompress := dictHash != currentHash
			handle := current
			if needRecompress {
				handle, err = t.dictHolder.Get(dictHash, t.dictionaryLoader())
				if err != nil {
					return err
				}
			}
			size, err := codec.DecompressedSize(raw)
			if err != nil {
				return err
			}
			dst := make([]byte, size)
			n, err := t.codec.Decompress(raw, dst, handle.Bytes)
			if err != nil {
				return err
			}
			logical = dst[:n]

			if needRecompress {
				payload, newCompressed = logical, false
				if current != nil && len(current.Bytes) > 0 {
					cdst := make([]byte, codec.MaxCompressionBound(len(logical)))
					cn, err := t.codec.Compress(logical, cdst, current.Bytes)
					if err != nil {
						return err
					}
					if cn < len(logical) {
						payload, newCompressed = cdst[:cn], true
					}
				}
			}
		}

		var newID uint64
		if fitsSmall(len(payload), t.opt.maxItemSize) {
			pn, err := t.activeSectionPage()
			if err != nil {
				return err
			}
			active, err := t.openSection(pn)
			if err != nil {
				return err
			}
			newID, err = active.TryAllocate(t.pwtx, len(payload))
			if err != nil {
				active, err = t.allocateFromAnotherSection(active, len(payload), newCompressed)
				if err != nil {
					return err
				}
				newID, err = active.TryAllocate(t.pwtx, len(payload))
				if err != nil {
					return ErrAllocationFailed
				}
			}
			if err := active.TryWriteDirect(t.pwtx, newID, payload, newCompressed); err != nil {
				return err
			}
		} else {
			newID, err = t.writeOverflow(payload, newCompressed, currentHash)
			if err != nil {
				return err
			}
		}
		if err := observer.DataMoved(id, newID, logical); err != nil {
			return err
		}
	}

	delete(t.sects, uint64(doomed.FirstPage()))
	return t.pwtx.FreePages(doomed.FirstPage(), doomed.NumPages())
}

func (t *Table) resolveActiveDictionary() ([32]byte, *dictionary.Handle, error) {
	if !t.sch.Compressed {
		return [32]byte{}, nil, nil
	}
	pn, err := t.activeSectionPage()
	if err != nil {
		return [32]byte{}, nil, err
	}
	sec, err := t.openSection(pn)
	if err != nil {
		return [32]byte{}, nil, err
	}
	hash := sec.CurrentCompressionDictionaryHash()
	handle, err := t.dictHolder.Get(hash, t.dictionaryLoader())
	if err != nil {
		return [32]byte{}, nil, err
	}
	return hash, handle, nil
}

func removeValue(s []uint64, v uint64) []uint64 {
	out := make([]uint64, 0, len(s))
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
