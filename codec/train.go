package codec

// Train assembles a candidate dictionary from samples into dictBuf and
// returns the number of bytes written (≤ len(dictBuf)).
//
// klauspost/compress is a pure-Go zstd implementation and, unlike the
// reference C library, does not expose a ZDICT-style statistical trainer
// (covering/fastcover); no other pure-Go dictionary trainer appears
// anywhere in the retrieval pack. This uses the fallback every
// pure-Go-only zstd deployment falls back to: build the dictionary out of
// entire representative samples (most recent first, since recent entries
// best predict the next section's shape), which is exactly what
// "train a dictionary from sample spans" degrades to without a statistical
// trainer — the candidate is then accepted or rejected the same way a
// ZDICT-trained one would be (builder.ShouldReplaceDictionary, called from
// table/compaction.go),
// so a worse dictionary is simply rejected rather than adopted blindly.
func Train(samples [][]byte, dictBuf []byte) int {
	n := 0
	// Walk samples back-to-front: the most recent inserts are the best
	// predictor of what the next active section will store.
	for i := len(samples) - 1; i >= 0 && n < len(dictBuf); i-- {
		s := samples[i]
		room := len(dictBuf) - n
		if room <= 0 {
			break
		}
		if len(s) > room {
			s = s[len(s)-room:] // keep the tail: most codecs anchor dictionary matches near the end
		}
		n += copy(dictBuf[n:], s)
	}
	return n
}
