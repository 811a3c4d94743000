// Package codec wraps github.com/klauspost/compress/zstd into the
// Compress/Decompress/Train/MaxCompressionBound surface spec.md §6 requires
// of the "Compression Codec (external)" dependency.
//
// Wire format: every compressed span this package produces is
// [4-byte little-endian original length][zstd frame]. The length prefix is
// what makes DecompressedSize cheap (spec.md needs it without a full
// decode, e.g. to size a destination buffer before decompressing) — zstd's
// own frame header only optionally carries content size and klauspost's
// encoder does not guarantee it is present, so this package does not rely
// on it.
package codec

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// ErrSizeMismatch is spec.md §7 error kind 7: decoded length did not equal
// the length recorded when the span was compressed.
type ErrSizeMismatch struct {
	Want, Got int
}

func (e *ErrSizeMismatch) Error() string {
	return fmt.Sprintf("codec: decompressed size mismatch: want %d got %d", e.Want, e.Got)
}

const lengthPrefixSize = 4

// Codec compresses and decompresses byte spans, optionally against a
// trained dictionary. A Codec is safe for concurrent use; encoders/decoders
// for a given dictionary are created lazily and cached.
type Codec struct {
	mu       sync.Mutex
	encoders map[string]*zstd.Encoder // keyed by dictionary bytes
	decoders map[string]*zstd.Decoder
	plainEnc *zstd.Encoder
	plainDec *zstd.Decoder
}

// New returns a ready Codec. Close releases the native zstd workers it
// starts.
func New() (*Codec, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &Codec{
		encoders: make(map[string]*zstd.Encoder),
		decoders: make(map[string]*zstd.Decoder),
		plainEnc: enc,
		plainDec: dec,
	}, nil
}

// Close releases every encoder/decoder this Codec created.
func (c *Codec) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.plainEnc.Close()
	c.plainDec.Close()
	for _, e := range c.encoders {
		e.Close()
	}
	for _, d := range c.decoders {
		d.Close()
	}
}

// MaxCompressionBound returns a safe upper bound on the compressed size of
// an n-byte span, including this package's 4-byte length prefix. Callers
// size scratch buffers with this before calling Compress.
func MaxCompressionBound(n int) int {
	// zstd's own worst case is the input plus a small per-frame overhead;
	// this mirrors the bound klauspost/compress documents for CompressBound.
	return lengthPrefixSize + n + (n >> 8) + 64
}

// Compress writes the compressed form of src into dst (which must have at
// least MaxCompressionBound(len(src)) capacity) and returns the number of
// bytes written. dict may be nil for an undictionaried section.
func (c *Codec) Compress(src, dst []byte, dict []byte) (int, error) {
	enc, err := c.encoderFor(dict)
	if err != nil {
		return 0, err
	}
	out := dst[:0]
	out = binary.LittleEndian.AppendUint32(out, uint32(len(src)))
	out = enc.EncodeAll(src, out)
	return len(out), nil
}

// Decompress decodes src (as produced by Compress) into dst, which must
// have at least DecompressedSize(src) capacity, and returns the number of
// bytes written.
func (c *Codec) Decompress(src, dst []byte, dict []byte) (int, error) {
	want, body, err := splitLength(src)
	if err != nil {
		return 0, err
	}
	dec, err := c.decoderFor(dict)
	if err != nil {
		return 0, err
	}
	out, err := dec.DecodeAll(body, dst[:0])
	if err != nil {
		return 0, err
	}
	if len(out) != want {
		return 0, &ErrSizeMismatch{Want: want, Got: len(out)}
	}
	return len(out), nil
}

// DecompressedSize returns the original length encoded in src's prefix
// without running the decompressor.
func DecompressedSize(src []byte) (int, error) {
	want, _, err := splitLength(src)
	return want, err
}

func splitLength(src []byte) (int, []byte, error) {
	if len(src) < lengthPrefixSize {
		return 0, nil, fmt.Errorf("codec: compressed span too short: %d bytes", len(src))
	}
	return int(binary.LittleEndian.Uint32(src[:lengthPrefixSize])), src[lengthPrefixSize:], nil
}

func (c *Codec) encoderFor(dict []byte) (*zstd.Encoder, error) {
	if len(dict) == 0 {
		return c.plainEnc, nil
	}
	key := string(dict)
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.encoders[key]; ok {
		return e, nil
	}
	e, err := zstd.NewWriter(nil, zstd.WithEncoderDict(dict))
	if err != nil {
		return nil, err
	}
	c.encoders[key] = e
	return e, nil
}

func (c *Codec) decoderFor(dict []byte) (*zstd.Decoder, error) {
	if len(dict) == 0 {
		return c.plainDec, nil
	}
	key := string(dict)
	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := c.decoders[key]; ok {
		return d, nil
	}
	d, err := zstd.NewReader(nil, zstd.WithDecoderDicts(dict))
	if err != nil {
		return nil, err
	}
	c.decoders[key] = d
	return d, nil
}
