package bridge

import (
	"bytes"
	"compress/flate"
	"io"
)

// compressedPrefix marks a payload this codec actually compressed, so the
// receiving side can tell it apart from a pass-through payload sent
// uncompressed because it was too small or didn't compress well enough
// (spec.md §4.4).
var compressedPrefix = []byte{0x1B, 0x43}

const (
	minCompressSize  = 64
	maxCompressRatio = 0.8
)

// FlateCodec is a deflate-based Codec for Options.Codec. Neither the modem
// state machine nor the supervisor sets Options.Codec, so the engine
// currently always runs without compression. No third-party
// compression library appears anywhere in the retrieval pack this module
// was grounded against, so this one component is built directly on the
// standard library's compress/flate rather than an ecosystem codec.
type FlateCodec struct{}

// Compress returns p prefixed with compressedPrefix and deflated, unless p
// is smaller than minCompressSize or the deflated form is not shorter than
// maxCompressRatio times len(p), in which case p is returned unprefixed and
// unmodified (a pass-through payload).
func (FlateCodec) Compress(p []byte) ([]byte, error) {
	if len(p) < minCompressSize {
		return p, nil
	}

	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestSpeed)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(p); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	if float64(buf.Len()) >= maxCompressRatio*float64(len(p)) {
		return p, nil
	}

	out := make([]byte, 0, len(compressedPrefix)+buf.Len())
	out = append(out, compressedPrefix...)
	out = append(out, buf.Bytes()...)
	return out, nil
}

// Decompress reverses Compress: a payload starting with compressedPrefix is
// inflated, anything else is returned unchanged.
func (FlateCodec) Decompress(p []byte) ([]byte, error) {
	if len(p) < len(compressedPrefix) || !bytes.Equal(p[:len(compressedPrefix)], compressedPrefix) {
		return p, nil
	}
	r := flate.NewReader(bytes.NewReader(p[len(compressedPrefix):]))
	defer r.Close()
	return io.ReadAll(r)
}

// PassthroughCodec is a no-op Codec, equivalent to leaving Options.Codec
// nil. No caller negotiates compression with the client, and no caller
// ever sets FlateCodec on the engine.
type PassthroughCodec struct{}

func (PassthroughCodec) Compress(p []byte) ([]byte, error)   { return p, nil }
func (PassthroughCodec) Decompress(p []byte) ([]byte, error) { return p, nil }
