package blob

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/wippyai/wasm-executor/errors"
)

// DefaultBombLimit bounds the decompressed size of a compressed blob.
const DefaultBombLimit = 50 * 1024 * 1024

// zstdPrefix marks a zstd compressed code blob.
var zstdPrefix = []byte{82, 188, 83, 118, 70, 219, 142, 5}

// IsCompressed reports whether code carries the compressed blob prefix.
func IsCompressed(code []byte) bool {
	return bytes.HasPrefix(code, zstdPrefix)
}

// Uncompress returns code unchanged unless it carries the compressed blob
// prefix, in which case the payload is zstd-decoded. Output larger than
// bombLimit bytes is rejected.
func Uncompress(code []byte, bombLimit int) ([]byte, error) {
	if !IsCompressed(code) {
		return code, nil
	}

	dec, err := zstd.NewReader(bytes.NewReader(code[len(zstdPrefix):]))
	if err != nil {
		return nil, errors.Module(errors.PhaseLoad, "create zstd decoder", err)
	}
	defer dec.Close()

	out, err := io.ReadAll(io.LimitReader(dec, int64(bombLimit)+1))
	if err != nil {
		return nil, errors.Module(errors.PhaseLoad, "decompress code blob", err)
	}
	if len(out) > bombLimit {
		return nil, errors.New(errors.PhaseLoad, errors.KindModule).
			Detail("decompressed code exceeds bomb limit of %d bytes", bombLimit).
			Value(bombLimit).
			Build()
	}
	return out, nil
}

// Compress encodes code as a prefixed zstd blob accepted by Uncompress.
func Compress(code []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return nil, errors.Module(errors.PhaseLoad, "create zstd encoder", err)
	}
	defer enc.Close()

	out := append([]byte{}, zstdPrefix...)
	return enc.EncodeAll(code, out), nil
}
