package mqtt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// maxInflatedSize caps the decompressed size of a single payload.
const maxInflatedSize = 16 << 20

// gzipMagic is the two-byte gzip member header.
var gzipMagic = []byte{0x1f, 0x8b}

// Decompress returns the inflated form of a robot payload.
//
// Payloads starting with the gzip magic are gunzipped; anything else is
// tried as a zlib stream. When neither applies the input is returned
// unchanged, so plain JSON passes through untouched. Decompress never panics.
func Decompress(payload []byte) []byte {
	if bytes.HasPrefix(payload, gzipMagic) {
		if out, err := gunzip(payload); err == nil {
			return out
		}
		return payload
	}
	if out, err := inflate(payload); err == nil {
		return out
	}
	return payload
}

func gunzip(payload []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(io.LimitReader(r, maxInflatedSize))
}

func inflate(payload []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(io.LimitReader(r, maxInflatedSize))
}

// DecodePayload decompresses payload and parses it as a JSON object.
//
// Returns:
//   - map[string]any: The decoded object
//   - []byte: The decompressed bytes (useful for logging)
//   - error: ErrInvalidPayload if the bytes are not a JSON object
func DecodePayload(payload []byte) (map[string]any, []byte, error) {
	raw := Decompress(payload)

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, raw, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if obj == nil {
		return nil, raw, fmt.Errorf("%w: null", ErrInvalidPayload)
	}
	return obj, raw, nil
}
