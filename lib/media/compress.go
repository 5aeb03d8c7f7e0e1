// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package media

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the algorithm applied to a stored blob.
// Values are stored in blob headers (1 byte each) — changing them
// breaks existing stores.
type Compression uint8

const (
	// CompressionNone stores bytes as-is. Right for content that is
	// already compressed (photos, video), where recompression costs
	// CPU for nothing.
	CompressionNone Compression = 0

	// CompressionLZ4 is the fast default for unknown or mixed
	// content (~1.5-2x ratio, very cheap decode).
	CompressionLZ4 Compression = 1

	// CompressionZstd compresses at level 3. Better ratios for
	// text-like content (documents, exports, sidecar files).
	CompressionZstd Compression = 2
)

// String returns the compression name, satisfying fmt.Stringer.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression parses a compression name.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("media: unknown compression %q", name)
	}
}

// compress applies the algorithm and returns the compressed bytes.
// CompressionNone returns the input unchanged (no copy).
func compress(data []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionNone:
		return data, nil

	case CompressionLZ4:
		// Block-mode LZ4. CompressBlockBound covers the worst case;
		// a zero return means the data is incompressible, which LZ4
		// signals rather than erroring.
		bound := lz4.CompressBlockBound(len(data))
		compressed := make([]byte, bound)
		n, err := lz4.CompressBlock(data, compressed, nil)
		if err != nil {
			return nil, fmt.Errorf("media: lz4 compression: %w", err)
		}
		if n == 0 || n >= len(data) {
			return nil, errIncompressible
		}
		return compressed[:n], nil

	case CompressionZstd:
		compressed := zstdEncoder.EncodeAll(data, nil)
		if len(compressed) >= len(data) {
			return nil, errIncompressible
		}
		return compressed, nil

	default:
		return nil, fmt.Errorf("media: unsupported compression %d", c)
	}
}

// zstdEncoder and zstdDecoder are reused across calls to avoid
// repeated initialization overhead. Both are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("media: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("media: zstd decoder initialization failed: " + err.Error())
	}
}

// errIncompressible signals that compression did not reduce size;
// the caller falls back to CompressionNone for that blob.
var errIncompressible = fmt.Errorf("media: data is incompressible")

// decompress reverses compress. rawSize must match the original
// length exactly; a mismatch is corruption and returns an error.
func decompress(compressed []byte, c Compression, rawSize int) ([]byte, error) {
	switch c {
	case CompressionNone:
		if len(compressed) != rawSize {
			return nil, fmt.Errorf("media: stored size %d does not match recorded size %d", len(compressed), rawSize)
		}
		return compressed, nil

	case CompressionLZ4:
		raw := make([]byte, rawSize)
		n, err := lz4.UncompressBlock(compressed, raw)
		if err != nil {
			return nil, fmt.Errorf("media: lz4 decompression: %w", err)
		}
		if n != rawSize {
			return nil, fmt.Errorf("media: lz4 produced %d bytes, want %d", n, rawSize)
		}
		return raw, nil

	case CompressionZstd:
		raw, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, rawSize))
		if err != nil {
			return nil, fmt.Errorf("media: zstd decompression: %w", err)
		}
		if len(raw) != rawSize {
			return nil, fmt.Errorf("media: zstd produced %d bytes, want %d", len(raw), rawSize)
		}
		return raw, nil

	default:
		return nil, fmt.Errorf("media: unsupported compression %d", c)
	}
}
