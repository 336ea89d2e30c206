package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Archiver stores JSON values zstd-compressed in bytea columns.
// It is safe for concurrent use.
type Archiver struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewArchiver creates an archiver with the default compression level.
func NewArchiver() (*Archiver, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &Archiver{encoder: encoder, decoder: decoder}, nil
}

// Pack marshals v to JSON and compresses it.
func (a *Archiver) Pack(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal archive: %w", err)
	}
	return a.encoder.EncodeAll(raw, nil), nil
}

// Unpack decompresses data and unmarshals it into dst.
func (a *Archiver) Unpack(data []byte, dst any) error {
	raw, err := a.decoder.DecodeAll(data, nil)
	if err != nil {
		return fmt.Errorf("decompress archive: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("unmarshal archive: %w", err)
	}
	return nil
}
