// Package codec compresses persisted state blobs (decision cache entries,
// exported queues). Payloads are JSON, snappy block-encoded, behind a
// one-byte format header so the encoding can evolve.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang/snappy"

	"github.com/jackchouchani/inventoryApp-sub001/internal/model"
)

const (
	formatSnappyJSON byte = 0x01
)

// ErrEmpty is wrapped when Decompress is handed no bytes at all
var ErrEmpty = errors.New("empty payload")

// Compress serialises v to JSON and snappy-compresses it
func Compress(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal: %w", err)
	}
	enc := snappy.Encode(nil, raw)
	out := make([]byte, 0, len(enc)+1)
	out = append(out, formatSnappyJSON)
	return append(out, enc...), nil
}

// Decompress reverses Compress into v. Any header, snappy or JSON failure is
// reported as a CorruptedStateError.
func Decompress(data []byte, v any) error {
	if len(data) == 0 {
		return &model.CorruptedStateError{What: "codec payload", Err: ErrEmpty}
	}
	if data[0] != formatSnappyJSON {
		return &model.CorruptedStateError{What: "codec payload", Err: fmt.Errorf("unknown format header 0x%02x", data[0])}
	}
	raw, err := snappy.Decode(nil, data[1:])
	if err != nil {
		return &model.CorruptedStateError{What: "codec payload", Err: err}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &model.CorruptedStateError{What: "codec payload", Err: err}
	}
	return nil
}
