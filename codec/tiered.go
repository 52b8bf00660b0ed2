package codec

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Tiered encodes with msgpack (the fast tier) and, only if that fails,
// falls back to cbor (the portable tier). Decode tries msgpack first, then
// cbor; see Decode for when a cbor-encoded payload round-trips.
type Tiered[T any] struct{}

func (Tiered[T]) Encode(v T) ([]byte, error) {
	b, err := msgpack.Marshal(v)
	if err == nil {
		return b, nil
	}
	b, cerr := cbor.Marshal(v)
	if cerr != nil {
		return nil, fmt.Errorf("codec: fast tier failed (%v), portable tier failed (%w)", err, cerr)
	}
	return b, nil
}

// Decode tries msgpack first, then cbor. Neither format is self-identifying
// here, so Decode cannot tell which tier produced b: msgpack output always
// round-trips, but cbor output reaches the cbor tier only when msgpack
// rejects it, and msgpack can sometimes decode cbor bytes "successfully"
// into wrong field values instead of erroring.
func (Tiered[T]) Decode(b []byte) (T, error) {
	var v T
	if err := msgpack.Unmarshal(b, &v); err == nil {
		return v, nil
	}
	if err := cbor.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("codec: decode failed in both tiers: %w", err)
	}
	return v, nil
}
