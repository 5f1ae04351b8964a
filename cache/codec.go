package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
)

// =============================================================================
// Wire format
// =============================================================================

// wireEnvelope is the on-the-wire shape of an Envelope[T]. Instants are
// encoded as RFC3339 (a profile of ISO-8601) via time.Time's own JSON
// marshaling — never as epoch counts.
//
// ValueType is informational type-discriminator metadata: it records the Go
// type the value was encoded from, so a caller decoding into a generic
// container (map[string]any, any) can later recover the concrete shape via
// Coerce. It is never required for a caller that already knows T statically
// — json.Unmarshal into a concrete T works without it.
//
// Unknown fields (including legacy "fresh"/"stale"/"expired" predicate
// fields some encoders emit) are silently ignored by encoding/json on
// decode; this struct never declares them, so they round-trip away rather
// than erroring.
type wireEnvelope struct {
	Value        json.RawMessage `json:"value"`
	SoftExpireAt time.Time       `json:"soft_expire_at"`
	HardExpireAt time.Time       `json:"hard_expire_at"`
	ValueType    string          `json:"value_type,omitempty"`
}

// typeName returns a stable, human-readable discriminator for T.
func typeName[T any]() string {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		// T is an interface type (e.g. any); reflect.TypeOf(nil-ish zero)
		// can't recover it, so take the static type from a *T instead.
		return reflect.TypeOf((*T)(nil)).Elem().String()
	}
	return t.String()
}

// EncodeEnvelope serializes an Envelope[T] for storage. The remote-store TTL
// applied alongside this payload must equal e.TotalTTL(now) so the entry
// never outlives its own HardExpireAt.
func EncodeEnvelope[T any](e Envelope[T]) ([]byte, error) {
	valueBytes, err := json.Marshal(e.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: encode value: %v", ErrDecodeFailed, err)
	}
	we := wireEnvelope{
		Value:        valueBytes,
		SoftExpireAt: e.SoftExpireAt,
		HardExpireAt: e.HardExpireAt,
		ValueType:    typeName[T](),
	}
	return json.Marshal(we)
}

// DecodeEnvelope reconstructs an Envelope[T] from bytes written by
// EncodeEnvelope (or a legacy encoder emitting extra predicate fields).
//
// If the payload's value decodes directly into T, that result is returned.
// Otherwise (e.g. the remote store's client handed back a generic container
// rather than the concrete type) the value is decoded generically and
// reflectively coerced into T via Coerce. A failed coercion is reported as
// ErrDecodeFailed, which every strategy treats as a miss, never a fatal
// error.
func DecodeEnvelope[T any](data []byte) (Envelope[T], error) {
	var we wireEnvelope
	if err := json.Unmarshal(data, &we); err != nil {
		return Envelope[T]{}, fmt.Errorf("%w: envelope: %v", ErrDecodeFailed, err)
	}
	value, err := decodeValueBytes[T](we.Value)
	if err != nil {
		return Envelope[T]{}, err
	}
	return Envelope[T]{
		Value:        value,
		SoftExpireAt: we.SoftExpireAt,
		HardExpireAt: we.HardExpireAt,
	}, nil
}

// EncodeValue serializes a bare payload (the format used by Basic, Jitter,
// and JitterLock, which rely on the remote store's own TTL rather than an
// Envelope).
func EncodeValue[T any](value T) ([]byte, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: encode value: %v", ErrDecodeFailed, err)
	}
	return b, nil
}

// DecodeValue reconstructs a bare payload of type T, applying the same
// direct-decode-then-coerce fallback as DecodeEnvelope.
func DecodeValue[T any](data []byte) (T, error) {
	return decodeValueBytes[T](data)
}

// decodeValueBytes tries a direct typed decode first (the common, cheap
// path); if the bytes don't unmarshal directly into T — because they decode
// as a generic map/slice shape instead of T's concrete fields — it falls
// back to a generic decode followed by reflective coercion.
func decodeValueBytes[T any](raw json.RawMessage) (T, error) {
	var value T
	if len(raw) == 0 || string(raw) == "null" {
		return value, nil
	}
	if err := json.Unmarshal(raw, &value); err == nil {
		return value, nil
	}

	// Direct decode failed. Decode generically and reflectively coerce —
	// this is the path a dynamically-typed remote-store client would force
	// on every read; here it's only exercised as a fallback.
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return value, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	coerced, err := Coerce[T](generic)
	if err != nil {
		return value, fmt.Errorf("%w: coerce: %v", ErrDecodeFailed, err)
	}
	return coerced, nil
}

// Coerce reflectively converts a generically-decoded value (typically
// map[string]any, []any, or a scalar from encoding/json) into T. On
// failure the caller treats the result as a cache miss, not an error.
func Coerce[T any](generic any) (T, error) {
	var target T

	// Scalars and types json already produced directly need no coercion.
	if v, ok := generic.(T); ok {
		return v, nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &target,
		WeaklyTypedInput: true,
		TagName:          "json",
	})
	if err != nil {
		return target, fmt.Errorf("%w: build coercion decoder: %v", ErrDecodeFailed, err)
	}
	if err := decoder.Decode(generic); err != nil {
		return target, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	return target, nil
}
