package rpc

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

func gobEncode(v *Envelope) []byte {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		panic(fmt.Sprintf("rpc: envelope must always be gob-encodable: %v", err))
	}
	return buf.Bytes()
}

func gobDecode(body []byte) (*Envelope, error) {
	var env Envelope
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &env, nil
}

// idempotentResult wraps a reply payload for storage in the idempotency
// ledger; gob requires a concrete, registered type on both sides of an any.
type idempotentResult struct {
	Value any
}

func encodeIdempotentResult(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(idempotentResult{Value: v}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeIdempotentResult(blob []byte) (any, error) {
	var wrapped idempotentResult
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&wrapped); err != nil {
		return nil, fmt.Errorf("decode idempotent result: %w", err)
	}
	return wrapped.Value, nil
}

func init() {
	gob.Register(idempotentResult{})
}
