package prompt

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// ToJSON serializes a Parsed document to its canonical JSON form.
func (p *Parsed) ToJSON() ([]byte, error) {
	return json.Marshal(p)
}

// FromJSON deserializes a Parsed document from JSON.
func FromJSON(data []byte) (*Parsed, error) {
	p := newParsed()
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("prompt: unmarshal json: %w", err)
	}
	return p, nil
}

// binaryEnvelope pairs a gob-encoded payload with a blake2b-256 checksum so
// a corrupted cache file is detected instead of silently misparsed.
type binaryEnvelope struct {
	Checksum [32]byte
	Payload  []byte
}

// ToBinary serializes a Parsed document to the compact gob+blake2b form
// used for on-disk prompt caches.
func (p *Parsed) ToBinary() ([]byte, error) {
	var payloadBuf bytes.Buffer
	if err := gob.NewEncoder(&payloadBuf).Encode(p); err != nil {
		return nil, fmt.Errorf("prompt: gob encode: %w", err)
	}
	sum := blake2b.Sum256(payloadBuf.Bytes())

	var out bytes.Buffer
	if err := gob.NewEncoder(&out).Encode(binaryEnvelope{Checksum: sum, Payload: payloadBuf.Bytes()}); err != nil {
		return nil, fmt.Errorf("prompt: gob encode envelope: %w", err)
	}
	return out.Bytes(), nil
}

// FromBinary deserializes and checksum-verifies a document produced by
// ToBinary.
func FromBinary(data []byte) (*Parsed, error) {
	var env binaryEnvelope
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&env); err != nil {
		return nil, fmt.Errorf("prompt: gob decode envelope: %w", err)
	}
	if blake2b.Sum256(env.Payload) != env.Checksum {
		return nil, fmt.Errorf("prompt: checksum mismatch, cache corrupted")
	}

	p := newParsed()
	if err := gob.NewDecoder(bytes.NewReader(env.Payload)).Decode(p); err != nil {
		return nil, fmt.Errorf("prompt: gob decode payload: %w", err)
	}
	return p, nil
}
