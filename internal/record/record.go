// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package record implements the hash-linked unit stored in the ledger.
//
// A record's hash covers its index, previous hash, timestamp, payload and
// nonce. The payload may be any value CBOR can encode; it is encoded in
// Core Deterministic form so that equal maps always hash identically, with
// times as RFC 3339 strings at nanosecond precision. Payloads containing
// reference cycles, or structs with unexported fields that the encoder would
// silently drop, are rejected with ErrHashSerialization.
package record

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var ErrHashSerialization = errors.New("payload cannot be canonically serialized")

var encMode cbor.EncMode

func init() {
	opts := cbor.CoreDetEncOptions()
	// The default Unix seconds encoding drops sub-second precision and zone
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		// This should never happen
		panic(err.Error())
	}
	encMode = em
}

type Record struct {
	Index     uint64 `yaml:"index"`
	Timestamp string `yaml:"timestamp"`
	Payload   any    `yaml:"payload"`
	PrevHash  string `yaml:"prevHash"`
	Hash      string `yaml:"hash"`
	Nonce     uint64 `yaml:"nonce"`
	hashFunc  HashFunc
}

type RecordOptionFunc func(*Record)

// WithHashFunc overrides the default SHA-256 hash function
func WithHashFunc(hashFunc HashFunc) RecordOptionFunc {
	return func(r *Record) {
		r.hashFunc = hashFunc
	}
}

// New creates a record with a zero nonce and computes its initial hash
func New(
	index uint64,
	timestamp string,
	payload any,
	prevHash string,
	opts ...RecordOptionFunc,
) (*Record, error) {
	r := &Record{
		Index:     index,
		Timestamp: timestamp,
		Payload:   payload,
		PrevHash:  prevHash,
		hashFunc:  SHA256,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.hashFunc == nil {
		r.hashFunc = SHA256
	}
	if err := r.RefreshHash(); err != nil {
		return nil, err
	}
	return r, nil
}

// ComputeHash returns the hex encoded digest of the record's current fields.
// It does not modify the record.
func (r *Record) ComputeHash() (string, error) {
	hasher, err := r.NonceHasher()
	if err != nil {
		return "", err
	}
	return hasher(r.Nonce), nil
}

// RefreshHash sets Hash to the digest of the record's current fields
func (r *Record) RefreshHash() error {
	hash, err := r.ComputeHash()
	if err != nil {
		return err
	}
	r.Hash = hash
	return nil
}

// NonceHasher encodes every hashed field except the nonce once and returns a
// function producing the record hash for an arbitrary nonce. Later changes to
// the record are not seen by the returned function.
func (r *Record) NonceHasher() (func(nonce uint64) string, error) {
	prefix, err := r.encodePrefix()
	if err != nil {
		return nil, err
	}
	hashFunc := r.hashFunc
	if hashFunc == nil {
		hashFunc = SHA256
	}
	return func(nonce uint64) string {
		buf := make([]byte, 0, len(prefix)+10)
		buf = append(buf, prefix...)
		buf = appendNonce(buf, nonce)
		// End indefinite length array
		buf = append(buf, 0xff)
		sum := hashFunc(buf)
		return hex.EncodeToString(sum[:])
	}, nil
}

// MeetsDifficulty reports whether the stored hash satisfies the proof-of-work
// predicate for the given difficulty
func (r *Record) MeetsDifficulty(difficulty int) bool {
	return HasLeadingZeros(r.Hash, difficulty)
}

// Clone returns a shallow copy of the record. The payload is shared.
func (r *Record) Clone() *Record {
	tmp := *r
	return &tmp
}

func (r *Record) String() string {
	return fmt.Sprintf(
		"Record{index: %d, hash: %s, prevHash: %s, nonce: %d}",
		r.Index,
		r.Hash,
		r.PrevHash,
		r.Nonce,
	)
}

func (r *Record) encodePrefix() ([]byte, error) {
	tmp := []byte{
		// Indefinite length array
		0x9f,
	}
	if err := checkPayload(r.Payload); err != nil {
		return nil, err
	}
	for _, val := range []any{
		r.Index,
		r.PrevHash,
		r.Timestamp,
		r.Payload,
	} {
		data, err := encMode.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrHashSerialization, err)
		}
		tmp = append(tmp, data...)
	}
	return tmp, nil
}

// appendNonce appends the shortest-form CBOR unsigned integer encoding
func appendNonce(buf []byte, nonce uint64) []byte {
	switch {
	case nonce < 24:
		return append(buf, byte(nonce))
	case nonce <= 0xff:
		return append(buf, 0x18, byte(nonce))
	case nonce <= 0xffff:
		return append(buf, 0x19, byte(nonce>>8), byte(nonce))
	case nonce <= 0xffffffff:
		return append(
			buf,
			0x1a,
			byte(nonce>>24),
			byte(nonce>>16),
			byte(nonce>>8),
			byte(nonce),
		)
	default:
		return append(
			buf,
			0x1b,
			byte(nonce>>56),
			byte(nonce>>48),
			byte(nonce>>40),
			byte(nonce>>32),
			byte(nonce>>24),
			byte(nonce>>16),
			byte(nonce>>8),
			byte(nonce),
		)
	}
}
