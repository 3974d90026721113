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

// Package ledger implements an append-only, in-memory chain of records where
// every record after genesis links to its predecessor's hash and carries
// proof-of-work at the ledger's difficulty.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blinklabs-io/hashledger/internal/config"
	"github.com/blinklabs-io/hashledger/internal/metrics"
	"github.com/blinklabs-io/hashledger/internal/miner"
	"github.com/blinklabs-io/hashledger/internal/record"
)

const (
	DefaultDifficulty = 5

	GenesisTimestamp = "2018-09-18"
	GenesisPayload   = "Genesis Block"
)

var (
	ErrEmptyChain      = errors.New("chain is empty")
	ErrAlreadyAppended = errors.New("record is already in the chain")
)

// Miner finds a nonce satisfying the difficulty and commits it to the record
type Miner interface {
	Mine(ctx context.Context, rec *record.Record, difficulty int) error
}

type Ledger struct {
	mu         sync.RWMutex
	chain      []*record.Record
	difficulty int
	miner      Miner
	hashFunc   record.HashFunc
}

type LedgerOptionFunc func(*Ledger)

// WithDifficulty sets the number of leading zero hex characters required of
// every mined record. It cannot be changed afterward. New clamps the value to
// 0..miner.MaxDifficulty; use NewWithConfig to reject out of range values.
func WithDifficulty(difficulty int) LedgerOptionFunc {
	return func(l *Ledger) {
		l.difficulty = difficulty
	}
}

func WithMiner(m Miner) LedgerOptionFunc {
	return func(l *Ledger) {
		l.miner = m
	}
}

// WithHashFunc sets the hash function for the genesis record and for
// records created with NewRecord
func WithHashFunc(hashFunc record.HashFunc) LedgerOptionFunc {
	return func(l *Ledger) {
		l.hashFunc = hashFunc
	}
}

// New creates a ledger containing only the genesis record
func New(opts ...LedgerOptionFunc) *Ledger {
	l := &Ledger{
		difficulty: DefaultDifficulty,
		hashFunc:   record.SHA256,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.difficulty = min(max(l.difficulty, 0), miner.MaxDifficulty)
	if l.miner == nil {
		l.miner = miner.New()
	}
	genesis, err := record.New(
		0,
		GenesisTimestamp,
		GenesisPayload,
		record.ZeroHash,
		record.WithHashFunc(l.hashFunc),
	)
	if err != nil {
		// This should never happen
		panic(err.Error())
	}
	l.chain = append(l.chain, genesis)
	metrics.GetChainLength().Set(1)
	return l
}

// NewWithConfig creates a ledger and miner from the given config
func NewWithConfig(cfg *config.Config) (*Ledger, error) {
	if cfg.Ledger.Difficulty < 0 ||
		cfg.Ledger.Difficulty > miner.MaxDifficulty {
		return nil, fmt.Errorf(
			"%w: %d",
			miner.ErrInvalidDifficulty,
			cfg.Ledger.Difficulty,
		)
	}
	hashFunc, err := record.HashFuncByName(cfg.Ledger.HashAlgorithm)
	if err != nil {
		return nil, err
	}
	m := miner.New(
		miner.WithWorkerCount(cfg.Miner.WorkerCount),
		miner.WithMaxIterations(cfg.Miner.MaxIterations),
		miner.WithHashRateInterval(
			time.Duration(cfg.Miner.HashRateInterval)*time.Second,
		),
	)
	l := New(
		WithDifficulty(cfg.Ledger.Difficulty),
		WithMiner(m),
		WithHashFunc(hashFunc),
	)
	return l, nil
}

func (l *Ledger) Difficulty() int {
	return l.difficulty
}

// Latest returns the most recently appended record
func (l *Ledger) Latest() (*record.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.latest()
}

func (l *Ledger) latest() (*record.Record, error) {
	if len(l.chain) == 0 {
		return nil, ErrEmptyChain
	}
	return l.chain[len(l.chain)-1], nil
}

// NewRecord creates a record for the next index using the ledger's hash
// function. The record still needs to be passed to Append.
func (l *Ledger) NewRecord(timestamp string, payload any) (*record.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	tip, err := l.latest()
	if err != nil {
		return nil, err
	}
	return record.New(
		uint64(len(l.chain)),
		timestamp,
		payload,
		tip.Hash,
		record.WithHashFunc(l.hashFunc),
	)
}

// Append links the record to the current tip, mines it at the ledger
// difficulty and adds it to the chain. The chain is unchanged if mining
// fails.
func (l *Ledger) Append(ctx context.Context, rec *record.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, tmpRec := range l.chain {
		if tmpRec == rec {
			return fmt.Errorf("%w: index %d", ErrAlreadyAppended, rec.Index)
		}
	}
	tip, err := l.latest()
	if err != nil {
		return err
	}
	rec.PrevHash = tip.Hash
	// The previous hash is part of the hashed content
	if err := rec.RefreshHash(); err != nil {
		return err
	}
	if err := l.miner.Mine(ctx, rec, l.difficulty); err != nil {
		return fmt.Errorf("failed to mine record %d: %w", rec.Index, err)
	}
	l.chain = append(l.chain, rec)
	metrics.GetChainLength().Set(float64(len(l.chain)))
	return nil
}

// Len returns the number of records, including genesis
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.chain)
}

// Get returns the record at the given position. The record is not copied.
func (l *Ledger) Get(idx int) (*record.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if idx < 0 || idx >= len(l.chain) {
		return nil, fmt.Errorf("index %d out of range", idx)
	}
	return l.chain[idx], nil
}

// Records returns a copy of the chain slice. The records themselves are
// shared with the ledger.
func (l *Ledger) Records() []*record.Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ret := make([]*record.Record, len(l.chain))
	copy(ret, l.chain)
	return ret
}
