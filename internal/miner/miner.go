// Copyright 2023 Blink Labs Software
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

package miner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blinklabs-io/hashledger/internal/logging"
	"github.com/blinklabs-io/hashledger/internal/metrics"
	"github.com/blinklabs-io/hashledger/internal/record"
)

const (
	// MaxDifficulty is the number of characters in a hex encoded hash
	MaxDifficulty = record.HashSize
)

var (
	ErrMiningTimeout     = errors.New("mining exceeded the maximum number of iterations")
	ErrInvalidDifficulty = errors.New("invalid difficulty")
)

type Miner struct {
	workerCount      int
	maxIterations    uint64
	hashRateInterval time.Duration
	observer         Observer
	logger           *logging.Logger
}

type MinerOptionFunc func(*Miner)

// WithWorkerCount sets the number of goroutines searching disjoint nonce
// ranges. A single worker visits nonces in increasing order.
func WithWorkerCount(workerCount int) MinerOptionFunc {
	return func(m *Miner) {
		m.workerCount = workerCount
	}
}

// WithMaxIterations caps the total number of hash evaluations per search.
// Zero means no limit.
func WithMaxIterations(maxIterations uint64) MinerOptionFunc {
	return func(m *Miner) {
		m.maxIterations = maxIterations
	}
}

// WithHashRateInterval enables periodic hash rate logging during a search
func WithHashRateInterval(interval time.Duration) MinerOptionFunc {
	return func(m *Miner) {
		m.hashRateInterval = interval
	}
}

// WithObserver replaces the default observer, which logs each mined hash
func WithObserver(observer Observer) MinerOptionFunc {
	return func(m *Miner) {
		m.observer = observer
	}
}

func WithLogger(logger *logging.Logger) MinerOptionFunc {
	return func(m *Miner) {
		m.logger = logger
	}
}

func New(opts ...MinerOptionFunc) *Miner {
	m := &Miner{
		workerCount: 1,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.workerCount < 1 {
		m.workerCount = 1
	}
	if m.observer == nil {
		m.observer = &logObserver{miner: m}
	}
	return m
}

// Mine searches for a nonce, starting from the record's current nonce, whose
// hash has difficulty leading zeros. On success the nonce and hash are
// committed to the record and the observer is notified. On failure the
// record is left unmodified.
func (m *Miner) Mine(
	ctx context.Context,
	rec *record.Record,
	difficulty int,
) error {
	if difficulty < 0 || difficulty > MaxDifficulty {
		return fmt.Errorf("%w: %d", ErrInvalidDifficulty, difficulty)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	hasher, err := rec.NonceHasher()
	if err != nil {
		return err
	}
	startTime := time.Now()
	s := newSearch(m, hasher, rec.Nonce, difficulty)
	res, err := s.run(ctx)
	metrics.GetHashes().Add(float64(s.attempts()))
	if err != nil {
		return err
	}
	elapsed := time.Since(startTime)
	rec.Nonce = res.nonce
	rec.Hash = res.hash
	metrics.GetRecordsMined().Inc()
	metrics.GetMiningDuration().Observe(elapsed.Seconds())
	m.observer.RecordMined(
		MiningResult{
			Index:    rec.Index,
			Hash:     res.hash,
			Nonce:    res.nonce,
			Attempts: s.attempts(),
			Duration: elapsed,
		},
	)
	return nil
}

func (m *Miner) WorkerCount() int {
	return m.workerCount
}

func (m *Miner) getLogger() *logging.Logger {
	if m.logger != nil {
		return m.logger
	}
	return logging.GetLogger()
}
