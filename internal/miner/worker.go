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

package miner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blinklabs-io/hashledger/internal/record"
)

type result struct {
	nonce uint64
	hash  string
}

// search runs one nonce search across the miner's workers. Worker i tries
// start+i, start+i+N, start+i+2N, ... so no nonce is hashed twice.
type search struct {
	miner            *Miner
	hasher           func(uint64) string
	startNonce       uint64
	difficulty       int
	workerWaitGroup  sync.WaitGroup
	doneChan         chan any
	stopOnce         sync.Once
	resultChan       chan result
	hashCounter      *atomic.Uint64
	hashLogMutex     sync.Mutex
	hashLogTimer     *time.Timer
	hashLogLastCount uint64
}

func newSearch(
	m *Miner,
	hasher func(uint64) string,
	startNonce uint64,
	difficulty int,
) *search {
	return &search{
		miner:       m,
		hasher:      hasher,
		startNonce:  startNonce,
		difficulty:  difficulty,
		doneChan:    make(chan any),
		resultChan:  make(chan result, m.workerCount),
		hashCounter: &atomic.Uint64{},
	}
}

func (s *search) run(ctx context.Context) (result, error) {
	if s.miner.hashRateInterval > 0 {
		s.scheduleHashRateLog()
	}
	for i := range s.miner.workerCount {
		s.workerWaitGroup.Add(1)
		go s.worker(i)
	}
	allDoneChan := make(chan any)
	go func() {
		s.workerWaitGroup.Wait()
		close(allDoneChan)
	}()
	// Wait for result
	select {
	case res := <-s.resultChan:
		s.stop()
		return res, nil
	case <-ctx.Done():
		s.stop()
		return result{}, ctx.Err()
	case <-allDoneChan:
		s.stop()
		// The last worker may have found a result just before exiting
		select {
		case res := <-s.resultChan:
			return res, nil
		default:
		}
		return result{}, ErrMiningTimeout
	}
}

func (s *search) worker(workerIdx int) {
	defer s.workerWaitGroup.Done()
	maxIterations := s.miner.maxIterations
	step := uint64(s.miner.workerCount) // #nosec G115
	nonce := s.startNonce + uint64(workerIdx) // #nosec G115
	for {
		// Check for shutdown
		select {
		case <-s.doneChan:
			return
		default:
		}
		if count := s.hashCounter.Add(1); maxIterations > 0 &&
			count > maxIterations {
			s.hashCounter.Add(^uint64(0))
			return
		}
		hash := s.hasher(nonce)
		if record.HasLeadingZeros(hash, s.difficulty) {
			// The channel has room for one result per worker
			s.resultChan <- result{nonce: nonce, hash: hash}
			return
		}
		nonce += step
	}
}

// stop signals all workers and waits for them to exit
func (s *search) stop() {
	s.stopOnce.Do(func() {
		close(s.doneChan)
		s.workerWaitGroup.Wait()
		s.hashLogMutex.Lock()
		defer s.hashLogMutex.Unlock()
		if s.hashLogTimer != nil {
			s.hashLogTimer.Stop()
			s.hashLogTimer = nil
		}
	})
}

func (s *search) attempts() uint64 {
	return s.hashCounter.Load()
}

func (s *search) scheduleHashRateLog() {
	s.hashLogMutex.Lock()
	defer s.hashLogMutex.Unlock()
	select {
	case <-s.doneChan:
		return
	default:
	}
	s.hashLogTimer = time.AfterFunc(
		s.miner.hashRateInterval,
		s.hashRateLog,
	)
}

func (s *search) hashRateLog() {
	hashCount := s.hashCounter.Load()
	hashCountDiff := hashCount - s.hashLogLastCount
	s.hashLogLastCount = hashCount
	hashCountPerSec := float64(hashCountDiff) / s.miner.hashRateInterval.Seconds()
	s.miner.getLogger().Infof("hash rate: %.0f/s", hashCountPerSec)
	s.scheduleHashRateLog()
}
