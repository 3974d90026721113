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
	"time"
)

type MiningResult struct {
	Index    uint64
	Hash     string
	Nonce    uint64
	Attempts uint64
	Duration time.Duration
}

// Observer is notified after a nonce has been committed to a record
type Observer interface {
	RecordMined(MiningResult)
}

type ObserverFunc func(MiningResult)

func (f ObserverFunc) RecordMined(result MiningResult) {
	f(result)
}

type logObserver struct {
	miner *Miner
}

func (o *logObserver) RecordMined(result MiningResult) {
	o.miner.getLogger().Infof(
		"record mined: %s (index %d, nonce %d, %d hashes in %s)",
		result.Hash,
		result.Index,
		result.Nonce,
		result.Attempts,
		result.Duration,
	)
}
