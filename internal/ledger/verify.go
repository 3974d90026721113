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

package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrHashMismatch     = errors.New("stored hash does not match record contents")
	ErrBrokenLink       = errors.New("previous hash does not match predecessor")
	ErrInsufficientWork = errors.New("hash does not meet difficulty")
)

// IsValid reports whether every record after genesis has a reproducible
// hash, sufficient proof-of-work and a correct link to its predecessor
func (l *Ledger) IsValid() bool {
	return l.Verify() == nil
}

// Verify walks the chain from index 1 and returns the first violation found.
// Validity is recomputed on every call.
func (l *Ledger) Verify() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := 1; i < len(l.chain); i++ {
		curr := l.chain[i]
		prev := l.chain[i-1]
		hash, err := curr.ComputeHash()
		if err != nil {
			return fmt.Errorf("record %d: %w: %w", i, ErrHashMismatch, err)
		}
		if curr.Hash != hash {
			return fmt.Errorf("record %d: %w", i, ErrHashMismatch)
		}
		if !curr.MeetsDifficulty(l.difficulty) {
			return fmt.Errorf("record %d: %w", i, ErrInsufficientWork)
		}
		if curr.PrevHash != prev.Hash {
			return fmt.Errorf("record %d: %w", i, ErrBrokenLink)
		}
	}
	return nil
}
