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

package record

import (
	"fmt"
	"strings"

	"github.com/minio/sha256-simd"
	"golang.org/x/crypto/blake2b"
)

const (
	// HashSize is the length in characters of a hex encoded digest
	HashSize = 64
)

// ZeroHash is the previous hash of the genesis record
var ZeroHash = strings.Repeat("0", HashSize)

// HashFunc produces a 256-bit digest of its input
type HashFunc func(data []byte) [32]byte

// SHA256 uses github.com/minio/sha256-simd, which falls back to the
// generic implementation on CPUs without SHA extensions
func SHA256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

func Blake2b256(data []byte) [32]byte {
	return blake2b.Sum256(data)
}

// HashFuncByName returns the hash function for a config algorithm name
func HashFuncByName(name string) (HashFunc, error) {
	switch strings.ToLower(name) {
	case "", "sha256":
		return SHA256, nil
	case "blake2b", "blake2b-256":
		return Blake2b256, nil
	default:
		return nil, fmt.Errorf("unknown hash algorithm: %s", name)
	}
}

// HasLeadingZeros reports whether the first n characters of a hex encoded
// hash are all '0'
func HasLeadingZeros(hash string, n int) bool {
	if n <= 0 {
		return true
	}
	if n > len(hash) {
		return false
	}
	for i := range n {
		if hash[i] != '0' {
			return false
		}
	}
	return true
}
