// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest of artifact content.
type Hash [32]byte

// contentDomainKey is the fixed key for BLAKE3 keyed hashing of
// artifact content. Domain separation keeps artifact hashes from
// colliding with hashes of the same bytes computed elsewhere. The
// byte values are the ASCII encoding of the domain name, zero-padded
// to 32 bytes, so the key is inspectable in hex dumps.
var contentDomainKey = [32]byte{
	'c', 'o', 'n', 'v', 'e', 'y', 'o', 'r', '.', 'a', 'r', 't', 'i', 'f', 'a', 'c',
	't', '.', 'c', 'o', 'n', 't', 'e', 'n', 't', 0, 0, 0, 0, 0, 0, 0,
}

// refHexLength is the number of hex characters of the content hash
// carried in an artifact reference.
const refHexLength = 12

// HashContent computes the content-domain BLAKE3 keyed hash of the
// given bytes. All artifact references are derived from this hash.
func HashContent(data []byte) Hash {
	hasher, err := blake3.NewKeyed(contentDomainKey[:])
	if err != nil {
		// NewKeyed only fails on a wrong-sized key; ours is a
		// compile-time constant.
		panic(fmt.Sprintf("blake3.NewKeyed: %v", err))
	}
	_, _ = hasher.Write(data)
	var out Hash
	hasher.Sum(out[:0])
	return out
}

// String returns the full 64-character hex encoding of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Ref returns the short artifact reference for this hash, of the
// form "art-<12 hex chars>".
func (h Hash) Ref() string {
	return "art-" + hex.EncodeToString(h[:])[:refHexLength]
}

// ValidRef reports whether ref has the shape of an artifact
// reference. It does not check that the artifact exists.
func ValidRef(ref string) bool {
	suffix, ok := strings.CutPrefix(ref, "art-")
	if !ok || len(suffix) != refHexLength {
		return false
	}
	_, err := hex.DecodeString(suffix)
	return err == nil
}
