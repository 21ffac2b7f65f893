// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package bip32path provides a small representation of BIP32 derivation
// paths as they are exchanged with hardware signing devices and PSBT
// derivation fields.
package bip32path

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

var (
	// ErrMaxDepthExceeded is returned when a path has more than 255
	// elements. A BIP32 key serializes its depth in a single byte, so
	// deeper paths cannot be represented.
	ErrMaxDepthExceeded = errors.New("path exceeds maximum bip32 depth")

	// ErrMissingPrefix is returned when a parsed path does not begin with
	// the "m" (or "M") master key marker.
	ErrMissingPrefix = errors.New("path must begin with m")
)

const (
	// masterPrefix marks the root of the key tree in string paths.
	masterPrefix = "m"

	// hardenedSymbol is the canonical marker emitted by String for
	// hardened elements. Parse additionally accepts "h" and "H".
	hardenedSymbol = "'"

	// maxDepth is the deepest path representable in a serialized BIP32
	// key.
	maxDepth = math.MaxUint8
)

// Path is an ordered sequence of BIP32 child indices leading from a master
// key to a derived key. Hardened elements carry the high bit
// (hdkeychain.HardenedKeyStart), matching both the serialized key format
// and the PSBT Bip32Derivation field. The root path is empty.
type Path []uint32

// Parse converts a human readable derivation path such as "m/84'/0'/0/1"
// into a Path. The hardened markers "'", "h" and "H" are accepted
// interchangeably. "m" alone denotes the root path.
func Parse(path string) (Path, error) {
	segments := strings.Split(path, "/")
	if !strings.EqualFold(segments[0], masterPrefix) {
		return nil, fmt.Errorf("%w: %q", ErrMissingPrefix, path)
	}
	segments = segments[1:]

	// "m/" with a trailing slash and nothing after it is rejected by the
	// element parser below, but a bare "m" is the valid root path.
	if len(segments) > maxDepth {
		return nil, fmt.Errorf("%w: %d elements",
			ErrMaxDepthExceeded, len(segments))
	}

	indices := make(Path, len(segments))
	for i, segment := range segments {
		var hardened bool
		switch {
		case strings.HasSuffix(segment, hardenedSymbol),
			strings.HasSuffix(segment, "h"),
			strings.HasSuffix(segment, "H"):

			hardened = true
			segment = segment[:len(segment)-1]
		}

		// Indices are limited to 31 bits; the 32nd bit is the
		// hardened marker.
		index, err := strconv.ParseUint(segment, 10, 31)
		if err != nil {
			return nil, fmt.Errorf("invalid path element %q: %w",
				segments[i], err)
		}

		indices[i] = uint32(index)
		if hardened {
			indices[i] += hdkeychain.HardenedKeyStart
		}
	}

	return indices, nil
}

// Depth returns the number of elements in the path. The root path has a
// depth of zero.
func (p Path) Depth() int {
	return len(p)
}

// Parent returns the path with the final element removed. The parent of
// the root path is the root path itself.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return p
	}

	return p[:len(p)-1]
}

// ChildNumber returns the final element of the path, with the hardened bit
// still set where applicable. It returns zero for the root path, matching
// the all-zero child number field of a serialized master key.
func (p Path) ChildNumber() uint32 {
	if len(p) == 0 {
		return 0
	}

	return p[len(p)-1]
}

// String encodes the path in the canonical human readable form, e.g.
// "m/84'/1'/0/2". The root path encodes as "m".
func (p Path) String() string {
	segments := make([]string, 1+len(p))
	segments[0] = masterPrefix

	for i, index := range p {
		if index >= hdkeychain.HardenedKeyStart {
			segments[1+i] = strconv.FormatUint(
				uint64(index-hdkeychain.HardenedKeyStart), 10,
			) + hardenedSymbol

			continue
		}

		segments[1+i] = strconv.FormatUint(uint64(index), 10)
	}

	return strings.Join(segments, "/")
}
