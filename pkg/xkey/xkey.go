// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package xkey assembles serialized BIP32 extended public keys from the
// raw key material reported by a hardware signing device. Devices return
// an uncompressed public key and a chain code; the remaining fields of the
// serialization (version, depth, parent fingerprint, child number) have to
// be reconstructed by the caller.
package xkey

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	// chainCodeLen is the length of a BIP32 chain code.
	chainCodeLen = 32

	// compressedKeyLen is the length of a compressed secp256k1 public
	// key.
	compressedKeyLen = 33

	// checksumLen is the length of the trailing double-SHA256 checksum.
	checksumLen = 4
)

var (
	// ErrInvalidChainCode is returned when the chain code reported by a
	// device does not have the expected 32 byte length.
	ErrInvalidChainCode = errors.New("chain code must be 32 bytes")

	// ErrInvalidPubKey is returned when the public key material cannot
	// be interpreted as a secp256k1 point.
	ErrInvalidPubKey = errors.New("invalid public key")
)

// Fingerprint is the first four bytes of the hash160 of a compressed
// public key, used as the parent and master key identifiers in BIP32
// serializations and PSBT derivation fields.
type Fingerprint [4]byte

// NewFingerprint computes the fingerprint of the given compressed public
// key.
func NewFingerprint(compressedKey []byte) Fingerprint {
	var fpr Fingerprint
	copy(fpr[:], btcutil.Hash160(compressedKey))

	return fpr
}

// Uint32 returns the fingerprint in the little-endian integer form used by
// the PSBT Bip32Derivation field.
func (f Fingerprint) Uint32() uint32 {
	return binary.LittleEndian.Uint32(f[:])
}

// String returns the fingerprint as big-endian hex, the conventional
// display form.
func (f Fingerprint) String() string {
	return fmt.Sprintf("%x", f[:])
}

// CompressPubKey converts a public key in any of the secp256k1 wire forms
// (typically the 65 byte uncompressed form returned by devices) into the
// 33 byte parity-prefixed compressed form.
func CompressPubKey(rawKey []byte) ([]byte, error) {
	pubKey, err := btcec.ParsePubKey(rawKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPubKey, err)
	}

	return pubKey.SerializeCompressed(), nil
}

// Serialize assembles and base58-encodes an extended public key from its
// raw fields. The version bytes are taken from the network's HD public key
// ID (0x0488B21E for mainnet, 0x043587CF for testnet), and the trailing
// checksum is the first four bytes of the double-SHA256 of everything that
// precedes it.
func Serialize(params *chaincfg.Params, depth uint8, parentFpr Fingerprint,
	childNum uint32, chainCode, compressedKey []byte) (string, error) {

	if len(chainCode) != chainCodeLen {
		return "", fmt.Errorf("%w: got %d bytes", ErrInvalidChainCode,
			len(chainCode))
	}
	if len(compressedKey) != compressedKeyLen {
		return "", fmt.Errorf("%w: expected %d byte compressed key, "+
			"got %d bytes", ErrInvalidPubKey, compressedKeyLen,
			len(compressedKey))
	}

	var buf bytes.Buffer
	buf.Write(params.HDPublicKeyID[:])
	buf.WriteByte(depth)
	buf.Write(parentFpr[:])

	var child [4]byte
	binary.BigEndian.PutUint32(child[:], childNum)
	buf.Write(child[:])

	buf.Write(chainCode)
	buf.Write(compressedKey)

	checksum := chainhash.DoubleHashB(buf.Bytes())[:checksumLen]
	buf.Write(checksum)

	return base58.Encode(buf.Bytes()), nil
}
