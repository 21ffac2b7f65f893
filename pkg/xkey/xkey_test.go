// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package xkey

import (
	"encoding/binary"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
)

// testKeyMaterial generates a compressed public key and chain code the way
// a device would report them.
func testKeyMaterial(t *testing.T) ([]byte, []byte) {
	t.Helper()

	privKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	chainCode := make([]byte, 32)
	for i := range chainCode {
		chainCode[i] = byte(i + 1)
	}

	return privKey.PubKey().SerializeCompressed(), chainCode
}

// TestSerializeRoundTrip checks that a serialized extended key decodes back
// to the exact fields it was assembled from.
func TestSerializeRoundTrip(t *testing.T) {
	t.Parallel()

	compressedKey, chainCode := testKeyMaterial(t)
	parentFpr := Fingerprint{0xaa, 0xbb, 0xcc, 0xdd}

	testCases := []struct {
		name     string
		params   *chaincfg.Params
		depth    uint8
		fpr      Fingerprint
		childNum uint32
		prefix   string
	}{
		{
			name:     "mainnet depth 3 hardened child",
			params:   &chaincfg.MainNetParams,
			depth:    3,
			fpr:      parentFpr,
			childNum: 0 + hdkeychain.HardenedKeyStart,
			prefix:   "xpub",
		},
		{
			name:   "testnet root",
			params: &chaincfg.TestNet3Params,
			prefix: "tpub",
		},
		{
			name:     "mainnet unhardened child",
			params:   &chaincfg.MainNetParams,
			depth:    5,
			fpr:      parentFpr,
			childNum: 7,
			prefix:   "xpub",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			encoded, err := Serialize(
				tc.params, tc.depth, tc.fpr, tc.childNum,
				chainCode, compressedKey,
			)
			require.NoError(t, err)
			require.Equal(t, tc.prefix, encoded[:4])

			// Parsing with hdkeychain validates the checksum and
			// proves the result is a well formed extended public
			// key.
			decoded, err := hdkeychain.NewKeyFromString(encoded)
			require.NoError(t, err)

			require.False(t, decoded.IsPrivate())
			require.Equal(t, tc.depth, decoded.Depth())
			require.Equal(
				t, binary.BigEndian.Uint32(tc.fpr[:]),
				decoded.ParentFingerprint(),
			)

			pubKey, err := decoded.ECPubKey()
			require.NoError(t, err)
			require.Equal(
				t, compressedKey,
				pubKey.SerializeCompressed(),
			)

			// Check the remaining fields at the byte level:
			// version(4) depth(1) parentFpr(4) childNum(4)
			// chainCode(32) pubKey(33) checksum(4).
			raw := base58.Decode(encoded)
			require.Len(t, raw, 82)
			require.Equal(
				t, tc.params.HDPublicKeyID[:], raw[:4],
			)
			require.Equal(
				t, tc.childNum,
				binary.BigEndian.Uint32(raw[9:13]),
			)
			require.Equal(t, chainCode, raw[13:45])
			require.Equal(
				t, chainhash.DoubleHashB(raw[:78])[:4],
				raw[78:],
			)
		})
	}
}

// TestChecksumDetectsCorruption checks that flipping any single byte of a
// serialized extended key invalidates its checksum.
func TestChecksumDetectsCorruption(t *testing.T) {
	t.Parallel()

	compressedKey, chainCode := testKeyMaterial(t)

	encoded, err := Serialize(
		&chaincfg.MainNetParams, 1, Fingerprint{1, 2, 3, 4}, 0,
		chainCode, compressedKey,
	)
	require.NoError(t, err)

	raw := base58.Decode(encoded)
	require.NotEmpty(t, raw)

	for i := range raw {
		corrupted := make([]byte, len(raw))
		copy(corrupted, raw)
		corrupted[i] ^= 0x01

		_, err := hdkeychain.NewKeyFromString(
			base58.Encode(corrupted),
		)
		require.Error(t, err, "flipped byte %d went undetected", i)
	}
}

// TestSerializeRejectsBadMaterial checks the field length validation.
func TestSerializeRejectsBadMaterial(t *testing.T) {
	t.Parallel()

	compressedKey, chainCode := testKeyMaterial(t)

	_, err := Serialize(
		&chaincfg.MainNetParams, 0, Fingerprint{}, 0, chainCode[:31],
		compressedKey,
	)
	require.ErrorIs(t, err, ErrInvalidChainCode)

	_, err = Serialize(
		&chaincfg.MainNetParams, 0, Fingerprint{}, 0, chainCode,
		compressedKey[:32],
	)
	require.ErrorIs(t, err, ErrInvalidPubKey)
}

// TestCompressPubKey checks uncompressed to compressed conversion and the
// rejection of garbage key material.
func TestCompressPubKey(t *testing.T) {
	t.Parallel()

	privKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	compressed, err := CompressPubKey(
		privKey.PubKey().SerializeUncompressed(),
	)
	require.NoError(t, err)
	require.Equal(
		t, privKey.PubKey().SerializeCompressed(), compressed,
	)

	_, err = CompressPubKey([]byte{0x04, 0x01, 0x02})
	require.ErrorIs(t, err, ErrInvalidPubKey)
}
