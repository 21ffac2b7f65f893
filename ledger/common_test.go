// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/hwsigner/bip32path"
	"github.com/btcsuite/hwsigner/pkg/xkey"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	// chainParams are the chain parameters used throughout the ledger
	// tests.
	chainParams = chaincfg.RegressionNetParams
)

// testDevice bundles a client under test with its mocked session and the
// fake on-device master key.
type testDevice struct {
	session   *mockSession
	client    *Client
	masterKey *btcec.PrivateKey
	masterFpr xkey.Fingerprint
}

// newTestDevice creates a Client wired to a mock session, along with a
// deterministic fake master key.
func newTestDevice(t *testing.T) *testDevice {
	t.Helper()

	session := &mockSession{}
	client, err := New(Config{
		Session:     session,
		ChainParams: &chainParams,
	})
	require.NoError(t, err)

	masterKey := testPrivKey(t, 0x01)
	masterFpr := xkey.NewFingerprint(
		masterKey.PubKey().SerializeCompressed(),
	)

	t.Cleanup(func() {
		session.AssertExpectations(t)
	})

	return &testDevice{
		session:   session,
		client:    client,
		masterKey: masterKey,
		masterFpr: masterFpr,
	}
}

// expectMasterKey arranges for one root public key request, which SignTx
// issues to learn the master fingerprint.
func (d *testDevice) expectMasterKey() {
	d.session.On(
		"WalletPublicKey", mock.Anything, bip32path.Path{},
		(*KeyDisplay)(nil),
	).Return(&WalletPublicKey{
		PublicKey: d.masterKey.PubKey().SerializeUncompressed(),
		ChainCode: testChainCode(0xcc),
	}, nil).Once()
}

// testPrivKey derives a deterministic private key from a seed byte.
func testPrivKey(t *testing.T, seed byte) *btcec.PrivateKey {
	t.Helper()

	var scalar [32]byte
	for i := range scalar {
		scalar[i] = seed
	}
	privKey, _ := btcec.PrivKeyFromBytes(scalar[:])
	require.NotNil(t, privKey)

	return privKey
}

// testChainCode returns a 32 byte chain code filled with the given byte.
func testChainCode(fill byte) []byte {
	chainCode := make([]byte, 32)
	for i := range chainCode {
		chainCode[i] = fill
	}

	return chainCode
}

// p2wpkhScript builds a native version-0 witness program for the given
// compressed pubkey.
func p2wpkhScript(pubKey []byte) []byte {
	return append([]byte{0x00, 0x14}, btcutil.Hash160(pubKey)...)
}

// testPacket builds an unsigned transaction skeleton with the given number
// of inputs and outputs, each input spending output 0 of a distinct fake
// previous transaction.
func testPacket(numInputs, numOutputs int) *psbt.Packet {
	tx := wire.NewMsgTx(2)
	for i := 0; i < numInputs; i++ {
		prevHash := chainhash.Hash{byte(i + 1)}
		tx.AddTxIn(wire.NewTxIn(
			wire.NewOutPoint(&prevHash, 0), nil, nil,
		))
	}
	for i := 0; i < numOutputs; i++ {
		tx.AddTxOut(wire.NewTxOut(int64(90000-i), []byte{
			0x6a, 0x01, byte(i),
		}))
	}

	return &psbt.Packet{
		UnsignedTx: tx,
		Inputs:     make([]psbt.PInput, numInputs),
		Outputs:    make([]psbt.POutput, numOutputs),
	}
}

// serializeTx returns the wire serialization of the packet's unsigned
// transaction, as handed to the device's finalize call.
func serializeTx(t *testing.T, packet *psbt.Packet) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, packet.UnsignedTx.Serialize(&buf))

	return buf.Bytes()
}
