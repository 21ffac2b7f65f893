// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import (
	"context"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/hwsigner/bip32path"
	"github.com/btcsuite/hwsigner/hwclient"
)

// KeyDisplay controls whether a WalletPublicKey call additionally renders
// the derived address on the device screen and waits for the user to
// confirm it.
type KeyDisplay struct {
	// Confirm requests on-screen display and confirmation.
	Confirm bool

	// Format selects the address encoding shown to the user.
	Format hwclient.AddressFormat
}

// WalletPublicKey is the device's response to a public key request.
type WalletPublicKey struct {
	// PublicKey is the raw uncompressed secp256k1 public key.
	PublicKey []byte

	// ChainCode is the 32 byte BIP32 chain code.
	ChainCode []byte

	// Address is the device-computed address for the key, encoded per
	// the display options of the request.
	Address string
}

// SignInput describes one transaction input for a priming call. Untrusted
// witness priming uses the outpoint, amount and sequence; trusted legacy
// priming substitutes the opaque token obtained from TrustedInput.
type SignInput struct {
	// OutPoint references the output being spent.
	OutPoint wire.OutPoint

	// Value is the amount of the spent output in satoshis.
	Value int64

	// Sequence is the input's sequence number.
	Sequence uint32

	// Trusted is the token proving the device has verified the amount,
	// set only for inputs backed by a full previous transaction.
	Trusted []byte
}

// Session is the serial command channel to a Ledger device. The concrete
// implementation lives in the USB/HID transport layer and encodes each
// method as one or more APDU exchanges.
//
// The device keeps mutable signing state across calls: a
// StartUntrustedTransaction call primes the input set every subsequent
// hash-sign operation works on. Callers must therefore issue these methods
// strictly in the order the signing protocol prescribes and never share a
// session between goroutines.
//
// Any method may return an error wrapping hwclient.ErrUserRejected when
// the user refuses the operation on the device; all other failures are
// transport errors and are returned as-is.
type Session interface {
	// WalletPublicKey returns the raw public key and chain code at the
	// given path, optionally displaying the address for confirmation.
	WalletPublicKey(ctx context.Context, path bip32path.Path,
		display *KeyDisplay) (*WalletPublicKey, error)

	// TrustedInput has the device parse the full previous transaction
	// and returns an opaque token vouching for the amount of the output
	// at the given index.
	TrustedInput(ctx context.Context, prevTx *wire.MsgTx,
		outputIndex uint32) ([]byte, error)

	// StartUntrustedTransaction primes the device's signing state with
	// the given input set. newTransaction marks the first priming call
	// of a transaction; inputIndex selects which input of the set the
	// subsequent operations relate to. The scriptCode may be empty
	// during the initial witness priming pass.
	StartUntrustedTransaction(ctx context.Context, newTransaction bool,
		inputIndex int, inputs []SignInput, scriptCode []byte,
		txVersion int32) error

	// FinalizeInput transfers the outputs of the transaction being
	// signed, along with the derivation path of the detected change
	// output (nil when there is none) so the device can skip on-screen
	// verification for it.
	FinalizeInput(ctx context.Context, changePath bip32path.Path,
		rawTx []byte) error

	// UntrustedHashSign signs the currently primed input with the key
	// at the given path and returns the raw signature blob, with the
	// sighash type byte already appended by the device.
	UntrustedHashSign(ctx context.Context, path bip32path.Path,
		lockTime uint32, sigHash txscript.SigHashType) ([]byte, error)

	// SignMessagePrepare loads a message for signing with the key at
	// the given path.
	SignMessagePrepare(ctx context.Context, path bip32path.Path,
		message []byte) error

	// SignMessageFinal completes a prepared message signature and
	// returns the device's recoverable signature blob.
	SignMessageFinal(ctx context.Context) ([]byte, error)

	// Close releases the underlying transport.
	Close() error
}
