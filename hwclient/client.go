// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package hwclient defines the capability contract implemented by every
// supported hardware signing device family. Each family (Ledger, etc.)
// provides its own conforming type rather than overriding a common base;
// operations a device cannot perform return ErrUnsupported without any
// device interaction.
package hwclient

import (
	"context"
	"errors"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/hwsigner/bip32path"
)

var (
	// ErrUnsupported is returned by operations a device family cannot
	// perform in software, such as initial setup or a destructive wipe.
	// No device call is attempted for these.
	ErrUnsupported = errors.New(
		"operation not supported by this device",
	)

	// ErrMissingUtxoInfo is returned when a transaction input carries
	// neither a full previous transaction nor a witness UTXO. Without
	// either, the spent amount is unknown and signing cannot proceed.
	ErrMissingUtxoInfo = errors.New(
		"input is missing utxo information",
	)

	// ErrUserRejected is the sentinel a transport maps an explicit
	// on-device refusal to. It is surfaced to callers unmodified;
	// signatures collected for other inputs in the same pass are kept.
	ErrUserRejected = errors.New(
		"user rejected the operation on the device",
	)
)

// AddressFormat identifies how a device renders the address for a derived
// key on its screen.
type AddressFormat uint8

const (
	// FormatLegacy displays a pay-to-pubkey-hash address.
	FormatLegacy AddressFormat = iota

	// FormatNestedWitness displays a script-hash-wrapped
	// pay-to-witness-pubkey-hash address.
	FormatNestedWitness

	// FormatWitness displays a native witness (bech32) address.
	FormatWitness
)

// String returns the string representation of an AddressFormat.
func (f AddressFormat) String() string {
	switch f {
	case FormatLegacy:
		return "legacy"

	case FormatNestedWitness:
		return "nested-witness"

	case FormatWitness:
		return "witness"

	default:
		return "unknown address format"
	}
}

// Client is the interface to a single hardware signing device. All
// operations block until the device responds; the device holds a single
// serial command channel, so a Client must never be used concurrently.
//
// Failures fall into four kinds, distinguishable with errors.Is:
// ErrUnsupported, ErrMissingUtxoInfo, ErrUserRejected, and transport
// failures, which are propagated unmodified. No operation retries
// internally; a higher layer decides whether to repeat a whole pass.
type Client interface {
	// PubKeyAtPath returns the serialized extended public key at the
	// given derivation path. For non-root paths this costs one extra
	// device round-trip to learn the parent key fingerprint.
	PubKeyAtPath(ctx context.Context,
		path bip32path.Path) (string, error)

	// SignTx asks the device to sign every input of the packet it holds
	// keys for, attaching the produced signatures to the corresponding
	// partial signature slots in place. Inputs the device does not own
	// are left untouched for other signers.
	SignTx(ctx context.Context, packet *psbt.Packet) error

	// SignMessage signs an arbitrary message with the key at the given
	// path, returning the standard base64 compact signature. The device
	// displays the signing address for confirmation first.
	SignMessage(ctx context.Context, path bip32path.Path,
		message []byte) (string, error)

	// DisplayAddress shows the address at the given path on the device
	// screen for out-of-band verification.
	DisplayAddress(ctx context.Context, path bip32path.Path,
		format AddressFormat) error

	// SetupDevice initializes a brand new device, if the family supports
	// doing so over the wire.
	SetupDevice(ctx context.Context) error

	// WipeDevice factory-resets the device, if the family supports doing
	// so over the wire.
	WipeDevice(ctx context.Context) error

	// Close releases the underlying device session. The client must not
	// be used afterwards.
	Close() error
}
