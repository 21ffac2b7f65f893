// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/btcsuite/hwsigner/bip32path"
)

var (
	// ErrMalformedSignature is returned when the recoverable signature
	// blob produced by the device cannot be parsed.
	ErrMalformedSignature = errors.New(
		"malformed signature returned by device",
	)
)

// compactSigHeaderOffset is the base value of the compact signature header
// byte: 27 for a recoverable key plus 4 to flag a compressed,
// P2WPKH-compatible key. The recovery bit from the device is added on top.
// Existing verifiers depend on this exact offset.
const compactSigHeaderOffset = 27 + 4

// SignMessage signs an arbitrary message with the key at the given path
// and returns the standard base64 compact signature.
//
// The device first displays the signing address for the user to confirm,
// then runs its two-phase message signing. The returned DER-style blob is
// converted to the compact wire format: header byte, then the two
// signature components normalized to their canonical width by stripping
// the single high-order padding byte the device adds when a component is
// 33 bytes long.
//
// This is part of the hwclient.Client interface.
func (c *Client) SignMessage(ctx context.Context, path bip32path.Path,
	message []byte) (string, error) {

	// Show the user which address they are signing for before anything
	// is committed.
	_, err := c.cfg.Session.WalletPublicKey(ctx, path, &KeyDisplay{
		Confirm: true,
	})
	if err != nil {
		return "", err
	}

	err = c.cfg.Session.SignMessagePrepare(ctx, path, message)
	if err != nil {
		return "", err
	}

	blob, err := c.cfg.Session.SignMessageFinal(ctx)
	if err != nil {
		return "", err
	}

	sig, err := compactFromRecoverableSig(blob)
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(sig), nil
}

// compactFromRecoverableSig converts the device's recoverable signature
// blob into the compact message signature form. The blob layout is
// sequence-style: the byte at offset 3 holds the length of the first
// component, followed by the component itself, a type byte, the second
// component's length and the second component. The low bit of the very
// first byte carries the recovery information.
func compactFromRecoverableSig(blob []byte) ([]byte, error) {
	if len(blob) < 4 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedSignature,
			len(blob))
	}

	rLen := int(blob[3])
	if len(blob) < 4+rLen+2 {
		return nil, fmt.Errorf("%w: first component length %d "+
			"exceeds blob", ErrMalformedSignature, rLen)
	}
	r := blob[4 : 4+rLen]

	sLen := int(blob[4+rLen+1])
	s := blob[4+rLen+2:]
	if len(s) != sLen {
		return nil, fmt.Errorf("%w: second component length %d "+
			"does not match remaining %d bytes",
			ErrMalformedSignature, sLen, len(s))
	}

	// A component serialized as 33 bytes carries a single high-order
	// zero padding byte that the compact format does not use.
	if rLen == 33 {
		r = r[1:]
	}
	if sLen == 33 {
		s = s[1:]
	}

	sig := make([]byte, 0, 1+len(r)+len(s))
	sig = append(sig, compactSigHeaderOffset+(blob[0]&0x01))
	sig = append(sig, r...)
	sig = append(sig, s...)

	return sig, nil
}
