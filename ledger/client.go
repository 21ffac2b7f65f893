// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package ledger implements the hwclient.Client contract for the Ledger
// device family. It translates between the standard key and transaction
// formats (BIP32 extended keys, PSBT packets) and the device's stateful
// APDU-level signing protocol, which is reached through the Session
// interface provided by the transport layer.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/hwsigner/bip32path"
	"github.com/btcsuite/hwsigner/hwclient"
	"github.com/btcsuite/hwsigner/pkg/xkey"
)

var (
	// ErrNilSession is returned when a client is constructed without an
	// open device session.
	ErrNilSession = errors.New("nil device session")

	// ErrNilChainParams is returned when a client is constructed
	// without network parameters.
	ErrNilChainParams = errors.New("nil chain params")
)

// Config bundles the dependencies of a Client.
type Config struct {
	// Session is the open command channel to the device. The client
	// takes exclusive ownership and closes it on Close.
	Session Session

	// ChainParams identifies the network the client operates on. It
	// selects the extended key version bytes.
	ChainParams *chaincfg.Params
}

// Client drives a Ledger device. It implements hwclient.Client.
//
// The device holds a single serial command channel and mutable signing
// state, so a Client must not be used from more than one goroutine, and
// multiple transactions must be signed strictly one after another.
type Client struct {
	cfg Config
}

// A compile time check to ensure Client satisfies the device capability
// contract.
var _ hwclient.Client = (*Client)(nil)

// New creates a Client around an open device session.
func New(cfg Config) (*Client, error) {
	if cfg.Session == nil {
		return nil, ErrNilSession
	}
	if cfg.ChainParams == nil {
		return nil, ErrNilChainParams
	}

	return &Client{cfg: cfg}, nil
}

// PubKeyAtPath returns the serialized extended public key at the given
// derivation path.
//
// The device only reports a raw public key and chain code, so the
// remaining serialization fields are reconstructed here: for a non-root
// path the parent key is fetched in exactly one extra round-trip to
// compute the parent fingerprint, and the child number is taken from the
// final path element.
//
// This is part of the hwclient.Client interface.
func (c *Client) PubKeyAtPath(ctx context.Context,
	path bip32path.Path) (string, error) {

	result, err := c.cfg.Session.WalletPublicKey(ctx, path, nil)
	if err != nil {
		return "", err
	}

	compressedKey, err := xkey.CompressPubKey(result.PublicKey)
	if err != nil {
		return "", fmt.Errorf("device returned unusable key at "+
			"path %v: %w", path, err)
	}

	var (
		depth     uint8
		parentFpr xkey.Fingerprint
		childNum  uint32
	)
	if path.Depth() > 0 {
		parent, err := c.cfg.Session.WalletPublicKey(
			ctx, path.Parent(), nil,
		)
		if err != nil {
			return "", err
		}

		parentKey, err := xkey.CompressPubKey(parent.PublicKey)
		if err != nil {
			return "", fmt.Errorf("device returned unusable "+
				"parent key at path %v: %w", path.Parent(),
				err)
		}

		depth = uint8(path.Depth())
		parentFpr = xkey.NewFingerprint(parentKey)
		childNum = path.ChildNumber()
	}

	return xkey.Serialize(
		c.cfg.ChainParams, depth, parentFpr, childNum,
		result.ChainCode, compressedKey,
	)
}

// MasterFingerprint returns the fingerprint of the device's master key,
// used to recognize this signer's entries in PSBT derivation fields.
func (c *Client) MasterFingerprint(
	ctx context.Context) (xkey.Fingerprint, error) {

	result, err := c.cfg.Session.WalletPublicKey(
		ctx, bip32path.Path{}, nil,
	)
	if err != nil {
		return xkey.Fingerprint{}, err
	}

	masterKey, err := xkey.CompressPubKey(result.PublicKey)
	if err != nil {
		return xkey.Fingerprint{}, fmt.Errorf("device returned "+
			"unusable master key: %w", err)
	}

	return xkey.NewFingerprint(masterKey), nil
}

// DisplayAddress shows the address at the given path on the device screen
// and waits for the user to confirm it.
//
// This is part of the hwclient.Client interface.
func (c *Client) DisplayAddress(ctx context.Context, path bip32path.Path,
	format hwclient.AddressFormat) error {

	_, err := c.cfg.Session.WalletPublicKey(ctx, path, &KeyDisplay{
		Confirm: true,
		Format:  format,
	})

	return err
}

// SetupDevice reports that Ledger devices cannot be initialized in
// software; setup happens on the device itself.
//
// This is part of the hwclient.Client interface.
func (c *Client) SetupDevice(ctx context.Context) error {
	return fmt.Errorf("%w: the ledger does not support software setup",
		hwclient.ErrUnsupported)
}

// WipeDevice reports that Ledger devices cannot be wiped in software.
//
// This is part of the hwclient.Client interface.
func (c *Client) WipeDevice(ctx context.Context) error {
	return fmt.Errorf("%w: the ledger does not support wiping via "+
		"software", hwclient.ErrUnsupported)
}

// Close releases the device session.
//
// This is part of the hwclient.Client interface.
func (c *Client) Close() error {
	return c.cfg.Session.Close()
}
