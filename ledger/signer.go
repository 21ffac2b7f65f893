// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/hwsigner/bip32path"
	"github.com/btcsuite/hwsigner/hwclient"
	"github.com/lightningnetwork/lnd/fn/v2"
)

var (
	// ErrNilPacket is returned when SignTx is called without a packet.
	ErrNilPacket = errors.New("nil psbt packet")
)

// signingMode identifies which of the device's two mutually exclusive
// signing protocols governs a transaction. The device cannot mix untrusted
// witness-value priming with trusted legacy priming within one
// transaction, so exactly one mode is selected up front and never changes.
type signingMode uint8

const (
	// modeNone means the transaction has no signable inputs.
	modeNone signingMode = iota

	// modeSegwit is selected whenever at least one input is witness
	// eligible. Legacy-only inputs present in the same transaction are
	// skipped during the signing pass.
	modeSegwit

	// modeLegacy is selected only when no input is witness eligible and
	// at least one input carries a full previous transaction.
	modeLegacy
)

// String returns the string representation of a signingMode.
func (m signingMode) String() string {
	switch m {
	case modeNone:
		return "none"

	case modeSegwit:
		return "segwit"

	case modeLegacy:
		return "legacy"

	default:
		return "unknown signing mode"
	}
}

// signatureAttempt pairs a derivation path known to belong to the device
// with the pubkey it produces, for one signature request on one input.
type signatureAttempt struct {
	path   bip32path.Path
	pubKey []byte
}

// signInput is the per-input state assembled while scanning the packet,
// before any signatures are requested. It is built once per transaction
// and only ever read afterwards.
type signInput struct {
	// frame carries the outpoint, amount, sequence and (for inputs
	// backed by a full previous transaction) the trusted-input token
	// handed to priming calls.
	frame SignInput

	// witness is true when the input can be signed under the witness
	// protocol.
	witness bool

	// scriptCode is the script this input's signature commits to. It is
	// resolved per input since script types may vary within one
	// transaction.
	scriptCode []byte

	// attempts holds one entry per key the device can sign this input
	// with. Each input owns a distinct slice.
	attempts []signatureAttempt
}

// SignTx asks the device to sign every input of the packet it holds keys
// for, attaching the produced signatures to the packet's partial signature
// slots in place.
//
// The pass is strictly ordered: the device keeps internal signing state
// across calls, so inputs are primed, finalized and signed in the exact
// sequence its protocol prescribes. A user rejection on the device aborts
// the pass with hwclient.ErrUserRejected; signatures already attached for
// earlier inputs are kept.
//
// This is part of the hwclient.Client interface.
func (c *Client) SignTx(ctx context.Context, packet *psbt.Packet) error {
	if packet == nil || packet.UnsignedTx == nil {
		return ErrNilPacket
	}
	tx := packet.UnsignedTx

	// The master fingerprint identifies which derivation entries in the
	// packet refer to keys on this device.
	masterFpr, err := c.MasterFingerprint(ctx)
	if err != nil {
		return err
	}

	changePath := detectChangePath(packet, masterFpr.Uint32())
	changePath.WhenSome(func(path bip32path.Path) {
		log.Debugf("Detected change output at path %v", path)
	})

	inputs, mode, err := c.scanInputs(ctx, packet, masterFpr.Uint32())
	if err != nil {
		return err
	}

	var rawTx bytes.Buffer
	if err := tx.Serialize(&rawTx); err != nil {
		return fmt.Errorf("unable to serialize transaction: %w", err)
	}

	log.Debugf("Signing transaction %v with %d input(s) in %v mode",
		tx.TxHash(), len(inputs), mode)

	switch mode {
	case modeSegwit:
		return c.signSegwit(
			ctx, packet, inputs, changePath, rawTx.Bytes(),
		)

	case modeLegacy:
		return c.signLegacy(
			ctx, packet, inputs, changePath, rawTx.Bytes(),
		)

	default:
		return nil
	}
}

// scanInputs walks the packet once, building the per-input signing state
// and choosing the signing mode for the whole transaction.
//
// Inputs backed by a full previous transaction additionally cost one
// trusted-input round-trip each, so that the tokens are available should
// legacy mode be selected.
func (c *Client) scanInputs(ctx context.Context, packet *psbt.Packet,
	masterFpr uint32) ([]signInput, signingMode, error) {

	tx := packet.UnsignedTx

	var hasSegwit, hasLegacy bool
	inputs := make([]signInput, len(tx.TxIn))
	for i, txIn := range tx.TxIn {
		pin := &packet.Inputs[i]
		in := &inputs[i]

		in.frame.OutPoint = txIn.PreviousOutPoint
		in.frame.Sequence = txIn.Sequence

		// Locate the output being spent. Either the full previous
		// transaction or a witness UTXO descriptor must be present;
		// without one the spent amount is unknown and signing cannot
		// proceed at all.
		var prevOut *wire.TxOut
		switch {
		case pin.NonWitnessUtxo != nil:
			prevIndex := txIn.PreviousOutPoint.Index
			prevTx := pin.NonWitnessUtxo
			if prevIndex >= uint32(len(prevTx.TxOut)) {
				return nil, modeNone, fmt.Errorf("input "+
					"%d: %w: previous transaction has "+
					"no output %d", i,
					hwclient.ErrMissingUtxoInfo,
					prevIndex)
			}
			prevOut = prevTx.TxOut[prevIndex]
			in.frame.Value = prevOut.Value

			trusted, err := c.cfg.Session.TrustedInput(
				ctx, prevTx, prevIndex,
			)
			if err != nil {
				return nil, modeNone, err
			}
			in.frame.Trusted = trusted

			// A full previous transaction may still fund a
			// witness spend, either directly or wrapped in a
			// script hash with the witness UTXO alongside.
			if txscript.IsWitnessProgram(prevOut.PkScript) ||
				pin.WitnessUtxo != nil {

				in.witness = true
				hasSegwit = true
			} else {
				hasLegacy = true
			}

		case pin.WitnessUtxo != nil:
			prevOut = pin.WitnessUtxo
			in.frame.Value = prevOut.Value
			in.witness = true
			hasSegwit = true

		default:
			return nil, modeNone, fmt.Errorf("input %d: %w", i,
				hwclient.ErrMissingUtxoInfo)
		}

		in.scriptCode = resolveScriptCode(pin, prevOut)
		in.attempts = collectAttempts(pin, in.scriptCode, masterFpr)
	}

	switch {
	case hasSegwit:
		return inputs, modeSegwit, nil

	case hasLegacy:
		return inputs, modeLegacy, nil

	default:
		return inputs, modeNone, nil
	}
}

// resolveScriptCode determines the script an input's signature commits to,
// given the UTXO descriptors and any redeem/witness scripts attached to
// the input.
func resolveScriptCode(pin *psbt.PInput, prevOut *wire.TxOut) []byte {
	var redeemScript, witnessProgram []byte
	switch {
	// A witness UTXO locked by a script hash spends through the redeem
	// script, which doubles as the witness program candidate.
	case pin.WitnessUtxo != nil &&
		txscript.IsPayToScriptHash(pin.WitnessUtxo.PkScript):

		redeemScript = pin.RedeemScript
		witnessProgram = pin.RedeemScript

	// A script-hash previous output likewise points at the redeem
	// script, but only as the witness program candidate's fallback.
	case pin.NonWitnessUtxo != nil &&
		txscript.IsPayToScriptHash(prevOut.PkScript):

		redeemScript = pin.RedeemScript

	// A plain witness UTXO is its own witness program.
	case pin.WitnessUtxo != nil:
		witnessProgram = pin.WitnessUtxo.PkScript
	}

	switch {
	// A version-0 witness script hash commits to the full witness
	// script carried separately in the input.
	case isWitnessScriptHash(witnessProgram):
		return pin.WitnessScript

	// Any other non-empty program is a pay-to-witness-pubkey-hash; its
	// signature commits to the standard pubkey-hash template around the
	// embedded 20 byte hash.
	case len(witnessProgram) > 0:
		return payToPubKeyHashScript(witnessProgram[2:])

	// No witness program: the redeem script if present, else the raw
	// previous output script.
	case len(redeemScript) > 0:
		return redeemScript

	default:
		return prevOut.PkScript
	}
}

// isWitnessScriptHash reports whether the script is a version-0
// pay-to-witness-script-hash program.
func isWitnessScriptHash(script []byte) bool {
	return len(script) == 34 &&
		script[0] == txscript.OP_0 &&
		script[1] == 0x20
}

// payToPubKeyHashScript synthesizes the canonical p2pkh locking script for
// the given pubkey hash.
func payToPubKeyHashScript(pubKeyHash []byte) []byte {
	// The builder cannot fail on a fixed five-element script.
	script, _ := txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(pubKeyHash).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		Script()

	return script
}

// collectAttempts returns one signature attempt per derivation entry whose
// pubkey actually participates in the scriptCode and whose declared master
// fingerprint matches this device. Each call allocates a fresh slice.
func collectAttempts(pin *psbt.PInput, scriptCode []byte,
	masterFpr uint32) []signatureAttempt {

	attempts := make([]signatureAttempt, 0, len(pin.Bip32Derivation))
	seen := fn.NewSet[string]()
	for _, deriv := range pin.Bip32Derivation {
		// The pubkey must appear in the scriptCode, by hash or
		// verbatim, for a signature with it to be of any use.
		if !bytes.Contains(scriptCode, btcutil.Hash160(deriv.PubKey)) &&
			!bytes.Contains(scriptCode, deriv.PubKey) {

			continue
		}

		if deriv.MasterKeyFingerprint != masterFpr {
			continue
		}

		if seen.Contains(string(deriv.PubKey)) {
			continue
		}
		seen.Add(string(deriv.PubKey))

		attempts = append(attempts, signatureAttempt{
			path:   bip32path.Path(deriv.Bip32Path),
			pubKey: deriv.PubKey,
		})
	}

	return attempts
}

// detectChangePath scans the transaction outputs for the one returning
// funds to this signer's own wallet, so the device can skip on-screen
// verification for it.
//
// An output qualifies only if a derivation entry matches the device's
// master fingerprint, follows the conventional internal-chain convention
// (second-to-last path element equal to 1), AND the claimed pubkey
// actually appears in the output's locking script, directly hashed or
// wrapped in a nested witness program. Derivation metadata alone is
// attacker influenceable; an entry that does not reproduce the script must
// never mark an output as change.
//
// When several outputs qualify, the last one scanned wins.
func detectChangePath(packet *psbt.Packet,
	masterFpr uint32) fn.Option[bip32path.Path] {

	changePath := fn.None[bip32path.Path]()
	for i, txOut := range packet.UnsignedTx.TxOut {
		for _, deriv := range packet.Outputs[i].Bip32Derivation {
			if deriv.MasterKeyFingerprint != masterFpr {
				continue
			}

			path := deriv.Bip32Path
			if len(path) < 3 || path[len(path)-2] != 1 {
				continue
			}

			keyHash := btcutil.Hash160(deriv.PubKey)
			nestedHash := btcutil.Hash160(append(
				[]byte{txscript.OP_0, 0x14}, keyHash...,
			))
			if !bytes.Contains(txOut.PkScript, keyHash) &&
				!bytes.Contains(txOut.PkScript, nestedHash) {

				continue
			}

			changePath = fn.Some(bip32path.Path(path))
		}
	}

	return changePath
}

// signSegwit runs the witness signing protocol: every input is primed once
// in order with a blank scriptCode, the serialized transaction is
// finalized once, and then each witness-eligible input is re-primed alone
// with its resolved scriptCode and signed per attempt.
func (c *Client) signSegwit(ctx context.Context, packet *psbt.Packet,
	inputs []signInput, changePath fn.Option[bip32path.Path],
	rawTx []byte) error {

	tx := packet.UnsignedTx
	session := c.cfg.Session

	frames := inputFrames(inputs)
	for i := range inputs {
		err := session.StartUntrustedTransaction(
			ctx, i == 0, i, frames, nil, tx.Version,
		)
		if err != nil {
			return err
		}
	}

	err := session.FinalizeInput(
		ctx, changePath.UnwrapOr(nil), rawTx,
	)
	if err != nil {
		return err
	}

	for i := range inputs {
		in := &inputs[i]

		// Inputs that can only be signed under the legacy protocol
		// are left for another signer.
		if !in.witness {
			continue
		}

		for _, attempt := range in.attempts {
			err := session.StartUntrustedTransaction(
				ctx, false, 0, []SignInput{in.frame},
				in.scriptCode, tx.Version,
			)
			if err != nil {
				return err
			}

			sig, err := session.UntrustedHashSign(
				ctx, attempt.path, tx.LockTime,
				txscript.SigHashAll,
			)
			if err != nil {
				return err
			}

			attachSignature(
				&packet.Inputs[i], attempt.pubKey, sig,
			)
		}
	}

	return nil
}

// signLegacy runs the trusted-input signing protocol: for every attempt on
// every input, the device is primed with the complete ordered trusted
// input set and that input's scriptCode, finalized, and asked for a
// signature. Only the very first priming call of the transaction carries
// the first-call marker.
func (c *Client) signLegacy(ctx context.Context, packet *psbt.Packet,
	inputs []signInput, changePath fn.Option[bip32path.Path],
	rawTx []byte) error {

	tx := packet.UnsignedTx
	session := c.cfg.Session

	frames := inputFrames(inputs)
	first := true
	for i := range inputs {
		in := &inputs[i]
		for _, attempt := range in.attempts {
			err := session.StartUntrustedTransaction(
				ctx, first, i, frames, in.scriptCode,
				tx.Version,
			)
			if err != nil {
				return err
			}
			first = false

			err = session.FinalizeInput(
				ctx, changePath.UnwrapOr(nil), rawTx,
			)
			if err != nil {
				return err
			}

			sig, err := session.UntrustedHashSign(
				ctx, attempt.path, tx.LockTime,
				txscript.SigHashAll,
			)
			if err != nil {
				return err
			}

			attachSignature(
				&packet.Inputs[i], attempt.pubKey, sig,
			)
		}
	}

	return nil
}

// inputFrames extracts the session-level input descriptions in input
// order.
func inputFrames(inputs []signInput) []SignInput {
	frames := make([]SignInput, len(inputs))
	for i := range inputs {
		frames[i] = inputs[i].frame
	}

	return frames
}

// attachSignature stores a produced signature in the input's partial
// signature slot for the given pubkey, replacing any previous signature by
// the same key.
func attachSignature(pin *psbt.PInput, pubKey, sig []byte) {
	for _, partial := range pin.PartialSigs {
		if bytes.Equal(partial.PubKey, pubKey) {
			partial.Signature = sig
			return
		}
	}

	pin.PartialSigs = append(pin.PartialSigs, &psbt.PartialSig{
		PubKey:    pubKey,
		Signature: sig,
	})
}
