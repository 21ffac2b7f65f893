// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ledger

import (
	"context"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/hwsigner/bip32path"
	"github.com/stretchr/testify/mock"
)

// mockSession is a testify mock for the device command channel.
type mockSession struct {
	mock.Mock
}

func (m *mockSession) WalletPublicKey(ctx context.Context,
	path bip32path.Path, display *KeyDisplay) (*WalletPublicKey, error) {

	args := m.Called(ctx, path, display)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*WalletPublicKey), args.Error(1)
}

func (m *mockSession) TrustedInput(ctx context.Context, prevTx *wire.MsgTx,
	outputIndex uint32) ([]byte, error) {

	args := m.Called(ctx, prevTx, outputIndex)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockSession) StartUntrustedTransaction(ctx context.Context,
	newTransaction bool, inputIndex int, inputs []SignInput,
	scriptCode []byte, txVersion int32) error {

	args := m.Called(
		ctx, newTransaction, inputIndex, inputs, scriptCode,
		txVersion,
	)

	return args.Error(0)
}

func (m *mockSession) FinalizeInput(ctx context.Context,
	changePath bip32path.Path, rawTx []byte) error {

	args := m.Called(ctx, changePath, rawTx)

	return args.Error(0)
}

func (m *mockSession) UntrustedHashSign(ctx context.Context,
	path bip32path.Path, lockTime uint32,
	sigHash txscript.SigHashType) ([]byte, error) {

	args := m.Called(ctx, path, lockTime, sigHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockSession) SignMessagePrepare(ctx context.Context,
	path bip32path.Path, message []byte) error {

	args := m.Called(ctx, path, message)

	return args.Error(0)
}

func (m *mockSession) SignMessageFinal(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockSession) Close() error {
	args := m.Called()

	return args.Error(0)
}
