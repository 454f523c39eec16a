package evm

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	chaindomain "github.com/smallbiznis/tugas/internal/chain/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEth struct {
	tx         *types.Transaction
	pending    bool
	txErr      error
	receipt    *types.Receipt
	receiptErr error
	header     *types.Header
	block      uint64
	blockErr   error
	chainID    *big.Int
	chainCalls int
}

func (f *fakeEth) TransactionByHash(context.Context, common.Hash) (*types.Transaction, bool, error) {
	return f.tx, f.pending, f.txErr
}

func (f *fakeEth) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return f.receipt, f.receiptErr
}

func (f *fakeEth) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return f.header, nil
}

func (f *fakeEth) BlockNumber(context.Context) (uint64, error) {
	return f.block, f.blockErr
}

func (f *fakeEth) ChainID(context.Context) (*big.Int, error) {
	f.chainCalls++
	return f.chainID, nil
}

const testReference = "0x9fc76417374aa880d4449a1f7f31ec597f00b1f6f3dd2d66f4c9c6c445836d8b"

func signedTransfer(t *testing.T, chainID *big.Int, to common.Address, wei int64) (*types.Transaction, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     1,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(10),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(wei),
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	require.NoError(t, err)
	return signed, crypto.PubkeyToAddress(key.PublicKey)
}

func TestValidator(t *testing.T) {
	v := NewValidator()
	assert.NoError(t, v.ValidateAddress("0x52908400098527886E0F7030069857D2E4169EE7"))
	assert.NoError(t, v.ValidateReference(testReference))

	for _, address := range []string{"", "52908400098527886E0F7030069857D2E4169EE7", "0x1234", "0xZZ908400098527886E0F7030069857D2E4169EE7"} {
		assert.ErrorIs(t, v.ValidateAddress(address), chaindomain.ErrInvalidFormat, address)
	}
	for _, reference := range []string{"", testReference[2:], testReference[:64], "0x" + strings.Repeat("g", 64)} {
		assert.ErrorIs(t, v.ValidateReference(reference), chaindomain.ErrInvalidFormat, reference)
	}
}

func TestNormalizeAddressUsesChecksum(t *testing.T) {
	v := NewValidator()
	assert.Equal(t,
		"0x52908400098527886E0F7030069857D2E4169EE7",
		v.NormalizeAddress("0x52908400098527886e0f7030069857d2e4169ee7"),
	)
}

func TestNormalizeReferenceIsCaseInsensitive(t *testing.T) {
	v := NewValidator()
	upper := "0X" + strings.ToUpper(testReference[2:])
	require.NoError(t, v.ValidateReference(upper))
	assert.Equal(t, testReference, v.NormalizeReference(upper))
	assert.Equal(t, testReference, v.NormalizeReference("  "+testReference+" "))
	assert.Equal(t, "0xzz", v.NormalizeReference("0xzz"))
}

func TestFetchTransactionExtractsNativeTransfer(t *testing.T) {
	chainID := big.NewInt(11155111)
	recipient := common.HexToAddress("0x52908400098527886E0F7030069857D2E4169EE7")
	tx, sender := signedTransfer(t, chainID, recipient, 1_000_000)

	api := &fakeEth{
		tx:      tx,
		receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(500)},
		header:  &types.Header{Number: big.NewInt(500), Time: 1_700_000_000},
		chainID: chainID,
	}
	client := newClient(chaindomain.NetworkStaging, api)

	got, err := client.FetchTransaction(context.Background(), testReference)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), got.Slot)
	assert.False(t, got.Failed)
	require.NotNil(t, got.Timestamp)
	assert.Equal(t, int64(1_700_000_000), got.Timestamp.Unix())
	require.Len(t, got.Transfers, 1)
	assert.Equal(t, sender.Hex(), got.Transfers[0].From)
	assert.Equal(t, recipient.Hex(), got.Transfers[0].To)
	assert.Equal(t, uint64(1_000_000), got.Transfers[0].Amount.Uint64())

	_, err = client.FetchTransaction(context.Background(), testReference)
	require.NoError(t, err)
	assert.Equal(t, 1, api.chainCalls)
}

func TestFetchTransactionFailedReceipt(t *testing.T) {
	chainID := big.NewInt(1)
	tx, _ := signedTransfer(t, chainID, common.HexToAddress("0x52908400098527886E0F7030069857D2E4169EE7"), 5)
	api := &fakeEth{
		tx:      tx,
		receipt: &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(9)},
		header:  &types.Header{Number: big.NewInt(9)},
		chainID: chainID,
	}

	got, err := newClient(chaindomain.NetworkProduction, api).FetchTransaction(context.Background(), testReference)
	require.NoError(t, err)
	assert.True(t, got.Failed)
}

func TestFetchTransactionMapsErrors(t *testing.T) {
	client := newClient(chaindomain.NetworkTest, &fakeEth{txErr: ethereum.NotFound})
	_, err := client.FetchTransaction(context.Background(), testReference)
	assert.ErrorIs(t, err, chaindomain.ErrNotFound)

	client = newClient(chaindomain.NetworkTest, &fakeEth{pending: true, tx: types.NewTx(&types.LegacyTx{})})
	_, err = client.FetchTransaction(context.Background(), testReference)
	assert.ErrorIs(t, err, chaindomain.ErrNotFound)

	client = newClient(chaindomain.NetworkTest, &fakeEth{txErr: errors.New("dial tcp: connection refused")})
	_, err = client.FetchTransaction(context.Background(), testReference)
	assert.ErrorIs(t, err, chaindomain.ErrTransient)

	_, err = client.FetchTransaction(context.Background(), "0x1234")
	assert.ErrorIs(t, err, chaindomain.ErrInvalidFormat)
}

func TestCurrentSlot(t *testing.T) {
	slot, err := newClient(chaindomain.NetworkTest, &fakeEth{block: 1234}).CurrentSlot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1234), slot)

	_, err = newClient(chaindomain.NetworkTest, &fakeEth{blockErr: errors.New("timeout")}).CurrentSlot(context.Background())
	assert.ErrorIs(t, err, chaindomain.ErrTransient)
}
