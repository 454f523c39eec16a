package solana

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	chaindomain "github.com/smallbiznis/tugas/internal/chain/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRPC struct {
	result  *rpc.GetTransactionResult
	err     error
	slot    uint64
	slotErr error
	opts    *rpc.GetTransactionOpts
}

func (f *fakeRPC) GetTransaction(_ context.Context, _ solanago.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	f.opts = opts
	return f.result, f.err
}

func (f *fakeRPC) GetSlot(context.Context, rpc.CommitmentType) (uint64, error) {
	return f.slot, f.slotErr
}

func transferData(kind uint32, lamports uint64) []byte {
	data := make([]byte, transferDataLen)
	binary.LittleEndian.PutUint32(data[0:4], kind)
	binary.LittleEndian.PutUint64(data[4:], lamports)
	return data
}

func buildTransaction(from, to solanago.PublicKey, lamports uint64) *solanago.Transaction {
	return &solanago.Transaction{
		Signatures: []solanago.Signature{{}},
		Message: solanago.Message{
			Header: solanago.MessageHeader{
				NumRequiredSignatures:       1,
				NumReadonlyUnsignedAccounts: 1,
			},
			AccountKeys: solanago.PublicKeySlice{from, to, solanago.SystemProgramID},
			Instructions: []solanago.CompiledInstruction{
				{ProgramIDIndex: 2, Accounts: []uint16{0, 1}, Data: transferData(systemTransferInstruction, lamports)},
			},
		},
	}
}

func envelopeFor(t *testing.T, tx *solanago.Transaction) *rpc.TransactionResultEnvelope {
	t.Helper()
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	payload, err := json.Marshal([]string{base64.StdEncoding.EncodeToString(raw), "base64"})
	require.NoError(t, err)

	var env rpc.TransactionResultEnvelope
	require.NoError(t, json.Unmarshal(payload, &env))
	return &env
}

func testSignature() string {
	var sig solanago.Signature
	for i := range sig {
		sig[i] = 0xab
	}
	return sig.String()
}

func TestValidatorAcceptsWellFormedInput(t *testing.T) {
	v := NewValidator()
	assert.NoError(t, v.ValidateAddress(solanago.NewWallet().PublicKey().String()))
	assert.NoError(t, v.ValidateAddress(solanago.SystemProgramID.String()))
	assert.NoError(t, v.ValidateReference(testSignature()))
}

func TestValidatorRejectsMalformedInput(t *testing.T) {
	v := NewValidator()
	for _, address := range []string{"", "short", "0OIl0OIl0OIl0OIl0OIl0OIl0OIl0OIl0OIl", "0x52908400098527886E0F7030069857D2E4169EE7"} {
		assert.ErrorIs(t, v.ValidateAddress(address), chaindomain.ErrInvalidFormat, address)
	}
	for _, reference := range []string{"", solanago.SystemProgramID.String(), strings.Repeat("0", 66)} {
		assert.ErrorIs(t, v.ValidateReference(reference), chaindomain.ErrInvalidFormat, reference)
	}
}

func TestNormalizeReferenceKeepsCase(t *testing.T) {
	v := NewValidator()
	sig := testSignature()
	assert.Equal(t, sig, v.NormalizeReference(" "+sig+" "))
}

func TestExtractTransfersDecodesSystemTransfers(t *testing.T) {
	from := solanago.NewWallet().PublicKey()
	to := solanago.NewWallet().PublicKey()
	tx := buildTransaction(from, to, 500_000_000)

	// non-transfer system instruction and an out of range account are skipped
	tx.Message.Instructions = append(tx.Message.Instructions,
		solanago.CompiledInstruction{ProgramIDIndex: 2, Accounts: []uint16{0, 1}, Data: transferData(0, 1)},
		solanago.CompiledInstruction{ProgramIDIndex: 2, Accounts: []uint16{0, 9}, Data: transferData(systemTransferInstruction, 1)},
	)

	transfers := extractTransfers(tx, rpc.LoadedAddresses{})
	require.Len(t, transfers, 1)
	assert.Equal(t, from.String(), transfers[0].From)
	assert.Equal(t, to.String(), transfers[0].To)
	assert.Equal(t, uint64(500_000_000), transfers[0].Amount.Uint64())
}

func TestExtractTransfersResolvesLookupTableAccounts(t *testing.T) {
	from := solanago.NewWallet().PublicKey()
	to := solanago.NewWallet().PublicKey()
	readonly := solanago.NewWallet().PublicKey()

	// recipient comes from an address lookup table, not the static keys
	tx := &solanago.Transaction{
		Signatures: []solanago.Signature{{}},
		Message: solanago.Message{
			Header: solanago.MessageHeader{
				NumRequiredSignatures:       1,
				NumReadonlyUnsignedAccounts: 1,
			},
			AccountKeys: solanago.PublicKeySlice{from, solanago.SystemProgramID},
			Instructions: []solanago.CompiledInstruction{
				{ProgramIDIndex: 1, Accounts: []uint16{0, 2}, Data: transferData(systemTransferInstruction, 250_000_000)},
				{ProgramIDIndex: 1, Accounts: []uint16{0, 4}, Data: transferData(systemTransferInstruction, 1)},
			},
		},
	}

	assert.Empty(t, extractTransfers(tx, rpc.LoadedAddresses{}))

	transfers := extractTransfers(tx, rpc.LoadedAddresses{
		Writable: solanago.PublicKeySlice{to},
		ReadOnly: solanago.PublicKeySlice{readonly},
	})
	require.Len(t, transfers, 1)
	assert.Equal(t, from.String(), transfers[0].From)
	assert.Equal(t, to.String(), transfers[0].To)
	assert.Equal(t, uint64(250_000_000), transfers[0].Amount.Uint64())
}

func TestFetchTransactionNormalizesResult(t *testing.T) {
	from := solanago.NewWallet().PublicKey()
	to := solanago.NewWallet().PublicKey()
	blockTime := solanago.UnixTimeSeconds(1_700_000_000)

	api := &fakeRPC{result: &rpc.GetTransactionResult{
		Slot:        1000,
		BlockTime:   &blockTime,
		Transaction: envelopeFor(t, buildTransaction(from, to, 42)),
		Meta:        &rpc.TransactionMeta{},
	}}
	client := newClient(chaindomain.NetworkTest, api)

	tx, err := client.FetchTransaction(context.Background(), testSignature())
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), tx.Slot)
	assert.False(t, tx.Failed)
	require.NotNil(t, tx.Timestamp)
	assert.Equal(t, int64(1_700_000_000), tx.Timestamp.Unix())
	require.Len(t, tx.Transfers, 1)
	assert.Equal(t, to.String(), tx.Transfers[0].To)

	require.NotNil(t, api.opts)
	assert.Equal(t, rpc.CommitmentConfirmed, api.opts.Commitment)
	require.NotNil(t, api.opts.MaxSupportedTransactionVersion)
	assert.Equal(t, uint64(0), *api.opts.MaxSupportedTransactionVersion)
}

func TestFetchTransactionFlagsFailedExecution(t *testing.T) {
	from := solanago.NewWallet().PublicKey()
	to := solanago.NewWallet().PublicKey()
	api := &fakeRPC{result: &rpc.GetTransactionResult{
		Slot:        10,
		Transaction: envelopeFor(t, buildTransaction(from, to, 42)),
		Meta:        &rpc.TransactionMeta{Err: map[string]any{"InstructionError": []any{0, "Custom"}}},
	}}

	tx, err := newClient(chaindomain.NetworkTest, api).FetchTransaction(context.Background(), testSignature())
	require.NoError(t, err)
	assert.True(t, tx.Failed)
}

func TestFetchTransactionMapsErrors(t *testing.T) {
	client := newClient(chaindomain.NetworkTest, &fakeRPC{err: rpc.ErrNotFound})
	_, err := client.FetchTransaction(context.Background(), testSignature())
	assert.ErrorIs(t, err, chaindomain.ErrNotFound)

	client = newClient(chaindomain.NetworkTest, &fakeRPC{err: errors.New("connection reset")})
	_, err = client.FetchTransaction(context.Background(), testSignature())
	assert.ErrorIs(t, err, chaindomain.ErrTransient)

	_, err = client.FetchTransaction(context.Background(), "not-a-signature")
	assert.ErrorIs(t, err, chaindomain.ErrInvalidFormat)
}

func TestCurrentSlot(t *testing.T) {
	slot, err := newClient(chaindomain.NetworkTest, &fakeRPC{slot: 77}).CurrentSlot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(77), slot)

	_, err = newClient(chaindomain.NetworkTest, &fakeRPC{slotErr: errors.New("503")}).CurrentSlot(context.Background())
	assert.ErrorIs(t, err, chaindomain.ErrTransient)
}

func TestDefaultEndpoint(t *testing.T) {
	assert.Equal(t, rpc.MainNetBeta_RPC, DefaultEndpoint(chaindomain.NetworkProduction))
	assert.Equal(t, rpc.DevNet_RPC, DefaultEndpoint(chaindomain.NetworkTest))
	assert.Empty(t, DefaultEndpoint("unknown"))
}
