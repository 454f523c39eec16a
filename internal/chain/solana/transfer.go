package solana

import (
	"encoding/binary"

	bin "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/holiman/uint256"
	chaindomain "github.com/smallbiznis/tugas/internal/chain/domain"
)

// System program instruction index for Transfer.
const systemTransferInstruction uint32 = 2

// transferDataLen is the u32 discriminator followed by u64 lamports.
const transferDataLen = 12

// extractTransfers collects top-level System program transfers.
// Transfers performed through CPI are not visible here. Versioned messages
// index past the static keys into the addresses their lookup tables loaded,
// writable ones first, as the runtime does.
func extractTransfers(tx *solanago.Transaction, loaded rpc.LoadedAddresses) []chaindomain.Transfer {
	if tx == nil {
		return nil
	}
	keys := accountKeys(tx.Message.AccountKeys, loaded)

	var transfers []chaindomain.Transfer
	for _, inst := range tx.Message.Instructions {
		if int(inst.ProgramIDIndex) >= len(keys) {
			continue
		}
		if !keys[inst.ProgramIDIndex].Equals(solanago.SystemProgramID) {
			continue
		}
		if len(inst.Accounts) < 2 {
			continue
		}
		fromIdx, toIdx := int(inst.Accounts[0]), int(inst.Accounts[1])
		if fromIdx >= len(keys) || toIdx >= len(keys) {
			continue
		}
		lamports, ok := decodeTransfer(inst.Data)
		if !ok {
			continue
		}
		transfers = append(transfers, chaindomain.Transfer{
			From:   keys[fromIdx].String(),
			To:     keys[toIdx].String(),
			Amount: uint256.NewInt(lamports),
		})
	}
	return transfers
}

func accountKeys(static solanago.PublicKeySlice, loaded rpc.LoadedAddresses) solanago.PublicKeySlice {
	if len(loaded.Writable) == 0 && len(loaded.ReadOnly) == 0 {
		return static
	}
	keys := make(solanago.PublicKeySlice, 0, len(static)+len(loaded.Writable)+len(loaded.ReadOnly))
	keys = append(keys, static...)
	keys = append(keys, loaded.Writable...)
	return append(keys, loaded.ReadOnly...)
}

func decodeTransfer(data []byte) (uint64, bool) {
	if len(data) != transferDataLen {
		return 0, false
	}
	decoder := bin.NewBinDecoder(data)
	kind, err := decoder.ReadUint32(binary.LittleEndian)
	if err != nil || kind != systemTransferInstruction {
		return 0, false
	}
	lamports, err := decoder.ReadUint64(binary.LittleEndian)
	if err != nil {
		return 0, false
	}
	return lamports, true
}
