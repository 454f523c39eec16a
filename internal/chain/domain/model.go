package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/holiman/uint256"
)

type Network string

const (
	NetworkProduction Network = "production"
	NetworkStaging    Network = "staging"
	NetworkTest       Network = "test"
)

// ParseNetwork accepts the network names understood by the registry.
func ParseNetwork(raw string) (Network, error) {
	switch Network(strings.ToLower(strings.TrimSpace(raw))) {
	case NetworkProduction:
		return NetworkProduction, nil
	case NetworkStaging:
		return NetworkStaging, nil
	case NetworkTest:
		return NetworkTest, nil
	default:
		return "", ErrUnsupportedNetwork
	}
}

type Family string

const (
	FamilySolana Family = "solana"
	FamilyEVM    Family = "evm"
)

// Asset describes the single native currency of a chain family.
type Asset struct {
	Symbol   string
	Decimals int
	// SlotTime approximates how long one confirmation takes.
	SlotTime time.Duration
}

// Transfer is one native-currency movement observed inside a transaction.
type Transfer struct {
	From   string
	To     string
	Amount *uint256.Int
}

// Transaction is the ledger view of a reference, normalized across families.
type Transaction struct {
	Reference string
	Network   Network
	Slot      uint64
	Timestamp *time.Time
	Failed    bool
	Transfers []Transfer
}

// Client reads a single network. Implementations must not mutate ledger state.
type Client interface {
	Network() Network
	Family() Family
	FetchTransaction(ctx context.Context, reference string) (*Transaction, error)
	CurrentSlot(ctx context.Context) (uint64, error)
}

// Validator checks address and reference syntax without I/O.
type Validator interface {
	ValidateAddress(address string) error
	ValidateReference(reference string) error
	// NormalizeAddress returns the canonical spelling used for equality checks.
	NormalizeAddress(address string) string
	// NormalizeReference returns the spelling stored under the unique
	// transaction_reference index. Two spellings the ledger resolves to the
	// same transaction must normalize to the same string.
	NormalizeReference(reference string) string
}

var (
	ErrInvalidFormat      = errors.New("invalid_format")
	ErrUnsupportedNetwork = errors.New("unsupported_network")
	ErrNotFound           = errors.New("ledger_transaction_not_found")
	ErrTransient          = errors.New("ledger_unavailable")
)
