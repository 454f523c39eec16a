package solana

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	chaindomain "github.com/smallbiznis/tugas/internal/chain/domain"
)

// Asset is SOL: 9 decimals, roughly 400ms per slot.
var Asset = chaindomain.Asset{
	Symbol:   "SOL",
	Decimals: 9,
	SlotTime: 400 * time.Millisecond,
}

// DefaultEndpoint returns the public cluster for a network.
func DefaultEndpoint(network chaindomain.Network) string {
	switch network {
	case chaindomain.NetworkProduction:
		return rpc.MainNetBeta_RPC
	case chaindomain.NetworkStaging:
		return rpc.TestNet_RPC
	case chaindomain.NetworkTest:
		return rpc.DevNet_RPC
	default:
		return ""
	}
}

type rpcAPI interface {
	GetTransaction(ctx context.Context, sig solanago.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
	GetSlot(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
}

type Client struct {
	network    chaindomain.Network
	rpc        rpcAPI
	commitment rpc.CommitmentType
}

func NewClient(network chaindomain.Network, endpoint string) *Client {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint(network)
	}
	return newClient(network, rpc.New(endpoint))
}

func newClient(network chaindomain.Network, api rpcAPI) *Client {
	return &Client{
		network:    network,
		rpc:        api,
		commitment: rpc.CommitmentConfirmed,
	}
}

func (c *Client) Network() chaindomain.Network { return c.network }

func (c *Client) Family() chaindomain.Family { return chaindomain.FamilySolana }

func (c *Client) FetchTransaction(ctx context.Context, reference string) (*chaindomain.Transaction, error) {
	sig, err := solanago.SignatureFromBase58(reference)
	if err != nil {
		return nil, chaindomain.ErrInvalidFormat
	}

	maxVersion := uint64(0)
	out, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solanago.EncodingBase64,
		Commitment:                     c.commitment,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, chaindomain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: get transaction: %v", chaindomain.ErrTransient, err)
	}
	if out == nil || out.Transaction == nil {
		return nil, chaindomain.ErrNotFound
	}

	tx, err := out.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("%w: decode transaction: %v", chaindomain.ErrTransient, err)
	}

	var loaded rpc.LoadedAddresses
	if out.Meta != nil {
		loaded = out.Meta.LoadedAddresses
	}
	result := &chaindomain.Transaction{
		Reference: reference,
		Network:   c.network,
		Slot:      out.Slot,
		Failed:    out.Meta != nil && out.Meta.Err != nil,
		Transfers: extractTransfers(tx, loaded),
	}
	if out.BlockTime != nil {
		ts := out.BlockTime.Time().UTC()
		result.Timestamp = &ts
	}
	return result, nil
}

func (c *Client) CurrentSlot(ctx context.Context) (uint64, error) {
	slot, err := c.rpc.GetSlot(ctx, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("%w: get slot: %v", chaindomain.ErrTransient, err)
	}
	return slot, nil
}
