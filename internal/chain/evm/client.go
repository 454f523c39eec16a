package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"
	chaindomain "github.com/smallbiznis/tugas/internal/chain/domain"
)

// Asset is the chain's native coin with 18 decimals.
var Asset = chaindomain.Asset{
	Symbol:   "ETH",
	Decimals: 18,
	SlotTime: 12 * time.Second,
}

type ethAPI interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BlockNumber(ctx context.Context) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

type Client struct {
	network chaindomain.Network
	eth     ethAPI

	mu      sync.Mutex
	chainID *big.Int
}

// NewClient dials lazily; the first RPC call establishes the connection.
func NewClient(ctx context.Context, network chaindomain.Network, endpoint string) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("dial %s rpc: %w", network, err)
	}
	return newClient(network, eth), nil
}

func newClient(network chaindomain.Network, api ethAPI) *Client {
	return &Client{network: network, eth: api}
}

func (c *Client) Network() chaindomain.Network { return c.network }

func (c *Client) Family() chaindomain.Family { return chaindomain.FamilyEVM }

func (c *Client) FetchTransaction(ctx context.Context, reference string) (*chaindomain.Transaction, error) {
	if err := (Validator{}).ValidateReference(reference); err != nil {
		return nil, err
	}
	hash := common.HexToHash(reference)

	tx, pending, err := c.eth.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, mapError("transaction by hash", err)
	}
	if pending {
		return nil, chaindomain.ErrNotFound
	}

	receipt, err := c.eth.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, mapError("transaction receipt", err)
	}
	if receipt.BlockNumber == nil {
		return nil, chaindomain.ErrNotFound
	}

	chainID, err := c.loadChainID(ctx)
	if err != nil {
		return nil, err
	}
	from, err := types.Sender(types.LatestSignerForChainID(chainID), tx)
	if err != nil {
		return nil, fmt.Errorf("%w: recover sender: %v", chaindomain.ErrTransient, err)
	}

	result := &chaindomain.Transaction{
		Reference: reference,
		Network:   c.network,
		Slot:      receipt.BlockNumber.Uint64(),
		Failed:    receipt.Status == types.ReceiptStatusFailed,
	}

	if to := tx.To(); to != nil && tx.Value() != nil && tx.Value().Sign() > 0 {
		amount, overflow := uint256.FromBig(tx.Value())
		if !overflow {
			result.Transfers = append(result.Transfers, chaindomain.Transfer{
				From:   from.Hex(),
				To:     to.Hex(),
				Amount: amount,
			})
		}
	}

	header, err := c.eth.HeaderByNumber(ctx, receipt.BlockNumber)
	if err != nil {
		return nil, mapError("header by number", err)
	}
	if header != nil {
		ts := time.Unix(int64(header.Time), 0).UTC()
		result.Timestamp = &ts
	}

	return result, nil
}

func (c *Client) CurrentSlot(ctx context.Context) (uint64, error) {
	number, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, mapError("block number", err)
	}
	return number, nil
}

func (c *Client) loadChainID(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chainID != nil {
		return c.chainID, nil
	}
	id, err := c.eth.ChainID(ctx)
	if err != nil {
		return nil, mapError("chain id", err)
	}
	c.chainID = id
	return id, nil
}

func mapError(op string, err error) error {
	if errors.Is(err, ethereum.NotFound) {
		return chaindomain.ErrNotFound
	}
	return fmt.Errorf("%w: %s: %v", chaindomain.ErrTransient, op, err)
}
