package chain

import (
	"context"
	"fmt"
	"sort"
	"strings"

	chaindomain "github.com/smallbiznis/tugas/internal/chain/domain"
	"github.com/smallbiznis/tugas/internal/chain/evm"
	"github.com/smallbiznis/tugas/internal/chain/solana"
	"github.com/smallbiznis/tugas/internal/config"
	"github.com/smallbiznis/tugas/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Registry resolves the ledger client for a network name. All clients share one family.
type Registry struct {
	family    chaindomain.Family
	asset     chaindomain.Asset
	validator chaindomain.Validator
	clients   map[chaindomain.Network]chaindomain.Client
}

type Params struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Metrics *metrics.PaymentMetrics
}

func NewRegistry(p Params) (*Registry, error) {
	log := p.Log.Named("chain.registry")
	cfg := p.Config.Ledger

	family := chaindomain.Family(strings.ToLower(strings.TrimSpace(cfg.Family)))
	asset, validator, err := familyTraits(family)
	if err != nil {
		return nil, err
	}

	opts := instrumentOptions{
		timeout: cfg.Timeout,
		rate:    cfg.RPCRate,
		burst:   cfg.RPCBurst,
		metrics: p.Metrics,
	}

	clients := make([]chaindomain.Client, 0, 3)
	for _, network := range []chaindomain.Network{
		chaindomain.NetworkProduction,
		chaindomain.NetworkStaging,
		chaindomain.NetworkTest,
	} {
		endpoint := strings.TrimSpace(cfg.Endpoints[string(network)])

		var client chaindomain.Client
		switch family {
		case chaindomain.FamilySolana:
			client = solana.NewClient(network, endpoint)
		case chaindomain.FamilyEVM:
			if endpoint == "" {
				continue
			}
			evmClient, err := evm.NewClient(context.Background(), network, endpoint)
			if err != nil {
				return nil, err
			}
			client = evmClient
		}

		clients = append(clients, instrument(client, opts))
		log.Info("ledger client configured",
			zap.String("family", string(family)),
			zap.String("network", string(network)),
		)
	}

	if len(clients) == 0 {
		log.Warn("no ledger endpoints configured", zap.String("family", string(family)))
	}

	return NewStaticRegistry(family, asset, validator, clients...), nil
}

// NewStaticRegistry builds a registry from ready clients.
func NewStaticRegistry(family chaindomain.Family, asset chaindomain.Asset, validator chaindomain.Validator, clients ...chaindomain.Client) *Registry {
	byNetwork := make(map[chaindomain.Network]chaindomain.Client, len(clients))
	for _, client := range clients {
		if client == nil {
			continue
		}
		byNetwork[client.Network()] = client
	}
	return &Registry{
		family:    family,
		asset:     asset,
		validator: validator,
		clients:   byNetwork,
	}
}

func (r *Registry) Family() chaindomain.Family { return r.family }

func (r *Registry) Asset() chaindomain.Asset { return r.asset }

func (r *Registry) Validator() chaindomain.Validator { return r.validator }

// Client returns ErrUnsupportedNetwork for unknown or unconfigured networks.
func (r *Registry) Client(network string) (chaindomain.Client, error) {
	parsed, err := chaindomain.ParseNetwork(network)
	if err != nil {
		return nil, err
	}
	client, ok := r.clients[parsed]
	if !ok {
		return nil, chaindomain.ErrUnsupportedNetwork
	}
	return client, nil
}

func (r *Registry) Networks() []chaindomain.Network {
	out := make([]chaindomain.Network, 0, len(r.clients))
	for network := range r.clients {
		out = append(out, network)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func familyTraits(family chaindomain.Family) (chaindomain.Asset, chaindomain.Validator, error) {
	switch family {
	case chaindomain.FamilySolana:
		return solana.Asset, solana.NewValidator(), nil
	case chaindomain.FamilyEVM:
		return evm.Asset, evm.NewValidator(), nil
	default:
		return chaindomain.Asset{}, nil, fmt.Errorf("unsupported ledger family %q", family)
	}
}
