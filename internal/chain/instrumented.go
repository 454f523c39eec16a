package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	chaindomain "github.com/smallbiznis/tugas/internal/chain/domain"
	"github.com/smallbiznis/tugas/internal/observability/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const defaultLedgerTimeout = 8 * time.Second

type instrumentOptions struct {
	timeout time.Duration
	rate    float64
	burst   int
	metrics *metrics.PaymentMetrics
}

// instrumentedClient bounds, throttles and observes every call to the inner client.
type instrumentedClient struct {
	inner   chaindomain.Client
	timeout time.Duration
	limiter *rate.Limiter
	metrics *metrics.PaymentMetrics
	tracer  trace.Tracer
}

func instrument(inner chaindomain.Client, opts instrumentOptions) chaindomain.Client {
	timeout := opts.timeout
	if timeout <= 0 {
		timeout = defaultLedgerTimeout
	}
	limit := rate.Inf
	if opts.rate > 0 {
		limit = rate.Limit(opts.rate)
	}
	burst := opts.burst
	if burst <= 0 {
		burst = 1
	}
	return &instrumentedClient{
		inner:   inner,
		timeout: timeout,
		limiter: rate.NewLimiter(limit, burst),
		metrics: opts.metrics,
		tracer:  otel.Tracer("tugas/ledger"),
	}
}

func (c *instrumentedClient) Network() chaindomain.Network { return c.inner.Network() }

func (c *instrumentedClient) Family() chaindomain.Family { return c.inner.Family() }

func (c *instrumentedClient) FetchTransaction(ctx context.Context, reference string) (*chaindomain.Transaction, error) {
	var tx *chaindomain.Transaction
	err := c.call(ctx, metrics.LedgerMethodGetTransaction, func(ctx context.Context) error {
		var err error
		tx, err = c.inner.FetchTransaction(ctx, reference)
		return err
	})
	return tx, err
}

func (c *instrumentedClient) CurrentSlot(ctx context.Context) (uint64, error) {
	var slot uint64
	err := c.call(ctx, metrics.LedgerMethodCurrentSlot, func(ctx context.Context) error {
		var err error
		slot, err = c.inner.CurrentSlot(ctx)
		return err
	})
	return slot, err
}

func (c *instrumentedClient) call(ctx context.Context, method string, fn func(context.Context) error) error {
	network := string(c.inner.Network())
	ctx, span := c.tracer.Start(ctx, "ledger."+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("ledger.family", string(c.inner.Family())),
			attribute.String("ledger.network", network),
		),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		c.observe(network, method, metrics.LedgerOutcomeThrottled, start)
		span.SetStatus(codes.Error, "throttled")
		return fmt.Errorf("%w: rpc throttled: %v", chaindomain.ErrTransient, err)
	}

	err := classify(ctx, fn(ctx))

	outcome := metrics.LedgerOutcomeOK
	switch {
	case err == nil:
	case errors.Is(err, chaindomain.ErrNotFound):
		outcome = metrics.LedgerOutcomeNotFound
	default:
		outcome = metrics.LedgerOutcomeTransient
		span.RecordError(err)
		span.SetStatus(codes.Error, "ledger call failed")
	}
	c.observe(network, method, outcome, start)
	return err
}

func (c *instrumentedClient) observe(network, method, outcome string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.ObserveLedgerCall(network, method, outcome, time.Since(start))
}

// classify folds deadline and unknown failures into ErrTransient.
func classify(ctx context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, chaindomain.ErrTransient):
		return err
	case ctx.Err() != nil:
		return fmt.Errorf("%w: %v", chaindomain.ErrTransient, ctx.Err())
	case errors.Is(err, chaindomain.ErrNotFound), errors.Is(err, chaindomain.ErrInvalidFormat):
		return err
	default:
		return fmt.Errorf("%w: %v", chaindomain.ErrTransient, err)
	}
}
