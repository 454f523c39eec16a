package verifier

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/holiman/uint256"
	chaindomain "github.com/smallbiznis/tugas/internal/chain/domain"
	"github.com/smallbiznis/tugas/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/tugas/internal/payment/domain"
	paymentpolicydomain "github.com/smallbiznis/tugas/internal/paymentpolicy/domain"
	"go.uber.org/zap"
)

const (
	defaultInitialInterval = 250 * time.Millisecond
	maxRetryInterval       = 2 * time.Second
)

type Config struct {
	RetryAttempts        int
	RetryInitialInterval time.Duration
	// SlotTime converts missing confirmations into a retry delay.
	SlotTime  time.Duration
	Validator chaindomain.Validator
}

type Verifier struct {
	cfg     Config
	log     *zap.Logger
	metrics *metrics.PaymentMetrics
}

func New(cfg Config, log *zap.Logger, paymentMetrics *metrics.PaymentMetrics) *Verifier {
	if cfg.RetryAttempts < 0 {
		cfg.RetryAttempts = 0
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = defaultInitialInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Verifier{cfg: cfg, log: log.Named("payment.verifier"), metrics: paymentMetrics}
}

// Verify checks the claim against the ledger. Rejections are reported in the result.
// The checks run in a fixed order and the first failure wins.
func (v *Verifier) Verify(ctx context.Context, client chaindomain.Client, claim paymentdomain.Claim, policy paymentpolicydomain.Policy) paymentdomain.VerificationResult {
	network := string(client.Network())
	recipient := v.normalize(policy.RecipientAddress)
	sender := v.normalize(claim.SenderAddress)

	var tx *chaindomain.Transaction
	err := v.withRetry(ctx, network, metrics.LedgerMethodGetTransaction, func() error {
		var err error
		tx, err = client.FetchTransaction(ctx, claim.TransactionReference)
		return err
	})
	if err != nil {
		return v.ledgerFailure(err)
	}

	if tx.Failed {
		return reject(paymentdomain.ReasonTransactionFailed)
	}

	var toRecipient []chaindomain.Transfer
	for _, transfer := range tx.Transfers {
		if recipient != "" && v.normalize(transfer.To) == recipient {
			toRecipient = append(toRecipient, transfer)
		}
	}
	if len(toRecipient) == 0 {
		return reject(paymentdomain.ReasonWrongRecipient)
	}

	observed := new(uint256.Int)
	matched := false
	for _, transfer := range toRecipient {
		if v.normalize(transfer.From) != sender || transfer.Amount == nil {
			continue
		}
		matched = true
		if _, overflow := observed.AddOverflow(observed, transfer.Amount); overflow {
			return reject(paymentdomain.ReasonInvalidFormat)
		}
	}
	if !matched {
		return reject(paymentdomain.ReasonSenderMismatch)
	}

	result := paymentdomain.VerificationResult{
		SenderAddress:    sender,
		RecipientAddress: recipient,
		Amount:           observed,
		LedgerSlot:       tx.Slot,
		LedgerTimestamp:  tx.Timestamp,
	}
	if claim.ExpectedAmount == nil || observed.Lt(claim.ExpectedAmount) {
		result.Reason = paymentdomain.ReasonInsufficientAmount
		return result
	}

	var current uint64
	err = v.withRetry(ctx, network, metrics.LedgerMethodCurrentSlot, func() error {
		var err error
		current, err = client.CurrentSlot(ctx)
		return err
	})
	if err != nil {
		failure := v.ledgerFailure(err)
		if failure.Reason == paymentdomain.ReasonNotFound {
			failure = reject(paymentdomain.ReasonTransientError)
			failure.RetryAfter = paymentdomain.TransientRetryAfter
		}
		return failure
	}

	if current > tx.Slot {
		result.Confirmations = current - tx.Slot
	}
	if result.Confirmations < policy.MinimumConfirmations {
		missing := policy.MinimumConfirmations - result.Confirmations
		result.Reason = paymentdomain.ReasonInsufficientConfirmations
		result.RetryAfter = paymentdomain.ClampRetryAfter(time.Duration(missing) * v.cfg.SlotTime)
		return result
	}

	result.Verified = true
	return result
}

func (v *Verifier) withRetry(ctx context.Context, network, method string, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = v.cfg.RetryInitialInterval
	policy.MaxInterval = maxRetryInterval
	policy.MaxElapsedTime = 0

	attempt := 0
	return backoff.Retry(func() error {
		if attempt > 0 && v.metrics != nil {
			v.metrics.IncLedgerRetry(network, method)
		}
		attempt++

		err := op()
		if err == nil {
			return nil
		}
		if errors.Is(err, chaindomain.ErrTransient) {
			v.log.Debug("ledger call failed, retrying",
				zap.String("network", network),
				zap.String("method", method),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(v.cfg.RetryAttempts)), ctx))
}

func (v *Verifier) ledgerFailure(err error) paymentdomain.VerificationResult {
	switch {
	case errors.Is(err, chaindomain.ErrNotFound):
		result := reject(paymentdomain.ReasonNotFound)
		result.RetryAfter = paymentdomain.NotFoundRetryAfter
		return result
	case errors.Is(err, chaindomain.ErrInvalidFormat):
		return reject(paymentdomain.ReasonInvalidFormat)
	default:
		result := reject(paymentdomain.ReasonTransientError)
		result.RetryAfter = paymentdomain.TransientRetryAfter
		return result
	}
}

func (v *Verifier) normalize(address string) string {
	if v.cfg.Validator == nil {
		return address
	}
	return v.cfg.Validator.NormalizeAddress(address)
}

func reject(reason paymentdomain.Reason) paymentdomain.VerificationResult {
	return paymentdomain.VerificationResult{Reason: reason}
}
