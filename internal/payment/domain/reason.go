package domain

import "time"

type Reason string

const (
	ReasonInvalidFormat             Reason = "invalid_format"
	ReasonNotFound                  Reason = "not_found"
	ReasonTransientError            Reason = "transient_error"
	ReasonWrongRecipient            Reason = "wrong_recipient"
	ReasonSenderMismatch            Reason = "sender_mismatch"
	ReasonInsufficientAmount        Reason = "insufficient_amount"
	ReasonTransactionFailed         Reason = "transaction_failed"
	ReasonInsufficientConfirmations Reason = "insufficient_confirmations"
	ReasonTransactionAlreadyUsed    Reason = "transaction_already_used"
)

const (
	NotFoundRetryAfter  = 5 * time.Second
	TransientRetryAfter = 10 * time.Second
	MinRetryAfter       = time.Second
	MaxRetryAfter       = 10 * time.Minute
)

var reasonMessages = map[Reason]string{
	ReasonInvalidFormat:             "The request is malformed. Check the network, transaction reference, sender address and amount.",
	ReasonNotFound:                  "The transaction is not visible on the ledger yet. Retry shortly.",
	ReasonTransientError:            "The ledger could not be reached. Retry shortly.",
	ReasonWrongRecipient:            "The transaction does not pay the recipient configured for this organization.",
	ReasonSenderMismatch:            "The transaction was not sent from the claimed sender address.",
	ReasonInsufficientAmount:        "The transferred amount is below the expected amount.",
	ReasonTransactionFailed:         "The transaction failed on the ledger and moved no funds.",
	ReasonInsufficientConfirmations: "The transaction needs more confirmations. Retry after the indicated delay.",
	ReasonTransactionAlreadyUsed:    "This transaction reference has already been used for a purchase.",
}

func (r Reason) Message() string {
	if msg, ok := reasonMessages[r]; ok {
		return msg
	}
	return ""
}

// Retryable reports whether the same claim may succeed later without changes.
func (r Reason) Retryable() bool {
	switch r {
	case ReasonNotFound, ReasonTransientError, ReasonInsufficientConfirmations:
		return true
	default:
		return false
	}
}

// ClampRetryAfter bounds a suggested delay to [MinRetryAfter, MaxRetryAfter].
func ClampRetryAfter(d time.Duration) time.Duration {
	if d < MinRetryAfter {
		return MinRetryAfter
	}
	if d > MaxRetryAfter {
		return MaxRetryAfter
	}
	return d
}
