package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: SchedulerJobReasonDeadlineExceeded},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: SchedulerJobReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: SchedulerJobReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: SchedulerJobReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: SchedulerJobReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySchedulerJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestAddBatchProcessed(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSchedulerMetrics(registry, Config{
		ServiceName: "tugas",
		Environment: "test",
	})

	metrics.AddBatchProcessed("resume_pending_payments", "confirmed", 3)
	metrics.AddBatchProcessed("resume_pending_payments", "confirmed", 0)

	got := testutil.ToFloat64(metrics.batchProcessed.WithLabelValues("resume_pending_payments", "confirmed"))
	if got != 3 {
		t.Fatalf("expected processed count 3, got %v", got)
	}
}

func TestObserveLedgerCallCountsOutcome(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newPaymentMetrics(registry, Config{ServiceName: "tugas", Environment: "test"})

	metrics.ObserveLedgerCall("test", LedgerMethodGetTransaction, LedgerOutcomeTransient, 0)
	metrics.ObserveLedgerCall("test", LedgerMethodGetTransaction, LedgerOutcomeTransient, 0)
	metrics.ObserveLedgerCall("test", LedgerMethodGetTransaction, LedgerOutcomeOK, 0)

	got := testutil.ToFloat64(metrics.ledgerCalls.WithLabelValues("test", LedgerMethodGetTransaction, LedgerOutcomeTransient))
	if got != 2 {
		t.Fatalf("expected 2 transient calls, got %v", got)
	}
}
