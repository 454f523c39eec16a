package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tugas/internal/paymentpolicy/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, orgID snowflake.ID) (*domain.Policy, error) {
	var item domain.Policy
	err := db.WithContext(ctx).Raw(
		`SELECT org_id, recipient_address, minimum_confirmations, created_at, updated_at
		 FROM tenant_payment_policies
		 WHERE org_id = ?
		 LIMIT 1`,
		orgID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.OrgID == 0 {
		return nil, nil
	}
	item.Source = domain.SourceTenant
	return &item, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, policy *domain.Policy) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO tenant_payment_policies (
			org_id, recipient_address, minimum_confirmations, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (org_id)
		DO UPDATE SET recipient_address = EXCLUDED.recipient_address,
			minimum_confirmations = EXCLUDED.minimum_confirmations,
			updated_at = EXCLUDED.updated_at`,
		policy.OrgID,
		policy.RecipientAddress,
		policy.MinimumConfirmations,
		policy.CreatedAt,
		policy.UpdatedAt,
	).Error
}
