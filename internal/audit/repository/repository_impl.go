package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/tugas/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Insert appends one entry. Audit rows are never updated.
func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO audit_logs (id, org_id, actor_type, actor_id, action, target_type, target_id, metadata, ip_address, user_agent, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.OrgID, entry.ActorType, entry.ActorID,
		entry.Action, entry.TargetType, entry.TargetID, entry.Metadata,
		entry.IPAddress, entry.UserAgent, entry.CreatedAt,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.AuditLog, error) {
	stmt := db.WithContext(ctx).Model(&domain.AuditLog{}).
		Where("org_id = ?", filter.OrgID).
		Scopes(textFilters(filter)...)

	if filter.StartAt != nil {
		stmt = stmt.Where("created_at >= ?", filter.StartAt.UTC())
	}
	if filter.EndAt != nil {
		stmt = stmt.Where("created_at <= ?", filter.EndAt.UTC())
	}
	if c := filter.Cursor; c != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)", c.CreatedAt, c.CreatedAt, c.ID)
	}
	if filter.Limit > 0 {
		// one extra row tells the caller whether another page exists
		stmt = stmt.Limit(filter.Limit + 1)
	}

	var logs []*domain.AuditLog
	if err := stmt.Order("created_at desc, id desc").Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

func textFilters(filter domain.ListFilter) []func(*gorm.DB) *gorm.DB {
	columns := []struct {
		column string
		value  string
	}{
		{"action", filter.Action},
		{"target_type", filter.TargetType},
		{"target_id", filter.TargetID},
		{"actor_type", filter.ActorType},
	}

	scopes := make([]func(*gorm.DB) *gorm.DB, 0, len(columns))
	for _, col := range columns {
		value := strings.TrimSpace(col.value)
		if value == "" {
			continue
		}
		column := col.column
		scopes = append(scopes, func(tx *gorm.DB) *gorm.DB {
			return tx.Where(column+" = ?", value)
		})
	}
	return scopes
}
