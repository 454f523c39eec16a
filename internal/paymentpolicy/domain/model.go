package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Source string

const (
	SourceTenant  Source = "tenant"
	SourceDefault Source = "default"
)

// Policy pins the recipient and confirmation depth a tenant accepts.
type Policy struct {
	OrgID                snowflake.ID `json:"org_id" gorm:"primaryKey"`
	RecipientAddress     string       `json:"recipient_address" gorm:"type:text;not null"`
	MinimumConfirmations uint64       `json:"minimum_confirmations" gorm:"not null"`
	Source               Source       `json:"source" gorm:"-"`
	CreatedAt            time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt            time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Policy) TableName() string { return "tenant_payment_policies" }

// MaxMinimumConfirmations bounds tenant-provided values.
const MaxMinimumConfirmations uint64 = 100000
