package models

import (
	"time"

	"github.com/google/uuid"
)

// PromptTier identifies which layer of the composed prompt a record feeds.
type PromptTier string

const (
	PromptTierMaster PromptTier = "master"
	PromptTierImage  PromptTier = "image"
	PromptTierVideo  PromptTier = "video"
	PromptTierAudio  PromptTier = "audio"
)

// TierFor maps a media kind onto its kind-level prompt tier.
func TierFor(kind MediaKind) PromptTier {
	return PromptTier(kind)
}

// PromptRecord is a stored prompt fragment. A nil TenantID marks a global record.
type PromptRecord struct {
	ID        uuid.UUID  `db:"id"         json:"id"`
	Tier      PromptTier `db:"tier"       json:"tier"`
	TenantID  *string    `db:"tenant_id"  json:"tenant_id,omitempty"`
	Content   string     `db:"content"    json:"content"`
	Active    bool       `db:"active"     json:"active"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}
