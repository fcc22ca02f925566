package db

import (
	"time"

	"gorm.io/datatypes"
)

// Roadmap is a generated career transition plan. Input keeps the exact
// parameters it was generated from so a later revision can reuse them.
type Roadmap struct {
	ID uint `gorm:"primaryKey" json:"id"`

	CreatedAt time.Time `json:"createdAt"`

	UserID uint `gorm:"index;not null" json:"userId"`

	Title       string `gorm:"size:255;not null" json:"title"`
	CurrentRole string `gorm:"size:120;not null" json:"currentRole"`
	TargetRole  string `gorm:"size:120;not null" json:"targetRole"`

	// Tier is the owner's tier at generation time; it decides how detailed
	// the content is.
	Tier  Tier   `gorm:"type:varchar(20);not null" json:"tier"`
	Model string `gorm:"size:64" json:"model"`

	Input   datatypes.JSON `gorm:"type:json" json:"input"`
	Content string         `gorm:"type:text;not null" json:"content"`
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Payment is a one-time purchase of a tier. Rows are created at checkout and
// settled by the processor's webhook.
type Payment struct {
	ID uint `gorm:"primaryKey" json:"id"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	UserID uint `gorm:"index;not null" json:"userId"`

	// Reference is handed to the processor at checkout and echoed back on
	// every webhook event for this payment.
	Reference string `gorm:"uniqueIndex;size:64;not null" json:"reference"`

	Tier        Tier          `gorm:"type:varchar(20);not null" json:"tier"`
	AmountCents int64         `gorm:"not null" json:"amountCents"`
	Currency    string        `gorm:"size:8;not null" json:"currency"`
	Status      PaymentStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`

	PaidAt     *time.Time `json:"paidAt,omitempty"`
	RefundedAt *time.Time `json:"refundedAt,omitempty"`

	Metadata datatypes.JSONMap `gorm:"type:json" json:"metadata,omitempty"`
}

// PaymentEvent records every processed webhook event id so redeliveries are
// no-ops.
type PaymentEvent struct {
	ID uint `gorm:"primaryKey"`

	EventID    string    `gorm:"uniqueIndex;size:128;not null"`
	Type       string    `gorm:"size:64;not null"`
	Reference  string    `gorm:"index;size:64;not null"`
	ReceivedAt time.Time `gorm:"not null"`

	Payload datatypes.JSON `gorm:"type:json"`
}

type RevisionStatus string

const (
	RevisionPending   RevisionStatus = "PENDING"
	RevisionApproved  RevisionStatus = "APPROVED"
	RevisionRejected  RevisionStatus = "REJECTED"
	RevisionCompleted RevisionStatus = "COMPLETED"
	RevisionExpired   RevisionStatus = "EXPIRED"
)

// Active reports whether the status still occupies the owner's single
// revision slot.
func (s RevisionStatus) Active() bool {
	return s == RevisionPending || s == RevisionApproved
}

// RevisionRequest is a premium user's request to have a roadmap redone.
type RevisionRequest struct {
	ID string `gorm:"primaryKey;size:36" json:"id"`

	UserID    uint  `gorm:"index;not null" json:"userId"`
	RoadmapID *uint `gorm:"index" json:"roadmapId,omitempty"`

	// OriginalInput is the serialized roadmap input at request time, so an
	// approved regeneration uses the same parameters even if the profile
	// changed afterwards.
	OriginalInput datatypes.JSON `gorm:"type:json" json:"originalInput"`

	Reason string         `gorm:"type:text;not null" json:"reason"`
	Status RevisionStatus `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`

	RequestedAt time.Time  `gorm:"not null" json:"requestedAt"`
	RespondedAt *time.Time `json:"respondedAt,omitempty"`
	ExpiresAt   time.Time  `gorm:"index;not null" json:"expiresAt"`

	AdminResponse string `gorm:"type:text" json:"adminResponse,omitempty"`

	// ActiveSlot holds the owner id while the request is PENDING or
	// APPROVED and is NULL otherwise. The unique index allows one active
	// request per user.
	ActiveSlot *uint `gorm:"uniqueIndex" json:"-"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// RateLimitEntry is one fixed-window counter, used when limiter state is
// shared through the database.
type RateLimitEntry struct {
	Identifier string    `gorm:"primaryKey;size:255"`
	Count      int       `gorm:"not null"`
	ResetAt    time.Time `gorm:"index;not null"`
	UpdatedAt  time.Time
}
