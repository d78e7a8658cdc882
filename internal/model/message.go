// Package model defines data structures for the cost insights platform.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction indicates whether a message was received or sent.
type Direction string

const (
	DirectionInbound  Direction = "INBOUND"
	DirectionOutbound Direction = "OUTBOUND"
)

// Category is the pricing category assigned to a message.
type Category string

const (
	CategoryAuthentication Category = "AUTHENTICATION"
	CategoryMarketing      Category = "MARKETING"
	CategoryUtility        Category = "UTILITY"
	CategoryService        Category = "SERVICE"
)

// Categories lists every pricing category in a stable order. Aggregates
// include all of them even when a category has zero messages.
var Categories = []Category{
	CategoryAuthentication,
	CategoryMarketing,
	CategoryUtility,
	CategoryService,
}

// ParseCategory maps an upstream category tag to a known Category.
// The second return value is false for unknown or empty tags.
func ParseCategory(s string) (Category, bool) {
	switch Category(s) {
	case CategoryAuthentication, CategoryMarketing, CategoryUtility, CategoryService:
		return Category(s), true
	}
	return "", false
}

// Message is a per-message billing record. The external id is the
// source-of-truth dedup key: a record is created on first sighting of an
// id and later status events mutate status, cost and conversation fields
// in place.
type Message struct {
	ID         string    `json:"id"`
	AccountID  string    `json:"account_id"`
	ExternalID string    `json:"external_id"`
	Sender     string    `json:"sender,omitempty"`
	Direction  Direction `json:"direction"`
	Category   Category  `json:"category"`
	Type       string    `json:"type"`
	Status     string    `json:"status,omitempty"`
	Timestamp  time.Time `json:"timestamp"`

	ConversationID        string    `json:"conversation_id,omitempty"`
	ConversationExpiresAt time.Time `json:"conversation_expires_at,omitempty"`
	IsInFreeWindow        bool      `json:"is_in_free_window"`

	Cost                     decimal.Decimal `json:"cost"`
	ClassificationConfidence float64         `json:"classification_confidence"`
	ClassificationReason     string          `json:"classification_reason"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConversationWindow is the 24-hour free-reply window opened by an inbound
// message. It is derived state, never persisted on its own.
type ConversationWindow struct {
	ConversationID string        `json:"conversation_id"`
	ExpiresAt      time.Time     `json:"expires_at"`
	Age            time.Duration `json:"age"`
}

// Open reports whether the window is still open at t.
func (w ConversationWindow) Open(t time.Time) bool {
	return t.Before(w.ExpiresAt)
}
