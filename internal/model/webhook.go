package model

// Webhook wire types. Only the fields the classifier and ingestion pipeline
// consume are modeled; the upstream payload carries more.

// WebhookBatch is one webhook delivery from the messaging channel. A single
// delivery can carry several entries, each with content messages and status
// updates interleaved.
type WebhookBatch struct {
	Object  string         `json:"object"`
	Entries []WebhookEntry `json:"entry"`
}

// WebhookEntry is one account's slice of a webhook delivery.
type WebhookEntry struct {
	AccountID string          `json:"id"`
	Changes   []WebhookChange `json:"changes"`
}

// WebhookChange wraps the value payload of an entry.
type WebhookChange struct {
	Field string       `json:"field"`
	Value WebhookValue `json:"value"`
}

// WebhookValue holds zero or more inbound content messages and zero or more
// status updates for previously sent messages.
type WebhookValue struct {
	MessagingProduct string          `json:"messaging_product"`
	Contacts         []ContactHint   `json:"contacts,omitempty"`
	Messages         []ContentEvent  `json:"messages,omitempty"`
	Statuses         []StatusEvent   `json:"statuses,omitempty"`
	Metadata         ChannelMetadata `json:"metadata"`
}

// ChannelMetadata identifies the channel phone/line the event belongs to.
type ChannelMetadata struct {
	DisplayNumber string `json:"display_phone_number"`
	ChannelID     string `json:"phone_number_id"`
}

// ContactHint carries the sender profile attached to content events.
type ContactHint struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// ContentEvent is one inbound message from a customer.
type ContentEvent struct {
	ID        string       `json:"id"`
	From      string       `json:"from"`
	Timestamp UnixSeconds  `json:"timestamp"`
	Type      string       `json:"type"`
	Text      *TextPayload `json:"text,omitempty"`
	Context   *ReplyHint   `json:"context,omitempty"`
}

// TextPayload is the body of a text content event.
type TextPayload struct {
	Body string `json:"body"`
}

// ReplyHint marks a content event as a reply to an earlier message.
type ReplyHint struct {
	MessageID string `json:"id"`
}

// StatusEvent is a delivery/read/billing update for an outbound message.
type StatusEvent struct {
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	Timestamp    UnixSeconds       `json:"timestamp"`
	RecipientID  string            `json:"recipient_id"`
	Conversation *ConversationHint `json:"conversation,omitempty"`
	Pricing      *PricingHint      `json:"pricing,omitempty"`
}

// ConversationHint carries the window membership the channel attributes to a
// status event. It may be absent; absence triggers window synthesis.
type ConversationHint struct {
	ID                  string      `json:"id"`
	ExpirationTimestamp UnixSeconds `json:"expiration_timestamp,omitempty"`
}

// PricingHint carries the channel's own billing attribution for the message.
type PricingHint struct {
	Billable bool   `json:"billable"`
	Category string `json:"category,omitempty"`
	Model    string `json:"pricing_model,omitempty"`
}
