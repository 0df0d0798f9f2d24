// ABOUTME: Wire-level activity types for the Copilot Studio conversation API
// ABOUTME: Activities arrive as JSON payloads inside SSE frames

package copilot

import "encoding/json"

// Activity content types for attachments.
const (
	ContentTypeAdaptiveCard = "application/vnd.microsoft.card.adaptive"
)

// Activity types emitted by the conversation endpoint.
const (
	ActivityMessage         = "message"
	ActivityTyping          = "typing"
	ActivityEvent           = "event"
	ActivityTrace           = "trace"
	ActivityEndConversation = "endOfConversation"
)

// Entity types carried on message activities.
const (
	entityTypeClaim = "https://schema.org/Claim"
)

// Activity is a single event object from the conversation endpoint. Only the
// fields this client consumes are modeled; everything else is ignored by the
// JSON decoder.
type Activity struct {
	Type             string               `json:"type"`
	ID               string               `json:"id,omitempty"`
	Text             string               `json:"text,omitempty"`
	Name             string               `json:"name,omitempty"`
	ValueType        string               `json:"valueType,omitempty"`
	Value            json.RawMessage      `json:"value,omitempty"`
	Conversation     *ConversationAccount `json:"conversation,omitempty"`
	From             *ChannelAccount      `json:"from,omitempty"`
	ChannelData      *ChannelData         `json:"channelData,omitempty"`
	Entities         []Entity             `json:"entities,omitempty"`
	Attachments      []Attachment         `json:"attachments,omitempty"`
	SuggestedActions *SuggestedActions    `json:"suggestedActions,omitempty"`
}

// ConversationAccount identifies the conversation an activity belongs to.
type ConversationAccount struct {
	ID string `json:"id"`
}

// ChannelAccount identifies the sender or recipient of an activity.
type ChannelAccount struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

// ChannelData carries streaming hints on typing activities.
type ChannelData struct {
	StreamType     string `json:"streamType,omitempty"` // "streaming", "informative", "final"
	StreamSequence int    `json:"streamSequence,omitempty"`
}

// Entity is a typed metadata object attached to a message activity.
// Citation metadata arrives as schema.org Claim entities.
type Entity struct {
	Type     string `json:"type"`
	ID       string `json:"@id,omitempty"`
	Name     string `json:"name,omitempty"`
	URL      string `json:"url,omitempty"`
	Position int    `json:"position,omitempty"`
}

// Attachment is a rich content payload on a message activity.
type Attachment struct {
	ContentType string          `json:"contentType"`
	Name        string          `json:"name,omitempty"`
	ContentURL  string          `json:"contentUrl,omitempty"`
	Content     json.RawMessage `json:"content,omitempty"`
}

// SuggestedActions lists follow-up actions offered with a response.
type SuggestedActions struct {
	Actions []CardAction `json:"actions"`
}

// CardAction is a single suggested follow-up.
type CardAction struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	Value string `json:"value,omitempty"`
}

// thoughtValue is the payload of a reasoning trace activity.
type thoughtValue struct {
	Task string `json:"task"`
	Text string `json:"text"`
}

// searchResultValue is the payload of a search-result trace activity.
type searchResultValue struct {
	Index int    `json:"index"`
	Title string `json:"title"`
	URL   string `json:"url"`
}
