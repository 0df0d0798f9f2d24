// ABOUTME: Typed event variant produced by the conversation client
// ABOUTME: Converts raw wire activities into events the UI layer can fold

package copilot

import (
	"encoding/json"
	"strings"

	"github.com/2389/copilot-chat/internal/citations"
)

// EventKind indicates the type of conversation event.
type EventKind int

const (
	EventStatus EventKind = iota
	EventThought
	EventSearchResult
	EventContentDelta
	EventFinalContent
	EventCitations
	EventSuggestion
	EventAdaptiveCard
	EventAttachment
	EventDone
	EventError
)

// String returns the wire name of the event kind, used for SSE event names
// and metrics labels.
func (k EventKind) String() string {
	switch k {
	case EventStatus:
		return "status"
	case EventThought:
		return "thought"
	case EventSearchResult:
		return "search_result"
	case EventContentDelta:
		return "content"
	case EventFinalContent:
		return "final_content"
	case EventCitations:
		return "citations"
	case EventSuggestion:
		return "suggestion"
	case EventAdaptiveCard:
		return "adaptive_card"
	case EventAttachment:
		return "attachment"
	case EventDone:
		return "done"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Thought is one chain-of-thought entry reported while the agent works.
type Thought struct {
	Task string `json:"task"`
	Text string `json:"text"`
}

// Event is the tagged variant consumed by the streaming aggregator. Exactly
// the fields for the given Kind are populated.
type Event struct {
	Kind         EventKind
	Text         string                       // EventStatus, EventContentDelta, EventFinalContent, EventError
	Thought      *Thought                     // EventThought
	SearchResult *citations.SearchResult      // EventSearchResult
	Citations    map[string]citations.Source  // EventCitations
	Suggestions  []string                     // EventSuggestion
	Card         json.RawMessage              // EventAdaptiveCard
	Attachment   *Attachment                  // EventAttachment
}

// activityToEvents converts one wire activity into zero or more typed events.
// Unknown activity shapes produce no events rather than errors; a malformed
// frame must never abort an in-flight response.
func activityToEvents(act *Activity) []*Event {
	switch act.Type {
	case ActivityTyping:
		return typingToEvents(act)
	case ActivityMessage:
		return messageToEvents(act)
	case ActivityEvent, ActivityTrace:
		return traceToEvents(act)
	case ActivityEndConversation:
		return []*Event{{Kind: EventDone}}
	default:
		return nil
	}
}

// typingToEvents maps typing activities: chunked response text arrives as
// typing activities with streamType "streaming"; bare typing is an ephemeral
// status.
func typingToEvents(act *Activity) []*Event {
	if act.ChannelData != nil && act.ChannelData.StreamType == "streaming" && act.Text != "" {
		return []*Event{{Kind: EventContentDelta, Text: act.Text}}
	}
	if act.ChannelData != nil && act.ChannelData.StreamType == "informative" && act.Text != "" {
		return []*Event{{Kind: EventStatus, Text: act.Text}}
	}
	return nil
}

// messageToEvents maps a message activity to final content, citation
// metadata, suggestions, and attachment events.
func messageToEvents(act *Activity) []*Event {
	var events []*Event

	if act.Text != "" {
		events = append(events, &Event{Kind: EventFinalContent, Text: act.Text})
	}

	if meta := claimEntities(act.Entities); len(meta) > 0 {
		events = append(events, &Event{Kind: EventCitations, Citations: meta})
	}

	for _, att := range act.Attachments {
		if att.ContentType == ContentTypeAdaptiveCard && len(att.Content) > 0 {
			events = append(events, &Event{Kind: EventAdaptiveCard, Card: att.Content})
		} else {
			events = append(events, &Event{Kind: EventAttachment, Attachment: &att})
		}
	}

	if act.SuggestedActions != nil && len(act.SuggestedActions.Actions) > 0 {
		titles := make([]string, 0, len(act.SuggestedActions.Actions))
		for _, a := range act.SuggestedActions.Actions {
			if a.Title != "" {
				titles = append(titles, a.Title)
			}
		}
		if len(titles) > 0 {
			events = append(events, &Event{Kind: EventSuggestion, Suggestions: titles})
		}
	}

	return events
}

// traceToEvents maps event/trace activities to status, thought, and
// search-result events.
func traceToEvents(act *Activity) []*Event {
	switch {
	case strings.EqualFold(act.ValueType, "ReasoningThought"):
		var v thoughtValue
		if err := json.Unmarshal(act.Value, &v); err != nil {
			return nil
		}
		if v.Task == "" {
			v.Task = "Processing"
		}
		return []*Event{{Kind: EventThought, Thought: &Thought{Task: v.Task, Text: v.Text}}}

	case strings.EqualFold(act.ValueType, "SearchResult"):
		var v searchResultValue
		if err := json.Unmarshal(act.Value, &v); err != nil {
			return nil
		}
		return []*Event{{Kind: EventSearchResult, SearchResult: &citations.SearchResult{
			Index: v.Index,
			Title: v.Title,
			URL:   v.URL,
		}}}

	case act.Text != "":
		return []*Event{{Kind: EventStatus, Text: act.Text}}
	}
	return nil
}

// claimEntities collects citation metadata from schema.org Claim entities,
// keyed by citation ID.
func claimEntities(entities []Entity) map[string]citations.Source {
	var meta map[string]citations.Source
	for _, e := range entities {
		if e.Type != entityTypeClaim || e.ID == "" {
			continue
		}
		if meta == nil {
			meta = make(map[string]citations.Source)
		}
		// First entity for an ID wins; the endpoint occasionally repeats
		// claims with less metadata on later activities.
		if _, seen := meta[e.ID]; seen {
			continue
		}
		meta[e.ID] = citations.Source{Title: e.Name, URL: e.URL}
	}
	return meta
}
