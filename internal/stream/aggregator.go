// ABOUTME: Folds ordered conversation events into UI-visible response state
// ABOUTME: Deltas concatenate in arrival order; status is ephemeral; thoughts append

package stream

import (
	"encoding/json"
	"strings"

	"github.com/2389/copilot-chat/internal/citations"
	"github.com/2389/copilot-chat/internal/copilot"
)

// Aggregator accumulates the events of one in-progress response. It is not
// safe for concurrent use; one goroutine owns it for the duration of a send.
type Aggregator struct {
	status        string
	thoughts      []copilot.Thought
	searchResults []citations.SearchResult
	parts         []string
	finalContent  string
	gotStreaming  bool
	meta          map[string]citations.Source
	suggestions   []string
	cards         []json.RawMessage
	attachments   []copilot.Attachment
	err           string
	done          bool
}

// New creates an empty aggregator.
func New() *Aggregator {
	return &Aggregator{meta: make(map[string]citations.Source)}
}

// Apply folds one event into the state. Events must be applied in the order
// they were received.
func (a *Aggregator) Apply(ev *copilot.Event) {
	switch ev.Kind {
	case copilot.EventStatus:
		a.status = ev.Text

	case copilot.EventThought:
		if ev.Thought != nil {
			a.thoughts = append(a.thoughts, *ev.Thought)
		}

	case copilot.EventSearchResult:
		if ev.SearchResult != nil {
			a.searchResults = append(a.searchResults, *ev.SearchResult)
		}

	case copilot.EventContentDelta:
		a.parts = append(a.parts, ev.Text)
		a.gotStreaming = true

	case copilot.EventFinalContent:
		// Authoritative only when no streaming chunks arrived; otherwise the
		// concatenated deltas already carry the full text.
		a.finalContent = ev.Text

	case copilot.EventCitations:
		for id, src := range ev.Citations {
			if existing, ok := a.meta[id]; ok {
				// Merge rather than overwrite: later activities may repeat a
				// claim with fewer fields.
				if existing.Title == "" {
					existing.Title = src.Title
				}
				if existing.URL == "" {
					existing.URL = src.URL
				}
				a.meta[id] = existing
				continue
			}
			a.meta[id] = src
		}

	case copilot.EventSuggestion:
		a.suggestions = append(a.suggestions, ev.Suggestions...)

	case copilot.EventAdaptiveCard:
		a.cards = append(a.cards, ev.Card)

	case copilot.EventAttachment:
		if ev.Attachment != nil {
			a.attachments = append(a.attachments, *ev.Attachment)
		}

	case copilot.EventDone:
		a.done = true
		a.status = ""

	case copilot.EventError:
		a.err = ev.Text
	}
}

// Status returns the current ephemeral status line ("" after completion).
func (a *Aggregator) Status() string { return a.status }

// Thoughts returns the appended chain-of-thought entries.
func (a *Aggregator) Thoughts() []copilot.Thought { return a.thoughts }

// Done reports whether the terminal event has been applied.
func (a *Aggregator) Done() bool { return a.done }

// Err returns the stream error text, or "".
func (a *Aggregator) Err() string { return a.err }

// Suggestions returns the collected follow-up suggestions.
func (a *Aggregator) Suggestions() []string { return a.suggestions }

// Cards returns the collected adaptive card payloads.
func (a *Aggregator) Cards() []json.RawMessage { return a.cards }

// Content returns the raw response text: the concatenated deltas, or the
// final-content fallback when no streaming chunks were received.
func (a *Aggregator) Content() string {
	if a.gotStreaming || a.finalContent == "" {
		return strings.Join(a.parts, "")
	}
	return a.finalContent
}

// StreamingText returns the accumulated text for incremental display:
// citation markers become plain bracketed numbers with no links.
func (a *Aggregator) StreamingText() string {
	return citations.Strip(a.Content())
}

// Result is the finalized response: display text with a trailing references
// block, the ordered citation list, and the collected rich content.
type Result struct {
	Text        string
	Citations   []citations.Citation
	Suggestions []string
	Cards       []json.RawMessage
	Attachments []copilot.Attachment
}

// Finalize resolves citations against the collected metadata and returns the
// completed response. Safe to call once the event channel is drained.
func (a *Aggregator) Finalize() *Result {
	text, cites := citations.Resolve(a.Content(), a.meta, a.searchResults)
	if block := citations.References(cites); block != "" {
		text += block
	}
	return &Result{
		Text:        text,
		Citations:   cites,
		Suggestions: a.suggestions,
		Cards:       a.cards,
		Attachments: a.attachments,
	}
}
