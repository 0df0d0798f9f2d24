// ABOUTME: Tests for streaming response aggregation
// ABOUTME: Covers delta ordering, final-content fallback, and citation merge

package stream

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/copilot-chat/internal/citations"
	"github.com/2389/copilot-chat/internal/copilot"
)

func TestAggregator_DeltasConcatenateInOrder(t *testing.T) {
	a := New()
	for _, chunk := range []string{"The ", "quick ", "brown ", "fox"} {
		a.Apply(&copilot.Event{Kind: copilot.EventContentDelta, Text: chunk})
	}
	a.Apply(&copilot.Event{Kind: copilot.EventDone})

	assert.Equal(t, "The quick brown fox", a.Content())
	assert.True(t, a.Done())
}

func TestAggregator_FinalContentIgnoredWhenStreamed(t *testing.T) {
	a := New()
	a.Apply(&copilot.Event{Kind: copilot.EventContentDelta, Text: "streamed"})
	a.Apply(&copilot.Event{Kind: copilot.EventFinalContent, Text: "streamed-from-message-activity"})

	assert.Equal(t, "streamed", a.Content())
}

func TestAggregator_FinalContentUsedWithoutStreaming(t *testing.T) {
	a := New()
	a.Apply(&copilot.Event{Kind: copilot.EventFinalContent, Text: "whole response"})

	assert.Equal(t, "whole response", a.Content())
}

func TestAggregator_StatusEphemeral(t *testing.T) {
	a := New()
	a.Apply(&copilot.Event{Kind: copilot.EventStatus, Text: "Searching..."})
	assert.Equal(t, "Searching...", a.Status())

	a.Apply(&copilot.Event{Kind: copilot.EventStatus, Text: "Summarizing..."})
	assert.Equal(t, "Summarizing...", a.Status())

	a.Apply(&copilot.Event{Kind: copilot.EventDone})
	assert.Empty(t, a.Status())
}

func TestAggregator_ThoughtsAppend(t *testing.T) {
	a := New()
	a.Apply(&copilot.Event{Kind: copilot.EventThought, Thought: &copilot.Thought{Task: "Plan", Text: "first"}})
	a.Apply(&copilot.Event{Kind: copilot.EventThought, Thought: &copilot.Thought{Task: "Act", Text: "second"}})

	thoughts := a.Thoughts()
	require.Len(t, thoughts, 2)
	assert.Equal(t, "Plan", thoughts[0].Task)
	assert.Equal(t, "second", thoughts[1].Text)
}

func TestAggregator_StreamingTextStripsMarkers(t *testing.T) {
	a := New()
	a.Apply(&copilot.Event{Kind: copilot.EventContentDelta, Text: "fact [cite:turn1search0] more"})
	assert.Equal(t, "fact [1] more", a.StreamingText())
}

func TestAggregator_CitationMetadataMerges(t *testing.T) {
	a := New()
	a.Apply(&copilot.Event{Kind: copilot.EventCitations, Citations: map[string]citations.Source{
		"turn1search0": {Title: "Doc"},
	}})
	// Later repeat carries the URL but not the title; both must survive.
	a.Apply(&copilot.Event{Kind: copilot.EventCitations, Citations: map[string]citations.Source{
		"turn1search0": {URL: "https://doc.example"},
	}})
	a.Apply(&copilot.Event{Kind: copilot.EventContentDelta, Text: "see [cite:turn1search0]"})

	result := a.Finalize()
	require.Len(t, result.Citations, 1)
	assert.Equal(t, "Doc", result.Citations[0].Title)
	assert.Equal(t, "https://doc.example", result.Citations[0].URL)
}

func TestAggregator_FinalizeEnrichesFromSearchResults(t *testing.T) {
	a := New()
	a.Apply(&copilot.Event{Kind: copilot.EventSearchResult, SearchResult: &citations.SearchResult{
		Index: 0, Title: "Search Doc", URL: "https://search.example",
	}})
	a.Apply(&copilot.Event{Kind: copilot.EventCitations, Citations: map[string]citations.Source{
		"turn3search0": {},
	}})
	a.Apply(&copilot.Event{Kind: copilot.EventContentDelta, Text: "x [cite:turn3search0]"})

	result := a.Finalize()
	require.Len(t, result.Citations, 1)
	assert.Equal(t, "https://search.example", result.Citations[0].URL)
	assert.Contains(t, result.Text, "[Search Doc](https://search.example)")
}

func TestAggregator_FinalizeNumbersMatchStreaming(t *testing.T) {
	a := New()
	a.Apply(&copilot.Event{Kind: copilot.EventContentDelta, Text: "a [cite:x] b [cite:y] c [cite:x]"})

	streaming := a.StreamingText()
	result := a.Finalize()
	assert.Contains(t, result.Text, "a [1] b [2] c [1]")
	assert.Equal(t, "a [1] b [2] c [1]", streaming)
}

func TestAggregator_CollectsCardsAndSuggestions(t *testing.T) {
	a := New()
	card := json.RawMessage(`{"type":"AdaptiveCard"}`)
	a.Apply(&copilot.Event{Kind: copilot.EventAdaptiveCard, Card: card})
	a.Apply(&copilot.Event{Kind: copilot.EventSuggestion, Suggestions: []string{"Tell me more"}})

	result := a.Finalize()
	require.Len(t, result.Cards, 1)
	assert.JSONEq(t, `{"type":"AdaptiveCard"}`, string(result.Cards[0]))
	assert.Equal(t, []string{"Tell me more"}, result.Suggestions)
}

func TestAggregator_ErrorRecorded(t *testing.T) {
	a := New()
	a.Apply(&copilot.Event{Kind: copilot.EventError, Text: "boom"})
	assert.Equal(t, "boom", a.Err())
}
