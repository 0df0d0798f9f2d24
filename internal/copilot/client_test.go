// ABOUTME: Tests for the conversation client against a fake SSE endpoint
// ABOUTME: Covers conversation start, event ordering, and error mapping

package copilot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sseHandler writes the given activities as one SSE frame each.
func sseHandler(t *testing.T, activities ...string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "text/event-stream")
		for _, a := range activities {
			fmt.Fprintf(w, "event: activity\ndata: %s\n\n", a)
		}
	}
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(Options{
		EnvironmentID:   "aaaabbbb-cccc-dddd-eeee-ffff00001122",
		AgentIdentifier: "cr1b2_testAgent",
		Token:           "test-token",
		BaseURL:         srv.URL,
		HTTPClient:      srv.Client(),
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client, srv
}

func TestEnvironmentHost(t *testing.T) {
	host := environmentHost("AAAABBBB-CCCC-DDDD-EEEE-FFFF00001122")
	assert.Equal(t, "aaaabbbbccccddddeeeeffff000011.22.environment.api.powerplatform.com", host)
}

func TestNew_RequiredOptions(t *testing.T) {
	_, err := New(Options{AgentIdentifier: "a", Token: "t"})
	require.Error(t, err)

	_, err = New(Options{EnvironmentID: "e", AgentIdentifier: "a"})
	require.Error(t, err)
}

func TestStartConversation_ReturnsHandleAndGreeting(t *testing.T) {
	client, _ := newTestClient(t, sseHandler(t,
		`{"type":"event","name":"startConversation","conversation":{"id":"conv-123"}}`,
		`{"type":"message","text":"Hello! How can I help?","conversation":{"id":"conv-123"}}`,
	))

	greeting, err := client.StartConversation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Hello! How can I help?", greeting)
	assert.Equal(t, "conv-123", client.ConversationID())
}

func TestStartConversation_NoConversationID(t *testing.T) {
	client, _ := newTestClient(t, sseHandler(t, `{"type":"typing"}`))

	_, err := client.StartConversation(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conversation ID")
}

func TestSendMessage_RequiresStartedConversation(t *testing.T) {
	client, _ := newTestClient(t, sseHandler(t))
	_, err := client.SendMessage(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrNoConversation)
}

func TestSendMessage_EventOrder(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /copilotstudio/dataverse-backed/authenticated/bots/cr1b2_testAgent/conversations", sseHandler(t,
		`{"type":"event","conversation":{"id":"conv-1"}}`,
	))
	mux.HandleFunc("POST /copilotstudio/dataverse-backed/authenticated/bots/cr1b2_testAgent/conversations/conv-1", sseHandler(t,
		`{"type":"typing","channelData":{"streamType":"informative"},"text":"Searching..."}`,
		`{"type":"trace","valueType":"ReasoningThought","value":{"task":"Plan","text":"look it up"}}`,
		`{"type":"trace","valueType":"SearchResult","value":{"index":0,"title":"Doc","url":"https://doc"}}`,
		`{"type":"typing","channelData":{"streamType":"streaming","streamSequence":1},"text":"Hel"}`,
		`{"type":"typing","channelData":{"streamType":"streaming","streamSequence":2},"text":"lo"}`,
		`{"type":"message","text":"Hello","entities":[{"type":"https://schema.org/Claim","@id":"turn1search0","name":"Doc"}]}`,
		`{"type":"endOfConversation"}`,
	))

	client, _ := newTestClient(t, mux)
	_, err := client.StartConversation(context.Background())
	require.NoError(t, err)

	events, err := client.SendMessage(context.Background(), "hello")
	require.NoError(t, err)

	var kinds []EventKind
	var deltas string
	for ev := range events {
		kinds = append(kinds, ev.Kind)
		if ev.Kind == EventContentDelta {
			deltas += ev.Text
		}
	}

	assert.Equal(t, []EventKind{
		EventStatus, EventThought, EventSearchResult,
		EventContentDelta, EventContentDelta,
		EventFinalContent, EventCitations, EventDone,
	}, kinds)
	assert.Equal(t, "Hello", deltas)
}

func TestSendMessage_EOFWithoutEndActivityYieldsDone(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /copilotstudio/dataverse-backed/authenticated/bots/cr1b2_testAgent/conversations", sseHandler(t,
		`{"type":"event","conversation":{"id":"conv-1"}}`,
	))
	mux.HandleFunc("POST /copilotstudio/dataverse-backed/authenticated/bots/cr1b2_testAgent/conversations/conv-1", sseHandler(t,
		`{"type":"message","text":"done talking"}`,
	))

	client, _ := newTestClient(t, mux)
	_, err := client.StartConversation(context.Background())
	require.NoError(t, err)

	events, err := client.SendMessage(context.Background(), "bye")
	require.NoError(t, err)

	var last EventKind = -1
	for ev := range events {
		last = ev.Kind
	}
	assert.Equal(t, EventDone, last)
}

func TestSendMessage_MalformedFrameSkipped(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /copilotstudio/dataverse-backed/authenticated/bots/cr1b2_testAgent/conversations", sseHandler(t,
		`{"type":"event","conversation":{"id":"conv-1"}}`,
	))
	mux.HandleFunc("POST /copilotstudio/dataverse-backed/authenticated/bots/cr1b2_testAgent/conversations/conv-1", sseHandler(t,
		`{this is not json`,
		`{"type":"message","text":"still fine"}`,
	))

	client, _ := newTestClient(t, mux)
	_, err := client.StartConversation(context.Background())
	require.NoError(t, err)

	events, err := client.SendMessage(context.Background(), "x")
	require.NoError(t, err)

	var texts []string
	for ev := range events {
		if ev.Kind == EventFinalContent {
			texts = append(texts, ev.Text)
		}
	}
	assert.Equal(t, []string{"still fine"}, texts)
}

func TestSendMessage_RedeliveredActivitySkipped(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /copilotstudio/dataverse-backed/authenticated/bots/cr1b2_testAgent/conversations", sseHandler(t,
		`{"type":"event","conversation":{"id":"conv-1"}}`,
	))
	mux.HandleFunc("POST /copilotstudio/dataverse-backed/authenticated/bots/cr1b2_testAgent/conversations/conv-1", sseHandler(t,
		`{"type":"message","id":"act-1","text":"once"}`,
		`{"type":"message","id":"act-1","text":"once"}`,
		`{"type":"message","id":"act-2","text":"twice"}`,
	))

	client, _ := newTestClient(t, mux)
	_, err := client.StartConversation(context.Background())
	require.NoError(t, err)

	events, err := client.SendMessage(context.Background(), "x")
	require.NoError(t, err)

	var texts []string
	for ev := range events {
		if ev.Kind == EventFinalContent {
			texts = append(texts, ev.Text)
		}
	}
	assert.Equal(t, []string{"once", "twice"}, texts)
}

func TestPost_UnauthorizedMapped(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := client.StartConversation(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
}

// captureRecorder collects raw activities for debug-capture assertions.
type captureRecorder struct {
	mu  sync.Mutex
	raw []json.RawMessage
}

func (r *captureRecorder) Record(activity json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.raw = append(r.raw, activity)
}

func TestRecorder_ReceivesEveryActivity(t *testing.T) {
	rec := &captureRecorder{}
	srv := httptest.NewServer(sseHandler(t,
		`{"type":"event","conversation":{"id":"conv-9"}}`,
		`{"type":"message","text":"hi"}`,
	))
	t.Cleanup(srv.Close)

	client, err := New(Options{
		EnvironmentID:   "aaaabbbb-cccc-dddd-eeee-ffff00001122",
		AgentIdentifier: "agent",
		Token:           "test-token",
		BaseURL:         srv.URL,
		HTTPClient:      srv.Client(),
		Recorder:        rec,
	})
	require.NoError(t, err)

	_, err = client.StartConversation(context.Background())
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Len(t, rec.raw, 2)
}
