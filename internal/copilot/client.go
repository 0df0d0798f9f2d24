// ABOUTME: Conversation client for the Copilot Studio direct-to-engine API
// ABOUTME: Starts conversations and streams typed events parsed from SSE activities

package copilot

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/2389/copilot-chat/internal/ttlcache"
)

const apiVersion = "2022-03-01-preview"

// Client errors.
var (
	ErrNoConversation = errors.New("conversation not started")
	ErrUnauthorized   = errors.New("copilot studio rejected the access token")
)

// Recorder receives every raw activity for debug capture. Implementations
// must be safe for use from the streaming goroutine.
type Recorder interface {
	Record(activity json.RawMessage)
}

// Options configures a conversation client.
type Options struct {
	// EnvironmentID is the Power Platform environment hosting the agent.
	EnvironmentID string
	// AgentIdentifier is the published agent's schema name.
	AgentIdentifier string
	// Token is the user's delegated access token.
	Token string
	// ConnectTimeout bounds StartConversation. Zero means 30s.
	ConnectTimeout time.Duration
	// Recorder, when non-nil, receives every raw activity.
	Recorder Recorder
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
	// BaseURL overrides the derived environment endpoint, mainly for tests.
	BaseURL string
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Client wraps one Copilot Studio conversation. It is owned by a single
// session and is not safe for concurrent sends; the session lock serializes
// access.
type Client struct {
	baseURL        string
	agentID        string
	token          string
	conversationID string
	connectTimeout time.Duration
	httpClient     *http.Client
	recorder       Recorder
	logger         *slog.Logger

	// seen suppresses redelivered activities by ID.
	seen *ttlcache.Cache
}

// New creates a conversation client. The conversation itself is not started
// until StartConversation is called.
func New(opts Options) (*Client, error) {
	if opts.EnvironmentID == "" || opts.AgentIdentifier == "" {
		return nil, errors.New("environment ID and agent identifier are required")
	}
	if opts.Token == "" {
		return nil, errors.New("access token is required")
	}

	base := opts.BaseURL
	if base == "" {
		base = "https://" + environmentHost(opts.EnvironmentID)
	}
	connectTimeout := opts.ConnectTimeout
	if connectTimeout == 0 {
		connectTimeout = 30 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:        base,
		agentID:        opts.AgentIdentifier,
		token:          opts.Token,
		connectTimeout: connectTimeout,
		httpClient:     httpClient,
		recorder:       opts.Recorder,
		logger:         logger.With("component", "copilot"),
		seen:           ttlcache.New(10*time.Minute, 4096),
	}, nil
}

// Close releases client resources. The conversation itself has no explicit
// teardown on the wire.
func (c *Client) Close() {
	c.seen.Close()
}

// environmentHost derives the per-environment API hostname from the
// environment GUID: hyphens removed, last two hex characters split off as the
// cluster suffix.
func environmentHost(envID string) string {
	normalized := strings.ReplaceAll(strings.ToLower(envID), "-", "")
	if len(normalized) < 2 {
		return normalized + ".environment.api.powerplatform.com"
	}
	split := len(normalized) - 2
	return normalized[:split] + "." + normalized[split:] + ".environment.api.powerplatform.com"
}

// ConversationID returns the handle of the started conversation, or "" before
// StartConversation succeeds.
func (c *Client) ConversationID() string {
	return c.conversationID
}

// StartConversation opens a new conversation and returns the agent's greeting
// text, if any. The conversation handle is retained on the client for
// subsequent sends.
func (c *Client) StartConversation(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/copilotstudio/dataverse-backed/authenticated/bots/%s/conversations?api-version=%s",
		c.baseURL, c.agentID, apiVersion)
	body := []byte(`{"emitStartConversationEvent":true}`)

	resp, err := c.post(ctx, url, body)
	if err != nil {
		return "", fmt.Errorf("starting conversation: %w", err)
	}
	defer resp.Body.Close()

	var greeting strings.Builder
	err = c.readActivities(ctx, resp.Body, func(act *Activity) {
		if act.Conversation != nil && act.Conversation.ID != "" {
			c.conversationID = act.Conversation.ID
		}
		if act.Type == ActivityMessage && act.Text != "" {
			greeting.WriteString(act.Text)
		}
	})
	if err != nil {
		return "", fmt.Errorf("reading conversation start: %w", err)
	}
	if c.conversationID == "" {
		return "", errors.New("endpoint returned no conversation ID")
	}

	c.logger.Debug("conversation started", "conversation_id", c.conversationID)
	return greeting.String(), nil
}

// SendMessage sends user text and returns an ordered channel of typed events.
// The channel is closed after the terminal event (done or error). Events are
// emitted strictly in activity arrival order.
func (c *Client) SendMessage(ctx context.Context, text string) (<-chan *Event, error) {
	if c.conversationID == "" {
		return nil, ErrNoConversation
	}

	url := fmt.Sprintf("%s/copilotstudio/dataverse-backed/authenticated/bots/%s/conversations/%s?api-version=%s",
		c.baseURL, c.agentID, c.conversationID, apiVersion)

	payload := map[string]any{
		"activity": map[string]any{
			"type": ActivityMessage,
			"text": text,
			"from": map[string]string{"id": "user", "role": "user"},
			"conversation": map[string]string{"id": c.conversationID},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding activity: %w", err)
	}

	resp, err := c.post(ctx, url, body)
	if err != nil {
		return nil, fmt.Errorf("sending message: %w", err)
	}

	events := make(chan *Event, 64)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		sawDone := false
		err := c.readActivities(ctx, resp.Body, func(act *Activity) {
			for _, ev := range activityToEvents(act) {
				if ev.Kind == EventDone {
					sawDone = true
				}
				select {
				case events <- ev:
				case <-ctx.Done():
					return
				}
			}
		})
		if err != nil && ctx.Err() == nil {
			events <- &Event{Kind: EventError, Text: err.Error()}
			return
		}
		if !sawDone && ctx.Err() == nil {
			// Stream ended without an explicit end-of-conversation activity;
			// EOF on the response body is the terminal signal.
			events <- &Event{Kind: EventDone}
		}
	}()

	return events, nil
}

// post issues an SSE POST and maps HTTP-level failures to errors.
func (c *Client) post(ctx context.Context, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		return resp, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		resp.Body.Close()
		return nil, ErrUnauthorized
	default:
		msg := readErrorBody(resp.Body)
		resp.Body.Close()
		if msg != "" {
			return nil, fmt.Errorf("endpoint returned status %d: %s", resp.StatusCode, msg)
		}
		return nil, fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
}

// readErrorBody extracts a short error message from a non-SSE error response.
func readErrorBody(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return ""
	}
	var errResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &errResp) == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}
	return strings.TrimSpace(string(data))
}

// readActivities parses an SSE stream, decoding each data payload as an
// activity and invoking handle for it. Frames that do not decode as
// activities are skipped; a broken frame must not abort the stream.
func (c *Client) readActivities(ctx context.Context, body io.Reader, handle func(*Activity)) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var dataLines []string
	flush := func() {
		if len(dataLines) == 0 {
			return
		}
		data := strings.Join(dataLines, "\n")
		dataLines = nil

		raw := json.RawMessage(data)
		var act Activity
		if err := json.Unmarshal(raw, &act); err != nil {
			c.logger.Debug("skipping undecodable SSE frame", "error", err)
			return
		}
		if act.ID != "" && c.seen.Seen(act.ID) {
			c.logger.Debug("skipping redelivered activity", "activity_id", act.ID)
			return
		}
		if c.recorder != nil {
			c.recorder.Record(raw)
		}
		handle(&act)
	}

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Text()
		if line == "" {
			flush()
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue // heartbeat comment
		}
		if strings.HasPrefix(line, "data:") {
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
		// "event:" and "id:" fields are not significant for this endpoint.
	}
	flush()

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading event stream: %w", err)
	}
	return nil
}
