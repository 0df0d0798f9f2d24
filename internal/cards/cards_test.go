// ABOUTME: Tests for Adaptive Card HTML rendering
// ABOUTME: Checks element support, escaping, sanitization, and fallbacks

package cards

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextBlockVariants(t *testing.T) {
	raw := json.RawMessage(`{
		"type": "AdaptiveCard",
		"body": [
			{"type": "TextBlock", "text": "Headline", "weight": "Bolder", "size": "Large"},
			{"type": "TextBlock", "text": "centered", "horizontalAlignment": "Center", "isSubtle": true},
			{"type": "TextBlock", "text": ""}
		]
	}`)

	out := string(RenderHTML(raw))
	assert.Contains(t, out, "<strong>Headline</strong>")
	assert.Contains(t, out, "font-size: 1.5em;")
	assert.Contains(t, out, "text-align: center;")
	assert.Contains(t, out, "opacity: 0.7;")
}

func TestTextBlockEscapesMarkup(t *testing.T) {
	raw := json.RawMessage(`{
		"type": "AdaptiveCard",
		"body": [{"type": "TextBlock", "text": "<script>alert(1)</script>"}]
	}`)

	out := string(RenderHTML(raw))
	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "alert(1)")
}

func TestImageSizes(t *testing.T) {
	raw := json.RawMessage(`{
		"type": "AdaptiveCard",
		"body": [
			{"type": "Image", "url": "https://example.com/a.png", "size": "Small", "altText": "logo"},
			{"type": "Image", "url": "https://example.com/b.png"}
		]
	}`)

	out := string(RenderHTML(raw))
	assert.Contains(t, out, `width: 80px`)
	assert.Contains(t, out, `alt="logo"`)
	assert.Contains(t, out, `max-width: 100%`)
}

func TestContainerAndColumns(t *testing.T) {
	raw := json.RawMessage(`{
		"type": "AdaptiveCard",
		"body": [{
			"type": "ColumnSet",
			"columns": [
				{"items": [{"type": "TextBlock", "text": "left"}]},
				{"items": [{"type": "Container", "items": [{"type": "TextBlock", "text": "right"}]}]}
			]
		}]
	}`)

	out := string(RenderHTML(raw))
	assert.Contains(t, out, "left")
	assert.Contains(t, out, "right")
	assert.Contains(t, out, "width: 50%")
}

func TestActionSetButtons(t *testing.T) {
	raw := json.RawMessage(`{
		"type": "AdaptiveCard",
		"body": [{
			"type": "ActionSet",
			"horizontalAlignment": "Right",
			"actions": [{"title": "Approve"}, {"title": ""}, {"title": "Reject"}]
		}]
	}`)

	out := string(RenderHTML(raw))
	assert.Contains(t, out, "<button")
	assert.Contains(t, out, "Approve")
	assert.Contains(t, out, "Reject")
	assert.Contains(t, out, "text-align: right;")
}

func TestFactSetRows(t *testing.T) {
	raw := json.RawMessage(`{
		"type": "AdaptiveCard",
		"body": [{
			"type": "FactSet",
			"facts": [{"title": "Status", "value": "Open"}, {"title": "Owner", "value": "Ada"}]
		}]
	}`)

	out := string(RenderHTML(raw))
	assert.Contains(t, out, "<strong>Status</strong>")
	assert.Contains(t, out, "Open")
	assert.Contains(t, out, "Ada")
}

func TestUnknownElementSkipped(t *testing.T) {
	raw := json.RawMessage(`{
		"type": "AdaptiveCard",
		"body": [
			{"type": "Mystery", "text": "hidden"},
			{"type": "TextBlock", "text": "shown"}
		]
	}`)

	out := string(RenderHTML(raw))
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
}

func TestHTMLStringPayloadSanitized(t *testing.T) {
	raw := json.RawMessage(`"<p>hello</p><script>alert(1)</script>"`)

	out := string(RenderHTML(raw))
	assert.Contains(t, out, "<p>hello</p>")
	assert.NotContains(t, out, "<script>")
}

func TestNonCardObjectFallsBackToJSON(t *testing.T) {
	raw := json.RawMessage(`{"type": "HeroCard", "title": "hi"}`)

	out := string(RenderHTML(raw))
	assert.Contains(t, out, "<pre><code>")
	assert.Contains(t, out, "HeroCard")
}
