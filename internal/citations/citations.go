// ABOUTME: Citation marker parsing and reference numbering for agent responses
// ABOUTME: Replaces inline [cite:ID] markers with stable first-seen reference numbers

package citations

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// markerPrefix opens an inline citation marker. A well-formed marker is
// "[cite:" followed by the citation ID and a closing "]". Anything else
// (including a marker cut off by the end of a streaming chunk) is left as
// literal text.
const markerPrefix = "[cite:"

// searchIndexPattern extracts the positional index from citation IDs that
// end in "searchN" (e.g. "turn52search0" -> 0).
var searchIndexPattern = regexp.MustCompile(`search(\d+)$`)

// Source holds the display metadata for a single citation ID.
type Source struct {
	Title string
	URL   string
}

// SearchResult is a positionally-indexed result reported by the agent while
// answering. It is the secondary metadata source for citations whose entity
// metadata is incomplete.
type SearchResult struct {
	Index int    `json:"index"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Citation is one resolved reference in display order.
type Citation struct {
	Number int
	ID     string
	Title  string
	URL    string
}

// Strip rewrites text for streaming display: every well-formed marker becomes
// a bare bracketed number with no link. Numbering is first-seen order, so the
// numbers match what Resolve produces for the same text.
func Strip(text string) string {
	out, _ := replaceMarkers(text, func(n int, id string) string {
		return "[" + strconv.Itoa(n) + "]"
	})
	return out
}

// Resolve rewrites text for final display and returns the ordered citation
// list. Metadata precedence: the entity map wins; search results fill in
// missing URL and title by positional index. IDs found in neither source
// still get a number but no link.
func Resolve(text string, meta map[string]Source, results []SearchResult) (string, []Citation) {
	resolved := make(map[string]Source, len(meta))
	for id, src := range meta {
		resolved[id] = enrich(id, src, results)
	}

	var cites []Citation
	out, order := replaceMarkers(text, func(n int, id string) string {
		return "[" + strconv.Itoa(n) + "]"
	})
	for i, id := range order {
		src, ok := resolved[id]
		if !ok {
			// No entity metadata at all; search results may still know the ID.
			src = enrich(id, Source{}, results)
		}
		cites = append(cites, Citation{
			Number: i + 1,
			ID:     id,
			Title:  src.Title,
			URL:    src.URL,
		})
	}
	return out, cites
}

// References renders the trailing reference block as markdown. Citations
// without a URL are listed as plain text. Returns "" when there is nothing
// to list.
func References(cites []Citation) string {
	if len(cites) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\n---\n**References:**\n\n")
	for _, c := range cites {
		title := c.Title
		if title == "" {
			title = c.ID
		}
		if c.URL != "" {
			fmt.Fprintf(&b, "%d. [%s](%s)\n", c.Number, title, c.URL)
		} else {
			fmt.Fprintf(&b, "%d. %s\n", c.Number, title)
		}
	}
	return b.String()
}

// enrich fills blank fields of src from the search result whose index matches
// the trailing "searchN" suffix of the citation ID.
func enrich(id string, src Source, results []SearchResult) Source {
	if src.URL != "" && src.Title != "" {
		return src
	}
	m := searchIndexPattern.FindStringSubmatch(id)
	if m == nil {
		return src
	}
	idx, err := strconv.Atoi(m[1])
	if err != nil {
		return src
	}
	for _, r := range results {
		if r.Index != idx {
			continue
		}
		if src.URL == "" {
			src.URL = r.URL
		}
		if src.Title == "" {
			src.Title = r.Title
		}
		break
	}
	return src
}

// replaceMarkers scans text for well-formed markers, assigns first-seen
// numbers, and substitutes the result of render(number, id). It returns the
// rewritten text and the distinct IDs in first-seen order. Malformed or
// unterminated markers are passed through untouched.
func replaceMarkers(text string, render func(n int, id string) string) (string, []string) {
	var (
		b       strings.Builder
		order   []string
		numbers = make(map[string]int)
	)

	rest := text
	for {
		i := strings.Index(rest, markerPrefix)
		if i < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:i])
		tail := rest[i:]

		end := strings.IndexByte(tail, ']')
		if end < 0 {
			// Unterminated marker: leave it verbatim.
			b.WriteString(tail)
			break
		}

		id := tail[len(markerPrefix):end]
		if id == "" || strings.ContainsAny(id, " \t\n") {
			// Not a citation marker after all; emit the opening bracket and
			// rescan from the next character so nested brackets still work.
			b.WriteString(rest[i : i+1])
			rest = rest[i+1:]
			continue
		}

		n, seen := numbers[id]
		if !seen {
			n = len(order) + 1
			numbers[id] = n
			order = append(order, id)
		}
		b.WriteString(render(n, id))
		rest = tail[end+1:]
	}

	return b.String(), order
}
