// Package respond renders raw synthesis output into the final user-facing
// answer: a conversational wrapper, list formatting, source attribution,
// and the fixed empty-query and not-found messages.
//
// Formatting never alters factual content. All variation is deterministic:
// phrase variants are selected by hashing the query topic, so the same
// query always renders the same way.
package respond

import (
	"fmt"
	"hash/fnv"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/anserhq/anser/internal/document"
	"github.com/anserhq/anser/internal/index"
)

// EmptyQueryAnswer is returned for an empty or whitespace-only query
// without touching the index or the generation backend.
const EmptyQueryAnswer = "Hello! How can I help you today? Ask me anything about the documents I have indexed."

// maxListedSources caps the attribution line.
const maxListedSources = 3

var acknowledgments = []string{
	"Great question about %s!",
	"Happy to help with %s.",
	"Here's what I found about %s:",
}

var closings = []string{
	"Let me know if you'd like more detail on any of this.",
	"Feel free to ask a follow-up question.",
	"Is there anything else you'd like to know?",
}

var notFoundSuggestions = []string{
	"You could try rephrasing the question or adding the relevant document to my index.",
	"Rephrasing with different keywords, or ingesting a document that covers this, may help.",
	"If you have a document covering this topic, ingesting it will let me answer next time.",
}

// questionStarters are stripped from the front of a query when inferring
// its topic.
var questionStarters = []string{
	"what is", "what are", "what was", "what were",
	"how do i", "how does", "how can i", "how to",
	"who is", "who are", "where is", "where are",
	"when is", "when was", "why is", "why does",
	"tell me about", "can you tell me", "can you explain",
	"explain", "describe", "please",
}

var (
	weirdEntryMarker = regexp.MustCompile(`(?m)^\s*WEIRD_ENTRY_\d+:\s*`)
	specialInfoBlock = regexp.MustCompile(`(?s)SPECIAL_TEST_INFO_START(.*?)SPECIAL_TEST_INFO_END`)
	listLine         = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+`)
	spaceRun         = regexp.MustCompile(`[ \t]{2,}`)
	blankRun         = regexp.MustCompile(`\n{3,}`)
)

// Formatter renders final answers. Stateless and safe for concurrent use.
type Formatter struct{}

// NewFormatter builds a Formatter.
func NewFormatter() *Formatter {
	return &Formatter{}
}

// Format wraps a grounded answer with an acknowledgment of the query's
// topic, list formatting where the answer is itemized, a source
// attribution line, and a closing invitation.
func (f *Formatter) Format(answer, query string, sources []index.ScoredCandidate) string {
	topic := inferTopic(query)

	body := cleanMarkers(answer)
	body = formatLists(body)
	body = normalize(body)

	var b strings.Builder
	fmt.Fprintf(&b, pick(acknowledgments, topic), topic)
	b.WriteString("\n\n")
	b.WriteString(body)

	if line := sourceLine(sources); line != "" {
		b.WriteString("\n\n")
		b.WriteString(line)
	}

	b.WriteString("\n\n")
	b.WriteString(pick(closings, topic))

	return normalize(b.String())
}

// NotFound renders the fixed-shape non-answer: acknowledge the gap,
// apologize, and offer a next step.
func (f *Formatter) NotFound(query string) string {
	topic := inferTopic(query)
	return normalize(fmt.Sprintf(
		"I looked through my indexed documents but couldn't find anything about %s. "+
			"Sorry about that. %s\n\n%s",
		topic, pick(notFoundSuggestions, topic), pick(closings, topic)))
}

// inferTopic extracts a short topic phrase from the query: question
// starters are stripped, punctuation trimmed, and the first five remaining
// words kept.
func inferTopic(query string) string {
	topic := strings.ToLower(strings.TrimSpace(query))
	topic = strings.TrimRight(topic, "?!. ")

	for changed := true; changed; {
		changed = false
		for _, starter := range questionStarters {
			if strings.HasPrefix(topic, starter+" ") {
				topic = strings.TrimSpace(strings.TrimPrefix(topic, starter))
				changed = true
			}
		}
	}

	words := strings.Fields(topic)
	if len(words) == 0 {
		return "that"
	}
	if len(words) > 5 {
		words = words[:5]
	}
	return strings.Join(words, " ")
}

// pick selects a phrase variant deterministically from the topic.
func pick(variants []string, topic string) string {
	h := fnv.New32a()
	h.Write([]byte(topic))
	return variants[h.Sum32()%uint32(len(variants))]
}

// cleanMarkers strips ingestion artifacts that occasionally leak into
// answers verbatim from indexed content: WEIRD_ENTRY_n prefixes become
// plain lines, SPECIAL_TEST_INFO blocks become bullet lists.
func cleanMarkers(text string) string {
	text = weirdEntryMarker.ReplaceAllString(text, "")
	text = specialInfoBlock.ReplaceAllStringFunc(text, func(block string) string {
		inner := specialInfoBlock.FindStringSubmatch(block)[1]
		var items []string
		for _, line := range strings.Split(inner, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			items = append(items, "- "+line)
		}
		return strings.Join(items, "\n")
	})
	return text
}

// formatLists normalizes itemized answers to uniform "- " bullets. Answers
// with fewer than two list-like lines are left untouched.
func formatLists(text string) string {
	lines := strings.Split(text, "\n")
	listCount := 0
	for _, line := range lines {
		if listLine.MatchString(line) {
			listCount++
		}
	}
	if listCount < 2 {
		return text
	}

	for i, line := range lines {
		if loc := listLine.FindStringIndex(line); loc != nil {
			lines[i] = "- " + strings.TrimSpace(line[loc[1]:])
		}
	}
	return strings.Join(lines, "\n")
}

// sourceLine renders up to three distinct source names, cleaned for
// display.
func sourceLine(sources []index.ScoredCandidate) string {
	var names []string
	seen := map[string]bool{}
	for _, src := range sources {
		name := displayName(src.Chunk)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
		if len(names) == maxListedSources {
			break
		}
	}
	if len(names) == 0 {
		return ""
	}
	return "Sources: " + strings.Join(names, ", ")
}

// displayName reduces a source path or URL to a readable label.
func displayName(chunk document.Document) string {
	raw, ok := chunk.Metadata[document.MetaSource].(string)
	if !ok || raw == "" {
		return ""
	}
	if strings.Contains(raw, "://") {
		return raw
	}
	base := filepath.Base(raw)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// normalize collapses whitespace runs and trims edges without touching
// content.
func normalize(text string) string {
	text = spaceRun.ReplaceAllString(text, " ")
	text = blankRun.ReplaceAllString(text, "\n\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
