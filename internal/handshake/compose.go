package handshake

import (
	"fmt"
	"regexp"
	"strings"

	"foldmem/internal/store"
)

// closingToken ends every handshake prompt exactly once.
const closingToken = "Continue."

var (
	threadLabels    = []string{"α", "β", "γ"}
	capitalizedRun  = regexp.MustCompile(`\b[A-Z][a-z]+(?: [A-Z][a-z]+)+\b`)
	sentenceBreaker = regexp.MustCompile(`[.!?]`)
)

// extractConcepts pulls the dream vocabulary out of a fold memory:
// capitalised multi-word phrases, deduplicated, at most three. When none
// exist it falls back to the first two content words longer than four
// characters.
func extractConcepts(content string) []string {
	matches := capitalizedRun.FindAllString(content, -1)
	seen := make(map[string]struct{}, len(matches))
	var concepts []string
	for _, m := range matches {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		concepts = append(concepts, m)
		if len(concepts) == 3 {
			return concepts
		}
	}
	if len(concepts) > 0 {
		return concepts
	}

	for _, word := range strings.Fields(content) {
		trimmed := strings.Trim(word, `.,;:!?"'()`)
		if len(trimmed) > 4 {
			concepts = append(concepts, trimmed)
			if len(concepts) == 2 {
				break
			}
		}
	}
	return concepts
}

// condense reduces a memory's content to a single short insight line: the
// first sentence, clipped to 120 characters.
func condense(content string) string {
	content = strings.TrimSpace(content)
	if loc := sentenceBreaker.FindStringIndex(content); loc != nil {
		content = content[:loc[0]]
	}
	if len(content) > 120 {
		content = strings.TrimSpace(content[:120]) + "…"
	}
	return content
}

// compose renders the snapshot text: optional dream lead-in from fold
// memories, an exploration opener, condensed top-phi insights, labelled
// open threads, and the closing token.
func compose(top []store.Memory, threads []store.Memory, reflection store.Reflection, foldMemories []store.Memory) string {
	var b strings.Builder

	if len(foldMemories) > 0 {
		concepts := extractConcepts(foldMemories[0].Content)
		switch {
		case len(concepts) >= 2:
			fmt.Fprintf(&b, "Between sessions I dreamt of %s and %s.\n\n", concepts[0], concepts[1])
		case len(concepts) == 1:
			fmt.Fprintf(&b, "Between sessions I dreamt of %s.\n\n", concepts[0])
		}
	}

	theme := primaryTheme(reflection, top)
	if theme != "" {
		fmt.Fprintf(&b, "I was exploring %s.\n\n", theme)
	}

	if len(top) > 0 {
		b.WriteString("What holds:\n")
		for _, m := range top {
			fmt.Fprintf(&b, "- %s (φ %.1f)\n", condense(m.Content), m.Phi)
		}
		b.WriteString("\n")
	}

	if len(threads) > 0 {
		b.WriteString("Open threads:\n")
		for i, m := range threads {
			if i >= len(threadLabels) {
				break
			}
			fmt.Fprintf(&b, "%s) %s\n", threadLabels[i], condense(m.Content))
		}
		b.WriteString("\n")
	}

	// The closing token appears exactly once; a dream section that
	// already ended with it suppresses the final one.
	if !strings.HasSuffix(strings.TrimSpace(b.String()), closingToken) {
		b.WriteString(closingToken)
	}
	return strings.TrimSpace(b.String())
}

// primaryTheme prefers the latest reflection's first insight, then the
// strongest memory's condensed content.
func primaryTheme(reflection store.Reflection, top []store.Memory) string {
	if len(reflection.Insights) > 0 {
		return strings.TrimSuffix(reflection.Insights[0], ".")
	}
	if len(top) > 0 {
		return strings.TrimSuffix(condense(top[0].Content), ".")
	}
	return ""
}
