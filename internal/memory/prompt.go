package memory

import (
	"strings"

	"github.com/tjfontaine/polyglot-chat-core/internal/tokens"
)

const (
	// verbatimTail is how many recent turns stay verbatim when summarizing.
	verbatimTail = 3

	// bulletTokens bounds each side of a summary bullet.
	bulletTokens = 40
)

// BuildPromptWithHistory prefixes prompt with the last level turns. With
// autoSummarize, every turn except the last three is compressed into a
// bullet summary. A level of zero, or an empty history, returns prompt
// unchanged.
func (s *Store) BuildPromptWithHistory(prompt string, level int, autoSummarize bool) string {
	if level > MaxLevel {
		level = MaxLevel
	}
	turns := s.GetRecentTurns(level)
	if len(turns) == 0 {
		return prompt
	}

	var b strings.Builder
	counter := s.Counter()

	verbatim := turns
	if autoSummarize && len(turns) > verbatimTail {
		older := turns[:len(turns)-verbatimTail]
		verbatim = turns[len(turns)-verbatimTail:]

		b.WriteString("Summary of earlier conversation:\n")
		for _, t := range older {
			b.WriteString("- User asked: ")
			b.WriteString(squash(counter, t.User))
			b.WriteString(" / Assistant answered: ")
			b.WriteString(squash(counter, t.Assistant))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("Previous conversation:\n")
	for _, t := range verbatim {
		b.WriteString("User: ")
		b.WriteString(t.User)
		b.WriteString("\nAssistant: ")
		b.WriteString(t.Assistant)
		b.WriteString("\n")
	}
	b.WriteString("\nUser: ")
	b.WriteString(prompt)
	return b.String()
}

// squash flattens text to one line and trims it to the bullet budget.
func squash(counter tokens.Counter, text string) string {
	flat := strings.Join(strings.Fields(text), " ")
	return counter.Truncate(flat, bulletTokens)
}
