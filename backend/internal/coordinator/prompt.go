package coordinator

import (
	"fmt"
	"strings"

	"dma/backend/internal/retrieval"
)

const groundedSystemPrompt = `You are a careful assistant that answers using the memory context below.
Ground factual claims in the numbered memory entries by appending their marker, like [1].
Only cite markers that appear in the context. If the context does not cover the question, say so instead of inventing a source.
Entries marked (background) have no verifiable source and must not be cited.`

// buildPrompt renders the ranked context into the generator's system prompt.
// Citable nodes appear with their marker and source; provenance-free nodes
// are included as uncitable background.
func buildPrompt(results []retrieval.Result, citations []Citation) string {
	markerByNode := make(map[string]int, len(citations))
	for _, c := range citations {
		markerByNode[c.NodeID] = c.Marker
	}

	var b strings.Builder
	b.WriteString(groundedSystemPrompt)
	b.WriteString("\n\nMemory context:\n")
	if len(results) == 0 {
		b.WriteString("(no relevant memories)\n")
	}
	for _, res := range results {
		if marker, ok := markerByNode[res.Node.ID]; ok {
			fmt.Fprintf(&b, "[%d] %s (source: %s)\n", marker, res.Node.Content, res.Node.Provenance[0].Source)
		} else {
			fmt.Fprintf(&b, "(background) %s\n", res.Node.Content)
		}
	}
	return b.String()
}

// composeUserMessage folds prior conversation turns into the user message so
// the generator sees the dialogue; only the new message drives retrieval
func composeUserMessage(history []ChatMessage, message string) string {
	if len(history) == 0 {
		return message
	}
	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	for _, m := range history {
		role := m.Role
		if role == "" {
			role = "user"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, m.Content)
	}
	b.WriteString("\nNew message: ")
	b.WriteString(message)
	return b.String()
}
