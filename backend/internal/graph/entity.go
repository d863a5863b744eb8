package graph

import (
	"regexp"
	"strings"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// NormalizeEntityID turns an extracted mention into its canonical entity id:
// lowercased, punctuation-trimmed, whitespace collapsed to single hyphens.
// "Marie  Curie." and "marie curie" map to the same id.
func NormalizeEntityID(name string) string {
	id := strings.ToLower(strings.TrimSpace(name))
	id = strings.TrimRight(id, ".,!?;:")
	id = whitespaceRe.ReplaceAllString(id, "-")
	return id
}

// CountOccurrences counts how often an entity appears in content, using the
// same normalization as the canonical id. Always at least 1 for an extracted
// mention, since extractors may canonicalize beyond simple matching.
func CountOccurrences(content, name string) int {
	haystack := NormalizeEntityID(content)
	needle := NormalizeEntityID(name)
	if needle == "" {
		return 1
	}
	count := strings.Count(haystack, needle)
	if count < 1 {
		count = 1
	}
	return count
}

// MentionsFromNames builds entity mentions for a node's content from a list
// of extracted entity names, merging duplicates after normalization.
func MentionsFromNames(content string, names []string) []EntityMention {
	seen := make(map[string]int)
	var order []string
	display := make(map[string]string)

	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		id := NormalizeEntityID(name)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; !ok {
			order = append(order, id)
			display[id] = name
		}
		seen[id] += CountOccurrences(content, name)
	}

	mentions := make([]EntityMention, 0, len(order))
	for _, id := range order {
		mentions = append(mentions, EntityMention{
			EntityID: id,
			Name:     display[id],
			Count:    seen[id],
		})
	}
	return mentions
}
