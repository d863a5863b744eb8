package coordinator

import (
	"regexp"
	"strconv"

	"dma/backend/internal/retrieval"
)

var citationMarkerRe = regexp.MustCompile(`\[(\d+)\]`)

// assignCitations numbers the retrieved nodes that are allowed to be cited.
// Only nodes carrying provenance get a marker; a claim cited to an
// untraceable node would be grounding theater. Markers follow rank order
// starting at 1.
func assignCitations(results []retrieval.Result) []Citation {
	var citations []Citation
	for _, res := range results {
		if !res.Node.HasProvenance() {
			continue
		}
		citations = append(citations, Citation{
			Marker: len(citations) + 1,
			NodeID: res.Node.ID,
			Source: res.Node.Provenance[0].Source,
		})
	}
	return citations
}

// parseUsedCitations scans the response text for [n] markers and returns the
// citations actually used, in first-appearance order. Markers that do not
// map to an assigned citation are ignored.
func parseUsedCitations(response string, assigned []Citation) []Citation {
	byMarker := make(map[int]Citation, len(assigned))
	for _, c := range assigned {
		byMarker[c.Marker] = c
	}

	var used []Citation
	seen := make(map[int]bool)
	for _, m := range citationMarkerRe.FindAllStringSubmatch(response, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || seen[n] {
			continue
		}
		citation, ok := byMarker[n]
		if !ok {
			continue
		}
		seen[n] = true
		used = append(used, citation)
	}
	return used
}
