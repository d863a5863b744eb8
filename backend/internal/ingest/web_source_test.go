package ingest

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

const testPage = `<html>
<head><title>Radium - Test Encyclopedia</title></head>
<body>
<nav><p>Home | Articles | About and more navigation text to exceed filters</p></nav>
<article>
<p>Radium is a chemical element with the symbol Ra and atomic number 88, discovered in 1898.</p>
<p>   It is the sixth element in group 2 of the periodic table, also known as the alkaline earth metals.
</p>
<p>short</p>
<p>Radium is a chemical element with the symbol Ra and atomic number 88, discovered in 1898.</p>
</article>
<footer><p>Copyright notice that is long enough to pass the minimum length filter</p></footer>
</body>
</html>`

func TestWebSource_ChunkDocument(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(testPage))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	doc.Find("script, style, nav, header, footer, aside").Remove()

	source := NewWebSource()
	chunks := source.ChunkDocument(doc, "https://example.com/radium")

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks (short and duplicate paragraphs dropped), got %d", len(chunks))
	}
	for _, chunk := range chunks {
		if strings.TrimSpace(chunk.Content) != chunk.Content {
			t.Errorf("chunk content not trimmed: %q", chunk.Content)
		}
		if strings.Contains(chunk.Content, "\n") {
			t.Errorf("chunk contains raw newlines: %q", chunk.Content)
		}
		if chunk.Source != "https://example.com/radium" {
			t.Errorf("unexpected source %q", chunk.Source)
		}
		if chunk.Method != "web" {
			t.Errorf("unexpected method %q", chunk.Method)
		}
	}
	if !strings.HasPrefix(chunks[0].Content, "Radium is a chemical element") {
		t.Errorf("unexpected first chunk: %q", chunks[0].Content)
	}
}
