package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"dma/backend/pkg/errors"
	"dma/backend/pkg/logger"
)

const maxPageBytes = 2 << 20 // 2MB cap per fetched page

// WebSource fetches a page and splits its article text into paragraph
// chunks for ingestion
type WebSource struct {
	httpClient *http.Client
	minChars   int // paragraphs shorter than this are navigation noise
	logger     *zap.Logger
}

// NewWebSource creates a web page chunk source
func NewWebSource() *WebSource {
	return &WebSource{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		minChars:   40,
		logger:     logger.Get(),
	}
}

// Fetch downloads a page and returns its title and one chunk per substantial
// paragraph, each carrying the URL as provenance source
func (w *WebSource) Fetch(ctx context.Context, pageURL string) (string, []Chunk, error) {
	if !strings.HasPrefix(pageURL, "http://") && !strings.HasPrefix(pageURL, "https://") {
		pageURL = "https://" + pageURL
	}

	req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
	if err != nil {
		return "", nil, errors.NewBaseError(errors.ErrorTypeIngest, "invalid url", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; DMABot/1.0)")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", nil, errors.NewBaseError(errors.ErrorTypeIngest, "fetch failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, errors.NewBaseError(errors.ErrorTypeIngest,
			fmt.Sprintf("fetch failed: HTTP %d", resp.StatusCode), nil)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", nil, errors.NewBaseError(errors.ErrorTypeIngest, "html parse failed", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("script, style, nav, header, footer, aside").Remove()

	chunks := w.ChunkDocument(doc, pageURL)
	w.logger.Info("Web page fetched",
		zap.String("url", pageURL),
		zap.String("title", title),
		zap.Int("chunks", len(chunks)),
	)
	return title, chunks, nil
}

// ChunkDocument extracts one chunk per substantial paragraph element
func (w *WebSource) ChunkDocument(doc *goquery.Document, source string) []Chunk {
	var chunks []Chunk
	seen := make(map[string]bool)
	doc.Find("p").Each(func(_ int, sel *goquery.Selection) {
		text := normalizeWhitespace(sel.Text())
		if len(text) < w.minChars || seen[text] {
			return
		}
		seen[text] = true
		chunks = append(chunks, Chunk{
			Content: text,
			Source:  source,
			Method:  "web",
		})
	})
	return chunks
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
