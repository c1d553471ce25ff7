// Package extract fetches full-text content for retrieved documents:
// PDF text for academic sources, stripped-tag text for HTML pages.
// Everything here is best effort; a failed fetch leaves the original
// document untouched.
package extract

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kadirpekel/dossier/pkg/config"
	"github.com/kadirpekel/dossier/pkg/document"
	"github.com/kadirpekel/dossier/pkg/httpclient"
	"github.com/kadirpekel/dossier/pkg/logger"
)

// Fetcher retrieves and extracts full text subject to the configured
// size and time caps.
type Fetcher struct {
	cfg  config.ExtractConfig
	http *httpclient.Client
	log  *slog.Logger
}

// New creates a fetcher from config.
func New(cfg config.ExtractConfig) *Fetcher {
	return &Fetcher{
		cfg: cfg,
		http: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second}),
			httpclient.WithMaxRetries(1),
		),
		log: logger.Component("extract"),
	}
}

// Fetch downloads url and returns its extracted plain text.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(f.cfg.Timeout)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/pdf, text/html, text/plain")

	resp, err := f.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	// One byte past the cap distinguishes "exactly at" from "over".
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(data)) > f.cfg.MaxBytes {
		return "", fmt.Errorf("body exceeds %d bytes", f.cfg.MaxBytes)
	}

	switch sniffContentType(resp.Header.Get("Content-Type"), data) {
	case "application/pdf":
		return pdfText(data)
	case "text/html":
		return htmlText(data), nil
	default:
		return strings.TrimSpace(string(data)), nil
	}
}

// Enrich replaces the content of academic documents with fetched full
// text when it is longer than what the provider returned. At most
// MaxDocs fetches per call; failures are logged and skipped.
func (f *Fetcher) Enrich(ctx context.Context, docs []document.Document) []document.Document {
	fetched := 0
	for i := range docs {
		if fetched >= f.cfg.MaxDocs {
			break
		}
		if docs[i].SourceType != document.SourceTypeAcademic || docs[i].URL == "" {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		text, err := f.Fetch(ctx, fullTextURL(docs[i].URL))
		fetched++
		if err != nil {
			f.log.Debug("Full-text fetch failed", "url", docs[i].URL, "error", err)
			continue
		}

		text = clip(text, f.cfg.MaxChars)
		if len(text) > len(docs[i].Content) {
			docs[i].Content = text
		}
	}
	return docs
}

// fullTextURL maps an abstract page to its document URL where the
// mapping is known. Arxiv abstract links have a parallel /pdf/ tree.
func fullTextURL(url string) string {
	if strings.Contains(url, "arxiv.org/abs/") {
		return strings.Replace(url, "arxiv.org/abs/", "arxiv.org/pdf/", 1)
	}
	return url
}

// sniffContentType resolves the effective media type from the response
// header, falling back to content sniffing.
func sniffContentType(header string, data []byte) string {
	ct := header
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	ct = strings.ToLower(strings.TrimSpace(strings.SplitN(ct, ";", 2)[0]))

	switch {
	case ct == "application/pdf", strings.HasPrefix(string(data), "%PDF-"):
		return "application/pdf"
	case ct == "text/html", ct == "application/xhtml+xml":
		return "text/html"
	default:
		return ct
	}
}

func clip(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
