// Package fetch loads source pages from the web or the local filesystem.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"pageoverlay/internal/version"
)

const maxErrBody = 1024

type Document struct {
	HTML     string
	Title    string
	FinalURL string
}

// IsURL reports whether source names an http(s) resource rather than a local file.
func IsURL(source string) bool {
	u, err := url.Parse(strings.TrimSpace(source))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Load fetches source over HTTP when it is a URL and reads it from disk otherwise.
func Load(ctx context.Context, httpClient *http.Client, source string, readable bool) (Document, error) {
	if IsURL(source) {
		return HTML(ctx, httpClient, source, readable)
	}
	return File(source, readable)
}

// HTML downloads rawURL. With readable set, HTML content is reduced to the main
// article; extraction failures keep the full page.
func HTML(ctx context.Context, httpClient *http.Client, rawURL string, readable bool) (Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Document{}, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := httpClient.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("download URL: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Document{}, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errSnippet := strings.TrimSpace(string(body))
		if len(errSnippet) > maxErrBody {
			errSnippet = errSnippet[:maxErrBody] + "..."
		}
		return Document{}, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, errSnippet)
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	doc := Document{
		HTML:     string(body),
		Title:    extractTitle(body),
		FinalURL: finalURL,
	}
	if !readable || !isHTMLContentType(resp.Header.Get("Content-Type")) {
		return doc, nil
	}

	parsedURL, err := url.Parse(finalURL)
	if err != nil {
		return doc, nil
	}
	return extractReadable(doc, body, parsedURL), nil
}

// File reads a local HTML file. FinalURL is its file:// URL.
func File(path string, readable bool) (Document, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read source file: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	fileURL := &url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}

	doc := Document{
		HTML:     string(body),
		Title:    extractTitle(body),
		FinalURL: fileURL.String(),
	}
	if !readable {
		return doc, nil
	}
	return extractReadable(doc, body, fileURL), nil
}

func extractReadable(doc Document, body []byte, pageURL *url.URL) Document {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return doc
	}

	if content := strings.TrimSpace(article.Content); content != "" {
		doc.HTML = content
	}
	if title := strings.TrimSpace(article.Title); title != "" {
		doc.Title = normalizeTitle(title)
	}
	return doc
}

func isHTMLContentType(contentType string) bool {
	if strings.TrimSpace(contentType) == "" {
		return true
	}

	lower := strings.ToLower(contentType)
	return strings.Contains(lower, "text/html") || strings.Contains(lower, "application/xhtml+xml")
}

func extractTitle(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return normalizeTitle(doc.Find("title").First().Text())
}

func normalizeTitle(title string) string {
	return strings.Join(strings.Fields(title), " ")
}
