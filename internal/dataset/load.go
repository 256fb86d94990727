package dataset

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonathan/insight-pipeline/internal/fetch"
	"github.com/jonathan/insight-pipeline/internal/types"
)

// RenderFunc renders a page in a browser and returns its HTML
type RenderFunc func(ctx context.Context, url string) (string, error)

// Loader loads datasets from local paths and URLs
type Loader struct {
	Fetcher    *fetch.CachedFetcher
	UseBrowser bool
	Render     RenderFunc
	Logger     *slog.Logger
}

// NewLoader creates a loader with a fresh cache. Browser rendering is used
// for HTML pages without a served table when useBrowser is set.
func NewLoader(useBrowser bool, browserTimeout time.Duration, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		Fetcher:    fetch.NewCachedFetcher(nil),
		UseBrowser: useBrowser,
		Render: func(ctx context.Context, url string) (string, error) {
			return fetch.WithBrowser(ctx, url, browserTimeout, logger)
		},
		Logger: logger,
	}
}

// LoadFile reads a local .csv, .html or .htm file
func (l *Loader) LoadFile(path string) (*types.Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return LoadHTMLFile(path)
	case ".csv", ".txt", "":
		return LoadCSVFile(path)
	default:
		return nil, &LoadError{Source: path, Message: "unsupported file type " + filepath.Ext(path) + " (expected .csv or .html)"}
	}
}

// LoadNamed parses r as an HTML table when name has an .html or .htm
// extension and as CSV otherwise
func LoadNamed(r io.Reader, name string) (*types.Table, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm":
		return LoadHTMLTable(r, name, 0)
	default:
		return LoadCSV(r, name)
	}
}

// LoadURL fetches a remote dataset and parses it according to its format
func (l *Loader) LoadURL(ctx context.Context, url string) (*types.Table, error) {
	if l.Fetcher == nil {
		l.Fetcher = fetch.NewCachedFetcher(nil)
	}
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	res, err := l.Fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, &LoadError{Source: url, Message: "download failed", Cause: err}
	}

	format := fetch.DetectFormat(url, res.ContentType)
	if format == fetch.FormatUnknown {
		format = sniffFormat(res.Body)
	}
	logger.Debug("dataset downloaded", "url", url, "bytes", len(res.Body), "format", format, "cached", res.FromCache)

	if format == fetch.FormatCSV {
		return LoadCSV(bytes.NewReader(res.Body), url)
	}

	html := string(res.Body)
	if fetch.ShouldUseBrowser(html) {
		if !l.UseBrowser || l.Render == nil {
			return nil, &LoadError{Source: url, Message: "page has no table; enable browser rendering for script-built tables"}
		}
		logger.Info("page has no served table; rendering in browser", "url", url)
		html, err = l.Render(ctx, url)
		if err != nil {
			return nil, &LoadError{Source: url, Message: "browser rendering failed", Cause: err}
		}
	}
	return LoadHTMLTable(strings.NewReader(html), url, 0)
}

func sniffFormat(body []byte) fetch.Format {
	head := strings.ToLower(string(body[:min(len(body), 512)]))
	if strings.Contains(head, "<html") || strings.Contains(head, "<table") || strings.Contains(head, "<!doctype") {
		return fetch.FormatHTML
	}
	return fetch.FormatCSV
}
