package fetch

import (
	"mime"
	"net/url"
	"path"
	"strings"
)

// Format is the detected encoding of a fetched dataset.
type Format string

const (
	// FormatCSV is comma-separated text
	FormatCSV Format = "csv"
	// FormatHTML is a page holding one or more <table> elements
	FormatHTML Format = "html"
	// FormatUnknown could not be classified
	FormatUnknown Format = "unknown"
)

// DetectFormat classifies a fetched dataset. The URL path extension wins
// over the Content-Type header since many hosts serve CSV as text/plain.
func DetectFormat(urlStr, contentType string) Format {
	if parsed, err := url.Parse(urlStr); err == nil {
		switch strings.ToLower(path.Ext(parsed.Path)) {
		case ".csv", ".tsv":
			return FormatCSV
		case ".html", ".htm":
			return FormatHTML
		}
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return FormatUnknown
	}
	switch mediaType {
	case "text/csv", "application/csv", "text/comma-separated-values":
		return FormatCSV
	case "text/html", "application/xhtml+xml":
		return FormatHTML
	default:
		return FormatUnknown
	}
}
