package fetch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		contentType string
		expected    Format
	}{
		{"csv extension", "https://example.com/data/sales.csv", "text/plain", FormatCSV},
		{"csv extension with query", "https://example.com/sales.CSV?raw=1", "", FormatCSV},
		{"html extension", "https://example.com/report.html", "", FormatHTML},
		{"csv content type", "https://example.com/export", "text/csv; charset=utf-8", FormatCSV},
		{"html content type", "https://example.com/wiki/Page", "text/html; charset=UTF-8", FormatHTML},
		{"unknown", "https://example.com/blob", "application/octet-stream", FormatUnknown},
		{"no content type", "https://example.com/blob", "", FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectFormat(tt.url, tt.contentType))
		})
	}
}
