package server

import (
	"fmt"
	"net/url"
	"strings"
)

// AnyHost in AllowedURLHosts lets dataset_url name any http(s) host.
const AnyHost = "*"

// checkDatasetURL rejects dataset URLs the server is not configured to fetch.
// Entries in allowed are exact host names, "*.example.com" for subdomains, or AnyHost.
func checkDatasetURL(raw string, allowed []string) error {
	if len(allowed) == 0 {
		return &ErrForbidden{Field: "dataset_url", Message: "remote datasets are disabled; start the server with --allow-url-host"}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return &ErrValidation{Field: "dataset_url", Message: "not a valid URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ErrValidation{Field: "dataset_url", Message: "scheme must be http or https"}
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return &ErrValidation{Field: "dataset_url", Message: "host is required"}
	}

	for _, entry := range allowed {
		if hostAllowed(host, strings.ToLower(strings.TrimSpace(entry))) {
			return nil
		}
	}
	return &ErrForbidden{Field: "dataset_url", Message: fmt.Sprintf("host %q is not allowed", host)}
}

func hostAllowed(host, entry string) bool {
	switch {
	case entry == "":
		return false
	case entry == AnyHost:
		return true
	case strings.HasPrefix(entry, "*."):
		return strings.HasSuffix(host, entry[1:])
	default:
		return host == entry
	}
}
