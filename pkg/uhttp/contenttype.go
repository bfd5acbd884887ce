package uhttp

import "strings"

// IsJSONContentType accepts application/json and vendor variants such as
// application/vnd.oracle.resource+json; type=collection.
func IsJSONContentType(contentType string) bool {
	ct := strings.TrimSpace(strings.ToLower(contentType))
	if !strings.HasPrefix(ct, "application") {
		return false
	}
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.Contains(ct, "json")
}

// isPlainText covers servers that send JSON without declaring it, which Go's
// own server does when content sniffing kicks in.
func isPlainText(contentType string) bool {
	return strings.HasPrefix(strings.TrimSpace(strings.ToLower(contentType)), "text/plain")
}
