package rpc

import "regexp"

// Recognized URL shapes that must have their key segment stripped before
// ever reaching a log line, error, or audit event. Grounded on
// original_source/src/utils/rpc_manager.py's redaction regexes.
var (
	v2KeyPattern       = regexp.MustCompile(`(/v2)/[^/]+`)
	quiknodeKeyPattern = regexp.MustCompile(`(\.pro)/[^/]+/`)
	longTrailingSegment = regexp.MustCompile(`/[^/]{20,}$`)
)

// RedactURL returns a sanitized form of a raw RPC endpoint URL safe to
// appear in logs, errors, and audit metadata. Full URLs must never be
// emitted (spec.md §4.1).
func RedactURL(raw string) string {
	if v2KeyPattern.MatchString(raw) {
		return v2KeyPattern.ReplaceAllString(raw, "$1/***")
	}
	if quiknodeKeyPattern.MatchString(raw) {
		return quiknodeKeyPattern.ReplaceAllString(raw, "$1/***/")
	}
	if longTrailingSegment.MatchString(raw) {
		return longTrailingSegment.ReplaceAllString(raw, "/***")
	}
	return raw
}
