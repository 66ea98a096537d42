// internal/security/scrubber.go
package security

import "regexp"

var (
	// credentials passed as query parameters: ?token=..., &secret=...
	queryParamPattern = regexp.MustCompile(`(?i)([?&](?:token|secret|key|api_key|access_token|password)=)[^&\s]+`)
	// Bearer token pattern
	bearerPattern = regexp.MustCompile(`Bearer\s+\S{20,}`)
	// user:pass@ in URLs
	userinfoPattern = regexp.MustCompile(`(://[^/\s:@]+:)[^@\s/]+@`)
	// Long hex strings (32+ chars), likely API keys
	hexKeyPattern = regexp.MustCompile(`\b[0-9a-fA-F]{32,}\b`)
)

// ScrubOutput redacts credentials from text before it is stored or served,
// such as build error messages written to history.
func ScrubOutput(output string) string {
	result := queryParamPattern.ReplaceAllString(output, "${1}[REDACTED]")
	result = bearerPattern.ReplaceAllString(result, "Bearer [REDACTED]")
	result = userinfoPattern.ReplaceAllString(result, "${1}[REDACTED]@")
	result = hexKeyPattern.ReplaceAllString(result, "[REDACTED]")
	return result
}
