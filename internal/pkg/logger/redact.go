package logger

import "strings"

// RedactEmail masks an email address for safe logging, keeping at most the
// first two characters of the local part:
// "john.doe@example.com" → "jo***@example.com"; "ab@example.com" →
// "***@example.com"; anything not email-shaped → "***@***".
func RedactEmail(email string) string {
	at := strings.Index(email, "@")
	if at < 0 || strings.Contains(email[at+1:], "@") {
		return "***@***"
	}
	local, domain := email[:at], email[at+1:]
	if len(local) <= 2 {
		return "***@" + domain
	}
	return local[:2] + "***@" + domain
}
