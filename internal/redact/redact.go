// Package redact masks credentials before provider errors, logs or exports leave the process.
package redact

import (
	"regexp"
	"strings"
)

var (
	privateKeyPattern = regexp.MustCompile(`-----BEGIN [A-Z0-9 ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z0-9 ]*PRIVATE KEY-----`)
	bearerPattern     = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._~+/=-]{8,}`)
	headerKeyPattern  = regexp.MustCompile(`(?i)\b(x-api-key|x-goog-api-key)(\s*:\s*)[A-Za-z0-9._~+/=-]{8,}`)
	queryKeyPattern   = regexp.MustCompile(`(?i)([?&]key=)[A-Za-z0-9._~+/=-]{8,}`)
	tokenAssign       = regexp.MustCompile(`(?i)\b(api[_-]?key|secret|token|password|passwd|pwd)\b(\s*[:=]\s*)(["']?)([A-Za-z0-9._~+/=-]{8,})(["']?)`)
	providerKey       = regexp.MustCompile(`\b(sk-ant-|sk-)[A-Za-z0-9_-]{16,}`)
	googleKey         = regexp.MustCompile(`\bAIza[0-9A-Za-z_-]{35}\b`)
	awsAccessKey      = regexp.MustCompile(`\b(A3T|AKIA|ASIA|AGPA|AIDA|ANPA|ANVA|AROA|AIPA)[0-9A-Z]{16}\b`)
	urlCredentials    = regexp.MustCompile(`(?i)\b([a-z][a-z0-9+.-]*://[^:/\s@]+:)[^@\s]+@`)
)

// Text masks common secret and provider key shapes.
func Text(in string) string {
	out := in
	out = privateKeyPattern.ReplaceAllString(out, "[REDACTED PRIVATE KEY]")
	out = bearerPattern.ReplaceAllString(out, "Bearer [REDACTED]")
	out = headerKeyPattern.ReplaceAllString(out, "${1}${2}[REDACTED]")
	out = queryKeyPattern.ReplaceAllString(out, "${1}[REDACTED]")
	out = tokenAssign.ReplaceAllString(out, `${1}${2}${3}[REDACTED]${5}`)
	out = providerKey.ReplaceAllString(out, "[REDACTED_API_KEY]")
	out = googleKey.ReplaceAllString(out, "[REDACTED_API_KEY]")
	out = awsAccessKey.ReplaceAllString(out, "[REDACTED_AWS_ACCESS_KEY]")
	out = urlCredentials.ReplaceAllString(out, "${1}[REDACTED]@")
	return out
}

// Secret removes every literal occurrence of secret from in, then applies Text.
// Short secrets are still masked; an empty secret is ignored.
func Secret(in, secret string) string {
	if s := strings.TrimSpace(secret); s != "" {
		in = strings.ReplaceAll(in, s, "[REDACTED]")
	}
	return Text(in)
}

// Fingerprint renders a key as its last four characters, for display in config dumps.
func Fingerprint(secret string) string {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}
