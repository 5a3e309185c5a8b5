package mcp

import (
	"regexp"
	"strings"
)

// maskToken replaces every credential-bearing value before configuration or
// server-status data leaves the facade.
const maskToken = "****"

var credentialKeyFragments = []string{
	"password",
	"passwd",
	"pwd",
	"secret",
	"token",
	"credential",
	"connectionstring",
	"connection_string",
	"apikey",
	"api_key",
}

// isCredentialKey matches the fragments anywhere in the key. "uri" only
// counts as the whole key or a suffix (mongoUri, connection_uri); a substring
// match would swallow keys like "security".
func isCredentialKey(key string) bool {
	lower := strings.ToLower(key)
	if lower == "uri" || strings.HasSuffix(lower, "uri") {
		return true
	}
	for _, fragment := range credentialKeyFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// redactDocument returns a deep copy of doc with credential-bearing fields
// masked. Recurses into nested mappings and arrays; never mutates the input.
func redactDocument(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	out := make(map[string]any, len(doc))
	for key, value := range doc {
		if isCredentialKey(key) {
			out[key] = maskToken
			continue
		}
		out[key] = redactValue(value)
	}
	return out
}

func redactValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return redactDocument(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = redactValue(item)
		}
		return out
	default:
		return value
	}
}

var connectionStringUserinfo = regexp.MustCompile(`(mongodb(?:\+srv)?://[^:/@]+:)[^@]+(@)`)

// RedactConnectionString masks the password component of a MongoDB
// connection string for logs and get_server_config output.
func RedactConnectionString(uri string) string {
	if strings.TrimSpace(uri) == "" {
		return "<not set>"
	}
	return connectionStringUserinfo.ReplaceAllString(uri, "${1}"+maskToken+"${2}")
}
