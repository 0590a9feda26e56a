package llm

import "net/url"

// sensitiveQueryKeys are query parameter names whose values must never reach
// logs or error debug fields. Matching is case-sensitive over this list.
var sensitiveQueryKeys = map[string]struct{}{
	"key":           {},
	"api_key":       {},
	"apikey":        {},
	"access_token":  {},
	"token":         {},
	"auth":          {},
	"authorization": {},
}

// ScrubURL replaces the values of sensitive query parameters with REDACTED.
// Unparseable URLs are returned unchanged rather than dropped, so callers
// always have something to log.
func ScrubURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	changed := false
	for k := range q {
		if _, ok := sensitiveQueryKeys[k]; ok {
			q.Set(k, "REDACTED")
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}
