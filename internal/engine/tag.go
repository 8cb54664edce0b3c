package engine

import "strings"

// SanitizeTag normalizes a name component so Docker accepts it as part
// of an image tag. The result is lowercase and contains only
// [a-z0-9._-], never starts or ends with a separator, and never starts
// with anything but a letter or digit.
func SanitizeTag(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	var b strings.Builder
	lastSep := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSep = false
		case r == '.' || r == '_' || r == '-':
			if !lastSep && b.Len() > 0 {
				b.WriteRune(r)
				lastSep = true
			}
		case r == ' ':
			if !lastSep && b.Len() > 0 {
				b.WriteByte('_')
				lastSep = true
			}
		default:
			// dropped
		}
	}

	out := strings.TrimRight(b.String(), "._-")
	if out == "" {
		return "fn"
	}
	return out
}

// ImageTag builds the deterministic image tag for a function owned by
// a user. The method suffix keeps per-method deployments distinct.
func ImageTag(prefix, userID, appName, fnName, method string) string {
	return SanitizeTag(prefix) + "-" + SanitizeTag(userID) + "-" + SanitizeTag(appName) + "-" +
		SanitizeTag(fnName) + "_" + SanitizeTag(method)
}
