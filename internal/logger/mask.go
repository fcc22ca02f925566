package logger

import "strings"

// MaskToken keeps only the last four characters of a credential.
func MaskToken(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if len(value) <= 4 {
		return "****"
	}
	return "****" + value[len(value)-4:]
}

// MaskAuthorization masks the credential of an Authorization header,
// preserving the scheme.
func MaskAuthorization(value string) string {
	value = strings.TrimSpace(value)
	if scheme, cred, ok := strings.Cut(value, " "); ok {
		return scheme + " " + MaskToken(cred)
	}
	return MaskToken(value)
}

// MaskCookie masks cookie values while preserving cookie names.
func MaskCookie(value string) string {
	parts := strings.Split(value, ";")
	masked := make([]string, 0, len(parts))
	for _, part := range parts {
		segment := strings.TrimSpace(part)
		if segment == "" {
			continue
		}
		if name, val, ok := strings.Cut(segment, "="); ok {
			segment = strings.TrimSpace(name) + "=" + MaskToken(val)
		} else {
			segment = MaskToken(segment)
		}
		masked = append(masked, segment)
	}
	return strings.Join(masked, "; ")
}
