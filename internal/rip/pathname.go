package rip

import "strings"

const reservedPathChars = "\\:?\"<>|*"

// sanitizeComponent replaces control characters and the reserved set in one
// path component; an empty component becomes "track".
func sanitizeComponent(component string) string {
	var sb strings.Builder
	sb.Grow(len(component))
	for i := 0; i < len(component); i++ {
		ch := component[i]
		if ch < 0x20 || ch == 0x7F || ch == '/' || strings.IndexByte(reservedPathChars, ch) >= 0 {
			sb.WriteByte('_')
		} else {
			sb.WriteByte(ch)
		}
	}
	if sb.Len() == 0 {
		return "track"
	}
	return sb.String()
}

func sanitizeComponents(path string, leadingSlash bool) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		parts[i] = sanitizeComponent(part)
	}
	out := strings.Join(parts, "/")
	if leadingSlash {
		return "/" + out
	}
	return out
}

// SanitizePath sanitises every path component. URI prefixes keep their scheme
// and authority verbatim; only the path portion is sanitised.
func SanitizePath(path string) string {
	if schemePos := strings.Index(path, "://"); schemePos >= 0 {
		scheme := path[:schemePos]
		rest := path[schemePos+3:]
		authorityEnd := strings.IndexByte(rest, '/')
		if authorityEnd < 0 {
			return scheme + "://" + rest
		}
		authority := rest[:authorityEnd]
		return scheme + "://" + authority + sanitizeComponents(rest[authorityEnd+1:], true)
	}

	leadingSlash := strings.HasPrefix(path, "/")
	if leadingSlash {
		path = path[1:]
	}
	return sanitizeComponents(path, leadingSlash)
}

// IsURI reports whether the rendered output targets a URI rather than a local
// path.
func IsURI(path string) bool {
	return strings.Contains(path, "://")
}
