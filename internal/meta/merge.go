package meta

import (
	"sort"
	"strings"

	"cdrip/internal/shared"
	"cdrip/internal/toc"
)

// isMultiValueKey reports whether the key may hold several values separated
// by ',' or ';'.
func isMultiValueKey(keyUpper string) bool {
	return keyUpper == "GENRE" || keyUpper == "ISRC"
}

// SplitMultiValues splits a multi-value tag on ',' and ';', trimming parts.
func SplitMultiValues(raw string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';'
	}) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// mergeMultiValuesZip interleaves the token lists position by position,
// de-duplicating case-insensitively and preserving first-seen spelling.
func mergeMultiValuesZip(perEntryTokens [][]string) string {
	maxLen := 0
	for _, tokens := range perEntryTokens {
		if len(tokens) > maxLen {
			maxLen = len(tokens)
		}
	}
	var merged []string
	seen := make(map[string]bool)
	for pos := 0; pos < maxLen; pos++ {
		for _, tokens := range perEntryTokens {
			if pos >= len(tokens) {
				continue
			}
			token := strings.TrimSpace(tokens[pos])
			if token == "" {
				continue
			}
			norm := strings.ToLower(token)
			if !seen[norm] {
				seen[norm] = true
				merged = append(merged, token)
			}
		}
	}
	return strings.Join(merged, ";")
}

func mergeTagLists(lists [][]Tag) []Tag {
	merged := make(map[string]string)
	for _, tags := range lists {
		for _, t := range tags {
			keyUpper := strings.ToUpper(t.Key)
			if keyUpper == "" || isMultiValueKey(keyUpper) {
				continue
			}
			if _, ok := merged[keyUpper]; ok {
				continue
			}
			value := strings.TrimSpace(t.Value)
			if value == "" {
				continue
			}
			merged[keyUpper] = value
		}
	}
	for _, multiKey := range []string{"GENRE", "ISRC"} {
		perEntryTokens := make([][]string, 0, len(lists))
		for _, tags := range lists {
			var tokens []string
			for _, t := range tags {
				if strings.ToUpper(t.Key) != multiKey {
					continue
				}
				tokens = append(tokens, SplitMultiValues(t.Value)...)
			}
			perEntryTokens = append(perEntryTokens, tokens)
		}
		if value := mergeMultiValuesZip(perEntryTokens); value != "" {
			merged[multiKey] = value
		}
	}

	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]Tag, 0, len(keys))
	for _, key := range keys {
		out = append(out, Tag{Key: key, Value: merged[key]})
	}
	return out
}

// MergeEntries merges several user-selected entries for the same disc into
// one virtual entry: first non-empty value wins per single-valued key, while
// GENRE and ISRC are zip-interleaved across the entries.
func MergeEntries(t *toc.DiscTOC, selected []*Entry) *Entry {
	if t == nil || len(selected) == 0 {
		return nil
	}

	pickFirst := func(get func(*Entry) string) string {
		for _, e := range selected {
			if e == nil {
				continue
			}
			if v := strings.TrimSpace(get(e)); v != "" {
				return v
			}
		}
		return ""
	}

	merged := &Entry{}
	merged.CddbDiscID = shared.FirstNonEmpty(
		pickFirst(func(e *Entry) string { return e.CddbDiscID }),
		t.CddbDiscID,
		"unknown")
	merged.SourceLabel = pickFirst(func(e *Entry) string { return e.SourceLabel })
	merged.SourceURL = pickFirst(func(e *Entry) string { return e.SourceURL })
	merged.FetchedAt = pickFirst(func(e *Entry) string { return e.FetchedAt })

	albumLists := make([][]Tag, 0, len(selected))
	for _, e := range selected {
		if e != nil {
			albumLists = append(albumLists, e.AlbumTags)
		}
	}
	merged.AlbumTags = mergeTagLists(albumLists)

	tracks := len(t.Tracks)
	merged.Tracks = make([][]Tag, tracks)
	for ti := 0; ti < tracks; ti++ {
		trackLists := make([][]Tag, 0, len(selected))
		for _, e := range selected {
			if e == nil || ti >= len(e.Tracks) {
				continue
			}
			trackLists = append(trackLists, e.Tracks[ti])
		}
		merged.Tracks[ti] = mergeTagLists(trackLists)
	}

	// The first selected entry with artwork donates it to the merge.
	for _, e := range selected {
		if e != nil && (e.CoverArt.HasData() || e.CoverArt.Available) {
			merged.CoverArt = e.CoverArt.Clone()
			break
		}
	}
	return merged
}
