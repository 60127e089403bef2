package meta

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"cdrip/internal/toc"
)

// Provider is one metadata source queried by the aggregator.
type Provider interface {
	// Label names the provider; "musicbrainz" enables the by-title fallback.
	Label() string
	// Fetch queries the provider for candidate entries matching the TOC.
	Fetch(ctx context.Context, t *toc.DiscTOC) ([]*Entry, error)
}

// TitleSearcher performs MusicBrainz by-title lookups for the fuzzy fallback.
type TitleSearcher interface {
	SearchByTitle(ctx context.Context, t *toc.DiscTOC, title string) ([]*Entry, error)
}

// Aggregator queries the configured providers in parallel and merges their
// answers in provider order.
type Aggregator struct {
	Providers []Provider

	// TitleSearcher drives the fuzzy album-title fallback when MusicBrainz
	// itself returned nothing. Optional.
	TitleSearcher TitleSearcher
}

type providerResult struct {
	entries []*Entry
	err     error
}

// Fetch runs every provider concurrently, preserves provider order in the
// merged result and reports the first provider error (after all providers
// completed). Entries and the error are both returned: a partial result with
// an error is still usable.
func (a *Aggregator) Fetch(ctx context.Context, t *toc.DiscTOC) ([]*Entry, error) {
	if t == nil || len(t.Tracks) == 0 {
		return nil, fmt.Errorf("invalid TOC provided")
	}
	if len(a.Providers) == 0 {
		return nil, fmt.Errorf("no metadata providers configured")
	}

	results := make([]providerResult, len(a.Providers))
	g, gctx := errgroup.WithContext(ctx)
	for i, provider := range a.Providers {
		i, provider := i, provider
		g.Go(func() error {
			entries, err := provider.Fetch(gctx, t)
			results[i] = providerResult{entries: entries, err: err}
			return nil
		})
	}
	// Providers report their errors through the result slots.
	_ = g.Wait()

	mbIndex := -1
	isMB := make([]bool, len(a.Providers))
	for i, provider := range a.Providers {
		if strings.ToLower(provider.Label()) == MusicBrainzLabel {
			isMB[i] = true
			if mbIndex < 0 {
				mbIndex = i
			}
		}
	}

	var titleErr error
	if mbIndex >= 0 && a.TitleSearcher != nil {
		titleErr = a.titleFallback(ctx, t, results, mbIndex, isMB)
	}

	var merged []*Entry
	var firstErr error
	for _, r := range results {
		if r.err != nil && firstErr == nil {
			firstErr = r.err
		}
		merged = append(merged, r.entries...)
	}
	if firstErr == nil && titleErr != nil {
		firstErr = fmt.Errorf("MusicBrainz title search failed: %w", titleErr)
	}
	return merged, firstErr
}

// titleFallback re-queries MusicBrainz by fuzzy album-title candidates when
// the direct lookup produced nothing but other providers did. New entries are
// inserted at the MusicBrainz provider slot, de-duplicated by
// release[:medium].
func (a *Aggregator) titleFallback(
	ctx context.Context,
	t *toc.DiscTOC,
	results []providerResult,
	mbIndex int,
	isMB []bool,
) error {
	mbCount := 0
	var otherEntries []*Entry
	for i, r := range results {
		if isMB[i] {
			mbCount += len(r.entries)
		} else {
			otherEntries = append(otherEntries, r.entries...)
		}
	}
	if mbCount > 0 || len(otherEntries) == 0 {
		return nil
	}

	candidates := ExtractAlbumTitleCandidates(otherEntries)
	if len(candidates) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	for _, e := range results[mbIndex].entries {
		if key := e.ReleaseKey(); key != "" {
			seen[key] = true
		}
	}

	var lastErr error
	for _, candidate := range candidates {
		entries, err := a.TitleSearcher.SearchByTitle(ctx, t, candidate)
		if err != nil {
			lastErr = err
			continue
		}
		for _, entry := range entries {
			if key := entry.ReleaseKey(); key != "" {
				if seen[key] {
					continue
				}
				seen[key] = true
			}
			results[mbIndex].entries = append(results[mbIndex].entries, entry)
		}
	}
	return lastErr
}
