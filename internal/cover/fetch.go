package cover

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"cdrip/internal/fetch"
	"cdrip/internal/meta"
	"cdrip/internal/shared"
	"cdrip/internal/toc"
)

// Policy selects where artwork is fetched from.
type Policy string

const (
	// PolicyNo fetches from Cover Art Archive only.
	PolicyNo Policy = "no"
	// PolicyAlways prefers Discogs, then Cover Art Archive, retrying Discogs
	// when the archive errored.
	PolicyAlways Policy = "always"
	// PolicyFallback tries Cover Art Archive first, then Discogs.
	PolicyFallback Policy = "fallback"
)

// Source names where the final artwork came from.
type Source string

const (
	SourceNone            Source = "none"
	SourceCoverArtArchive Source = "Cover Art Archive"
	SourceDiscogs         Source = "Discogs"
)

const (
	caaBaseURL     = "https://coverartarchive.org"
	discogsBaseURL = "https://api.discogs.com"
)

// Fetcher downloads front covers and runs them through the pipeline.
type Fetcher struct {
	MaxWidth int

	// Base URLs are overridable for tests.
	CAABaseURL     string
	DiscogsBaseURL string

	client *fetch.Client
}

// NewFetcher creates a fetcher with the cover-art timeout policy.
func NewFetcher(userAgent string, maxWidth int) *Fetcher {
	if maxWidth <= 0 {
		maxWidth = DefaultMaxWidth
	}
	return &Fetcher{
		MaxWidth:       maxWidth,
		CAABaseURL:     caaBaseURL,
		DiscogsBaseURL: discogsBaseURL,
		client:         fetch.NewClient(userAgent, fetch.CoverArtPolicy()),
	}
}

func (f *Fetcher) attach(entry *meta.Entry, raw []byte) error {
	normalized, err := Normalize(raw, f.MaxWidth)
	if err != nil {
		return err
	}
	entry.CoverArt = meta.CoverArt{
		Data:      normalized,
		MIMEType:  "image/png",
		IsFront:   true,
		Available: true,
	}
	return nil
}

// FetchCoverArtArchive downloads the front cover from Cover Art Archive for a
// MusicBrainz entry whose metadata promises artwork. Returns false without
// error when the entry is not eligible.
func (f *Fetcher) FetchCoverArtArchive(ctx context.Context, entry *meta.Entry, t *toc.DiscTOC) (bool, error) {
	if entry == nil {
		return false, shared.NewError(shared.KindDecodeError, "invalid entry for cover art fetch")
	}
	if entry.CoverArt.HasData() {
		return true, nil
	}
	if !strings.EqualFold(entry.SourceLabel, meta.MusicBrainzLabel) {
		return false, nil
	}
	// Respect MusicBrainz metadata: if it indicates no artwork, don't attempt
	// downloading.
	if !entry.CoverArt.Available {
		return false, nil
	}

	releaseID := entry.AlbumTag("MUSICBRAINZ_RELEASE")
	if releaseID == "" && t != nil {
		releaseID = t.MBReleaseID
	}
	releaseGroupID := entry.AlbumTag("MUSICBRAINZ_RELEASEGROUPID")
	if releaseID == "" && releaseGroupID == "" {
		return false, nil
	}

	var lastErr error
	var raw []byte
	if releaseID != "" {
		result, err := f.client.Get(ctx, "Cover Art Archive",
			f.CAABaseURL+"/release/"+releaseID+"/front", "image/*")
		if err != nil {
			lastErr = err
		} else {
			raw = result.Body
		}
	}
	if raw == nil && releaseGroupID != "" {
		result, err := f.client.Get(ctx, "Cover Art Archive",
			f.CAABaseURL+"/release-group/"+releaseGroupID+"/front", "image/*")
		if err != nil {
			lastErr = err
		} else {
			raw = result.Body
		}
	}
	if raw == nil {
		return false, lastErr
	}
	if err := f.attach(entry, raw); err != nil {
		return false, fmt.Errorf("failed to normalize cover art image: %w", err)
	}
	return true, nil
}

type discogsImage struct {
	Type string `json:"type"`
	URI  string `json:"uri"`
}

type discogsRelease struct {
	Images []discogsImage `json:"images"`
}

// FetchDiscogs downloads the primary release image from Discogs for entries
// carrying a DISCOGS_RELEASE tag.
func (f *Fetcher) FetchDiscogs(ctx context.Context, entry *meta.Entry, t *toc.DiscTOC) (bool, error) {
	if entry == nil {
		return false, shared.NewError(shared.KindDecodeError, "invalid entry for cover art fetch")
	}
	if entry.CoverArt.HasData() {
		return true, nil
	}
	releaseID := strings.TrimSpace(entry.AlbumTag("DISCOGS_RELEASE"))
	if releaseID == "" {
		return false, nil
	}

	result, err := f.client.Get(ctx, "Discogs",
		f.DiscogsBaseURL+"/releases/"+releaseID, "application/json")
	if err != nil {
		return false, err
	}
	var release discogsRelease
	if err := json.Unmarshal(result.Body, &release); err != nil {
		return false, shared.WrapError(shared.KindParseError, "failed to decode Discogs release", err)
	}

	imageURL := ""
	for _, img := range release.Images {
		if strings.EqualFold(img.Type, "primary") && img.URI != "" {
			imageURL = img.URI
			break
		}
	}
	if imageURL == "" {
		for _, img := range release.Images {
			if img.URI != "" {
				imageURL = img.URI
				break
			}
		}
	}
	if imageURL == "" {
		return false, nil
	}

	image, err := f.client.Get(ctx, "Discogs", imageURL, "image/*")
	if err != nil {
		return false, err
	}
	if err := f.attach(entry, image.Body); err != nil {
		return false, fmt.Errorf("failed to normalize cover art image: %w", err)
	}
	return true, nil
}

type phaseResult struct {
	success  bool
	hadError bool
}

// EnsureCoverArt drives the provider policy over the target entry and the
// candidate entries it was merged from, attaching the first artwork found to
// target. The returned source reports which provider supplied new artwork;
// notice carries the last provider diagnostic.
func (f *Fetcher) EnsureCoverArt(
	ctx context.Context,
	target *meta.Entry,
	candidates []*meta.Entry,
	t *toc.DiscTOC,
	policy Policy,
) (Source, string, bool) {
	if target == nil {
		return SourceNone, "", false
	}
	targetHasCover := target.CoverArt.HasData()
	if targetHasCover && policy != PolicyAlways {
		return SourceNone, "", true
	}

	effective := candidates
	if len(effective) == 0 {
		effective = []*meta.Entry{target}
	}

	source := SourceNone
	notice := ""
	tryPhase := func(fetchFn func(context.Context, *meta.Entry, *toc.DiscTOC) (bool, error), phaseSource Source) phaseResult {
		var result phaseResult
		for _, entry := range effective {
			if entry == nil {
				continue
			}
			hadData := entry.CoverArt.HasData()
			ok, err := fetchFn(ctx, entry, t)
			if ok && entry.CoverArt.HasData() {
				if entry != target {
					target.CoverArt = entry.CoverArt.Clone()
				}
				if !hadData {
					source = phaseSource
				}
				result.success = true
				return result
			}
			if err != nil {
				notice = err.Error()
				result.hadError = true
			}
		}
		return result
	}

	switch policy {
	case PolicyAlways:
		if tryPhase(f.FetchDiscogs, SourceDiscogs).success {
			return source, notice, true
		}
		// Keep any existing cover art if Discogs did not succeed.
		if targetHasCover {
			return SourceNone, notice, true
		}
		caa := tryPhase(f.FetchCoverArtArchive, SourceCoverArtArchive)
		if caa.success {
			return source, notice, true
		}
		if caa.hadError && tryPhase(f.FetchDiscogs, SourceDiscogs).success {
			return source, notice, true
		}
		return SourceNone, notice, false
	case PolicyFallback:
		if tryPhase(f.FetchCoverArtArchive, SourceCoverArtArchive).success {
			return source, notice, true
		}
		discogs := tryPhase(f.FetchDiscogs, SourceDiscogs)
		if discogs.success {
			return source, notice, true
		}
		if discogs.hadError && tryPhase(f.FetchCoverArtArchive, SourceCoverArtArchive).success {
			return source, notice, true
		}
		return SourceNone, notice, false
	default:
		result := tryPhase(f.FetchCoverArtArchive, SourceCoverArtArchive)
		return source, notice, result.success
	}
}
