// Package musicbrainz queries the MusicBrainz /ws/2 API and matches returned
// releases to a local disc TOC.
package musicbrainz

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"cdrip/internal/fetch"
	"cdrip/internal/meta"
	"cdrip/internal/toc"
)

// 1. Constants and types

const (
	defaultBaseURL   = "https://musicbrainz.org/ws/2/"
	defaultUserAgent = "cdrip/1.0 (https://github.com/kekyo/cdrip)"
	searchLimit      = 10

	// MusicBrainz allows ~3 requests per second.
	defaultRateLimit  = 334 * time.Millisecond
	defaultBurstLimit = 3

	// Includes kept minimal but must contain genres/tags so we can populate
	// GENRE. cover-art-archive is not a valid inc here; artwork is fetched
	// separately.
	discIDInc  = "recordings+artists+release-groups+genres+tags+url-rels"
	releaseInc = "recordings+artists+artist-credits+media+discids+labels+release-groups+genres+tags+url-rels"
)

// Config holds configuration for the MusicBrainz client.
type Config struct {
	BaseURL   string
	UserAgent string
	Policy    fetch.Policy
	RateLimit time.Duration
	Burst     int
}

// DefaultConfig returns sensible defaults for the MusicBrainz client.
func DefaultConfig() Config {
	return Config{
		BaseURL:   defaultBaseURL,
		UserAgent: defaultUserAgent,
		Policy:    fetch.DefaultPolicy(),
		RateLimit: defaultRateLimit,
		Burst:     defaultBurstLimit,
	}
}

// Client is a MusicBrainz API client implementing the aggregator's Provider
// and TitleSearcher interfaces.
type Client struct {
	config      Config
	fetcher     *fetch.Client
	rateLimiter *rate.Limiter
}

// 2. Constructor and configuration

// NewClient creates a client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a client with custom configuration.
func NewClientWithConfig(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.UserAgent == "" {
		config.UserAgent = defaultUserAgent
	}
	if config.RateLimit <= 0 {
		config.RateLimit = defaultRateLimit
	}
	if config.Burst <= 0 {
		config.Burst = defaultBurstLimit
	}
	return &Client{
		config:      config,
		fetcher:     fetch.NewClient(config.UserAgent, config.Policy),
		rateLimiter: rate.NewLimiter(rate.Every(config.RateLimit), config.Burst),
	}
}

// Label implements meta.Provider.
func (c *Client) Label() string {
	return meta.MusicBrainzLabel
}

// 3. Core HTTP methods (private)

func (c *Client) getJSON(ctx context.Context, fullURL string, out interface{}) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}
	result, err := c.fetcher.Get(ctx, "MusicBrainz", fullURL, "application/json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(result.Body, out); err != nil {
		return fmt.Errorf("failed to unmarshal MusicBrainz response: %w", err)
	}
	return nil
}

func (c *Client) releaseURL(releaseID string) string {
	return c.config.BaseURL + "release/" + releaseID + "?fmt=json&inc=" + releaseInc
}

// buildTocParam renders "first+last+leadout+offset1+…+offsetN" with the
// MusicBrainz 150-frame lead-in applied.
func buildTocParam(t *toc.DiscTOC) string {
	offsets, leadout := t.MBOffsets()
	if len(offsets) == 0 {
		return ""
	}
	parts := make([]string, 0, len(offsets)+3)
	parts = append(parts,
		strconv.Itoa(t.Tracks[0].Number),
		strconv.Itoa(t.Tracks[len(t.Tracks)-1].Number),
		strconv.FormatInt(leadout, 10))
	for _, off := range offsets {
		parts = append(parts, strconv.FormatInt(off, 10))
	}
	return strings.Join(parts, "+")
}

func (c *Client) discIDURL(t *toc.DiscTOC, discid, tocParam string) string {
	discidPath := discid
	if discidPath == "" {
		discidPath = "-"
	}
	// Prefer release matches over CD stubs, and allow fuzzy TOC lookups even
	// when a CD stub exists. The toc parameter is sent unconditionally.
	return c.config.BaseURL + "discid/" + discidPath +
		"?fmt=json&toc=" + tocParam + "&cdstubs=no&inc=" + discIDInc
}

func searchURL(baseURL, albumTitle string) string {
	title := strings.TrimSpace(albumTitle)
	title = strings.ReplaceAll(title, `"`, "")
	if title == "" {
		return ""
	}
	query := `release:"` + title + `"`
	return baseURL + "release/?fmt=json&limit=" + strconv.Itoa(searchLimit) +
		"&query=" + url.QueryEscape(query)
}

// 4. Public API methods

// Fetch looks the TOC up on MusicBrainz: by the already-known release id when
// the TOC carries one, otherwise through the discid endpoint with a full toc
// query for fuzzy matching.
func (c *Client) Fetch(ctx context.Context, t *toc.DiscTOC) ([]*meta.Entry, error) {
	if t == nil || len(t.Tracks) == 0 {
		return nil, fmt.Errorf("MusicBrainz query failed: invalid TOC")
	}
	offsets, _ := t.MBOffsets()
	if len(offsets) == 0 {
		return nil, fmt.Errorf("MusicBrainz query failed: unable to build TOC")
	}

	discid := t.MBDiscID
	if discid == "" {
		if computed, err := toc.ComputeMBDiscID(t); err == nil {
			discid = computed
		}
	}

	if t.MBReleaseID != "" {
		reqURL := c.releaseURL(t.MBReleaseID)
		var release Release
		if err := c.getJSON(ctx, reqURL, &release); err != nil {
			return nil, err
		}
		return buildEntriesFromRelease(t, reqURL, &release, offsets, discid), nil
	}

	tocParam := buildTocParam(t)
	reqURL := c.discIDURL(t, discid, tocParam)
	var resp discIDResponse
	if err := c.getJSON(ctx, reqURL, &resp); err != nil {
		return nil, err
	}

	var entries []*meta.Entry
	var lastErr error
	anySuccess := false
	for i := range resp.Releases {
		release := &resp.Releases[i]
		if release.ID == "" {
			continue
		}
		detail, err := c.fetchReleaseDetails(ctx, t, release.ID, offsets, discid)
		if err != nil {
			lastErr = err
			continue
		}
		anySuccess = true
		entries = append(entries, detail...)
	}
	if !anySuccess {
		// Fallback: build from the discid response if release lookups failed.
		for i := range resp.Releases {
			entries = append(entries,
				buildEntriesFromRelease(t, reqURL, &resp.Releases[i], offsets, discid)...)
		}
		if len(entries) == 0 && lastErr != nil {
			return nil, lastErr
		}
	}
	return entries, nil
}

func (c *Client) fetchReleaseDetails(
	ctx context.Context,
	t *toc.DiscTOC,
	releaseID string,
	offsets []int64,
	discid string,
) ([]*meta.Entry, error) {
	reqURL := c.releaseURL(releaseID)
	var release Release
	if err := c.getJSON(ctx, reqURL, &release); err != nil {
		return nil, err
	}
	return buildEntriesFromRelease(t, reqURL, &release, offsets, discid), nil
}

// SearchByTitle performs the fuzzy by-title fallback: a release search with
// the quoted title followed by per-release detail lookups.
func (c *Client) SearchByTitle(ctx context.Context, t *toc.DiscTOC, albumTitle string) ([]*meta.Entry, error) {
	if t == nil || len(t.Tracks) == 0 {
		return nil, fmt.Errorf("MusicBrainz query failed: invalid TOC")
	}
	reqURL := searchURL(c.config.BaseURL, albumTitle)
	if reqURL == "" {
		return nil, nil
	}
	offsets, _ := t.MBOffsets()
	if len(offsets) == 0 {
		return nil, fmt.Errorf("MusicBrainz query failed: unable to build TOC")
	}
	discid := t.MBDiscID
	if discid == "" {
		if computed, err := toc.ComputeMBDiscID(t); err == nil {
			discid = computed
		}
	}

	var resp searchResponse
	if err := c.getJSON(ctx, reqURL, &resp); err != nil {
		return nil, err
	}

	var entries []*meta.Entry
	var lastErr error
	anySuccess := false
	for i := range resp.Releases {
		release := &resp.Releases[i]
		if release.ID == "" {
			continue
		}
		detail, err := c.fetchReleaseDetails(ctx, t, release.ID, offsets, discid)
		if err != nil {
			lastErr = err
			continue
		}
		anySuccess = true
		entries = append(entries, detail...)
	}
	if !anySuccess && lastErr != nil {
		return nil, lastErr
	}
	return entries, nil
}
