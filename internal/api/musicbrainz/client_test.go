package musicbrainz

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"cdrip/internal/fetch"
	"cdrip/internal/toc"
)

func testTOC() *toc.DiscTOC {
	return &toc.DiscTOC{
		Tracks: []toc.TrackInfo{
			{Number: 1, Start: 0, End: 13410, IsAudio: true},
			{Number: 2, Start: 13510, End: 34567, IsAudio: true},
		},
		LeadoutSector: 34568,
		LengthSeconds: 460,
		CddbDiscID:    "901cc02",
	}
}

func testClient(serverURL string) *Client {
	cfg := DefaultConfig()
	cfg.BaseURL = serverURL + "/ws/2/"
	cfg.RateLimit = time.Microsecond
	cfg.Burst = 100
	cfg.Policy = fetch.Policy{
		Timeout:     2 * time.Second,
		MaxAttempts: 1,
	}
	return NewClientWithConfig(cfg)
}

const releaseJSON = `{
	"id": "release-1",
	"title": "The Album",
	"status": "Official",
	"date": "1999-03-01",
	"country": "GB",
	"barcode": "0123456789012",
	"artist-credit": [
		{"name": "Foo", "joinphrase": " & ", "artist": {"id": "a1", "name": "Foo"}},
		{"name": "Bar", "artist": {"id": "a2", "name": "Bar"}}
	],
	"label-info": [
		{"catalog-number": "CAT-001", "label": {"id": "l1", "name": "Fine Records"}}
	],
	"release-group": {
		"id": "rg-1",
		"genres": [{"name": "pop"}]
	},
	"genres": [{"name": "rock"}],
	"tags": [{"name": "classic"}, {"name": "rock"}],
	"relations": [
		{"type": "purchase", "url": {"resource": "https://example.com/x"}},
		{"type": "discogs", "url": {"resource": "https://www.discogs.com/release/12345-the-album"}}
	],
	"cover-art-archive": {"artwork": true, "front": true},
	"media": [
		{
			"id": "medium-1",
			"title": "Bonus Disc",
			"format": "CD",
			"position": 1,
			"track-count": 2,
			"discs": [{"id": "DISCID_PLACEHOLDER", "offsets": [150, 13660]}],
			"tracks": [
				{
					"id": "t1", "position": 1, "number": "1", "title": "Intro",
					"recording": {"id": "rec1", "isrcs": ["GBAAA9900001"]}
				},
				{
					"id": "t2", "position": 2, "number": "2", "title": "Outro",
					"artist-credit": [{"name": "Guest", "artist": {"id": "a3", "name": "Guest"}}],
					"recording": {"id": "rec2"}
				}
			]
		}
	]
}`

func discIDHandler(t *testing.T, mbDiscID string, requests *[]string) http.HandlerFunc {
	release := strings.ReplaceAll(releaseJSON, "DISCID_PLACEHOLDER", mbDiscID)
	return func(w http.ResponseWriter, r *http.Request) {
		*requests = append(*requests, r.URL.String())
		switch {
		case strings.HasPrefix(r.URL.Path, "/ws/2/discid/"):
			fmt.Fprintf(w, `{"releases": [{"id": "release-1", "title": "The Album"}]}`)
		case r.URL.Path == "/ws/2/release/release-1":
			w.Write([]byte(release))
		default:
			http.NotFound(w, r)
		}
	}
}

func TestFetchDiscIDLookup(t *testing.T) {
	discTOC := testTOC()
	mbID, err := toc.ComputeMBDiscID(discTOC)
	if err != nil {
		t.Fatal(err)
	}

	var requests []string
	server := httptest.NewServer(discIDHandler(t, mbID, &requests))
	defer server.Close()

	client := testClient(server.URL)
	entries, err := client.Fetch(context.Background(), discTOC)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(requests) == 0 {
		t.Fatal("no requests made")
	}

	// The discid URL always carries the full toc for fuzzy matching.
	first := requests[0]
	if !strings.Contains(first, "/ws/2/discid/"+mbID) {
		t.Errorf("discid URL = %q, want computed disc id in path", first)
	}
	if !strings.Contains(first, "toc=1+2+34718+150+13660") {
		t.Errorf("discid URL %q must contain toc=1+2+34718+150+13660", first)
	}
	if !strings.Contains(first, "cdstubs=no") {
		t.Errorf("discid URL %q must disable CD stubs", first)
	}

	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	entry := entries[0]

	checks := map[string]string{
		"ALBUM":                      "The Album",
		"ARTIST":                     "Foo & Bar",
		"ALBUMARTIST":                "Foo & Bar",
		"DATE":                       "1999-03-01",
		"RELEASECOUNTRY":             "GB",
		"BARCODE":                    "0123456789012",
		"RELEASESTATUS":              "Official",
		"MEDIA":                      "CD",
		"MUSICBRAINZ_RELEASE":        "release-1",
		"MUSICBRAINZ_MEDIUM":         "medium-1",
		"MUSICBRAINZ_MEDIUMTITLE":    "Bonus Disc",
		"MUSICBRAINZ_RELEASEGROUPID": "rg-1",
		"DISCOGS_RELEASE":            "12345",
		"LABEL":                      "Fine Records",
		"CATALOGNUMBER":              "CAT-001",
		"TRACKTOTAL":                 "2",
		"DISCNUMBER":                 "1",
		"DISCTOTAL":                  "1",
	}
	for key, want := range checks {
		if got := entry.AlbumTag(key); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
	// Genres from release and release group, order-preserving, de-duplicated.
	if got := entry.AlbumTag("GENRE"); got != "rock; classic; pop" {
		t.Errorf("GENRE = %q, want %q", got, "rock; classic; pop")
	}
	if !entry.CoverArt.Available || !entry.CoverArt.IsFront {
		t.Error("cover art availability flag should be set")
	}

	if got := entry.TrackTag(0, "TITLE"); got != "Intro" {
		t.Errorf("track 1 TITLE = %q", got)
	}
	if got := entry.TrackTag(0, "ISRC"); got != "GBAAA9900001" {
		t.Errorf("track 1 ISRC = %q", got)
	}
	if got := entry.TrackTag(0, "MUSICBRAINZ_RECORDINGID"); got != "rec1" {
		t.Errorf("track 1 recording id = %q", got)
	}
	// Track without its own credit falls back to the album artist.
	if got := entry.TrackTag(0, "ARTIST"); got != "Foo & Bar" {
		t.Errorf("track 1 ARTIST = %q", got)
	}
	if got := entry.TrackTag(1, "ARTIST"); got != "Guest" {
		t.Errorf("track 2 ARTIST = %q, want track credit", got)
	}
}

func TestFetchUsesReleaseEndpointWhenKnown(t *testing.T) {
	discTOC := testTOC()
	discTOC.MBReleaseID = "release-1"

	var requests []string
	server := httptest.NewServer(discIDHandler(t, "x", &requests))
	defer server.Close()

	client := testClient(server.URL)
	if _, err := client.Fetch(context.Background(), discTOC); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(requests) != 1 || !strings.Contains(requests[0], "/ws/2/release/release-1") {
		t.Errorf("known release id must go straight to the release endpoint: %v", requests)
	}
}

func TestSearchByTitleURL(t *testing.T) {
	discTOC := testTOC()
	var requests []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.URL.String())
		if strings.HasPrefix(r.URL.Path, "/ws/2/release/") && r.URL.Path != "/ws/2/release/" {
			w.Write([]byte(strings.ReplaceAll(releaseJSON, "DISCID_PLACEHOLDER", "x")))
			return
		}
		fmt.Fprint(w, `{"releases": [{"id": "release-1"}]}`)
	}))
	defer server.Close()

	client := testClient(server.URL)
	entries, err := client.SearchByTitle(context.Background(), discTOC, `best "of" foo 1999`)
	if err != nil {
		t.Fatalf("SearchByTitle failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}

	decoded, err := url.QueryUnescape(requests[0])
	if err != nil {
		t.Fatal(err)
	}
	// Double quotes are removed before quoting the query.
	if !strings.Contains(decoded, `release:"best of foo 1999"`) {
		t.Errorf("search URL %q must contain the quoted title", decoded)
	}
	if !strings.Contains(requests[0], "limit=10") {
		t.Errorf("search URL %q must limit to 10", requests[0])
	}
}

func TestSearchByTitleEmptyTitle(t *testing.T) {
	client := testClient("http://unused.invalid")
	entries, err := client.SearchByTitle(context.Background(), testTOC(), `"`)
	if err != nil {
		t.Fatalf("empty title should be a no-op, got %v", err)
	}
	if entries != nil {
		t.Errorf("entries = %v, want none", entries)
	}
}

func TestSelectMatchingMediaPriorities(t *testing.T) {
	discTOC := testTOC()
	offsets, _ := discTOC.MBOffsets()

	byDiscID := []Media{
		{ID: "m1", TrackCount: 2},
		{ID: "m2", TrackCount: 2, Discs: []Disc{{ID: "the-disc-id"}}},
	}
	selected := selectMatchingMedia(byDiscID, discTOC, offsets, "the-disc-id", "")
	if len(selected) != 1 || selected[0].ID != "m2" {
		t.Errorf("disc id match must win, got %+v", selected)
	}

	byOffsets := []Media{
		{ID: "m1", TrackCount: 5},
		{ID: "m2", TrackCount: 2, Discs: []Disc{{Offsets: []int64{150, 13660}}}},
	}
	selected = selectMatchingMedia(byOffsets, discTOC, offsets, "nope", "")
	if len(selected) != 1 || selected[0].ID != "m2" {
		t.Errorf("offsets match must win, got %+v", selected)
	}

	byCount := []Media{
		{ID: "m1", TrackCount: 5},
		{ID: "m2", TrackCount: 2},
	}
	selected = selectMatchingMedia(byCount, discTOC, offsets, "nope", "")
	if len(selected) != 1 || selected[0].ID != "m2" {
		t.Errorf("track-count match expected, got %+v", selected)
	}

	noMatch := []Media{
		{ID: "m1", TrackCount: 5},
		{ID: "m2", TrackCount: 7},
	}
	selected = selectMatchingMedia(noMatch, discTOC, offsets, "nope", "")
	if len(selected) != 1 || selected[0].ID != "m1" {
		t.Errorf("first medium fallback expected, got %+v", selected)
	}
}

func TestDiscogsIDFromURL(t *testing.T) {
	cases := map[string]string{
		"https://www.discogs.com/release/12345-the-album": "12345",
		"https://www.discogs.com/RELEASE/678":             "678",
		"https://www.discogs.com/master/999":              "",
		"": "",
	}
	for input, want := range cases {
		if got := discogsIDFromURL(input); got != want {
			t.Errorf("discogsIDFromURL(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestJoinArtistCredit(t *testing.T) {
	credits := []ArtistCredit{
		{Name: "Foo", JoinPhrase: " feat. "},
		{Artist: Artist{Name: "Bar"}},
	}
	if got := joinArtistCredit(credits); got != "Foo feat. Bar" {
		t.Errorf("joinArtistCredit = %q", got)
	}
}
