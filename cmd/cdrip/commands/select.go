package commands

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"cdrip/internal/api/cddb"
	"cdrip/internal/api/musicbrainz"
	"cdrip/internal/config"
	"cdrip/internal/meta"
	"cdrip/internal/shared"
)

func userAgent() string {
	return "cdrip/" + Version + " (https://github.com/kekyo/cdrip)"
}

// buildProviders wires the configured server list into aggregator providers.
// The MusicBrainz client doubles as the fuzzy title searcher.
func buildProviders(cfg *config.Config) ([]meta.Provider, meta.TitleSearcher) {
	var providers []meta.Provider
	var searcher meta.TitleSearcher
	for _, server := range cfg.Servers {
		if strings.EqualFold(server.Label, meta.MusicBrainzLabel) {
			mbConfig := musicbrainz.DefaultConfig()
			mbConfig.UserAgent = userAgent()
			client := musicbrainz.NewClientWithConfig(mbConfig)
			providers = append(providers, client)
			if searcher == nil {
				searcher = client
			}
			continue
		}
		providers = append(providers, cddb.NewClient(cddb.Server{
			Host:  server.Host,
			Port:  server.Port,
			Path:  server.Path,
			Label: server.Label,
		}, userAgent()))
	}
	return providers, searcher
}

func describeEntry(e *meta.Entry) string {
	artist := shared.FirstNonEmpty(e.AlbumTag("ARTIST"), "Unknown artist")
	album := shared.FirstNonEmpty(e.AlbumTag("ALBUM"), "Unknown album")
	parts := []string{fmt.Sprintf("%s - %s", artist, album)}
	if date := e.AlbumTag("DATE"); date != "" {
		parts = append(parts, date)
	}
	if country := e.AlbumTag("RELEASECOUNTRY"); country != "" {
		parts = append(parts, country)
	}
	if media := e.AlbumTag("MEDIA"); media != "" {
		parts = append(parts, media)
	}
	label := e.SourceLabel
	if label == "" {
		label = "none"
	}
	return fmt.Sprintf("%s [%s]", strings.Join(parts, ", "), label)
}

// prepareCandidates applies the title filter and optional sorting.
func prepareCandidates(cfg *config.Config, entries []*meta.Entry) []*meta.Entry {
	if cfg.FilterTitle != nil {
		var kept []*meta.Entry
		for _, e := range entries {
			if cfg.FilterTitle.MatchString(e.AlbumTag("ALBUM")) {
				kept = append(kept, e)
			}
		}
		entries = kept
	}
	if cfg.Sort {
		sort.SliceStable(entries, func(i, j int) bool {
			ai, aj := entries[i].AlbumTag("ALBUM"), entries[j].AlbumTag("ALBUM")
			if ai != aj {
				return ai < aj
			}
			return entries[i].AlbumTag("ARTIST") < entries[j].AlbumTag("ARTIST")
		})
	}
	return entries
}

// selectEntries lets the user pick one or more candidates; auto mode takes
// the first. An empty result means "ignore the metadata".
func selectEntries(cfg *config.Config, entries []*meta.Entry) ([]*meta.Entry, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	if cfg.Auto {
		return entries[:1], nil
	}

	fmt.Println()
	for i, e := range entries {
		fmt.Printf("  %2d: %s\n", i+1, describeEntry(e))
	}
	shared.ColorPrompt.Printf("Select entry (1-%d, comma-separated to merge, 0 to ignore) [1]: ", len(entries))

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return entries[:1], nil
	}
	line := strings.TrimSpace(scanner.Text())
	if line == "" {
		return entries[:1], nil
	}
	if line == "0" {
		return nil, nil
	}

	var selected []*meta.Entry
	for _, part := range strings.Split(line, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		index, err := strconv.Atoi(part)
		if err != nil || index < 1 || index > len(entries) {
			return nil, fmt.Errorf("invalid selection %q", part)
		}
		selected = append(selected, entries[index-1])
	}
	if len(selected) == 0 {
		return entries[:1], nil
	}
	return selected, nil
}
