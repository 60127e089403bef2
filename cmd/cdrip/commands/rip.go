package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/spf13/cobra"

	"cdrip/internal/config"
	"cdrip/internal/cover"
	"cdrip/internal/drive"
	"cdrip/internal/meta"
	"cdrip/internal/rip"
	"cdrip/internal/shared"
	"cdrip/internal/toc"
)

var ripCmd = &cobra.Command{
	Use:   "rip",
	Short: "Rip the inserted audio CD to FLAC files",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		for {
			if err := ripDisc(cmd.Context(), cfg); err != nil {
				return err
			}
			if !cfg.Repeat {
				return nil
			}
			shared.ColorPrompt.Print("Insert the next disc and press Enter (Ctrl-C to quit): ")
			if _, err := bufio.NewReader(os.Stdin).ReadString('\n'); err != nil {
				return nil
			}
		}
	},
}

func ripDisc(ctx context.Context, cfg *config.Config) error {
	d, err := drive.Open(cfg.Device)
	if err != nil {
		return err
	}
	defer d.Close()

	discTOC, err := toc.BuildFromDrive(d)
	if err != nil {
		return err
	}
	shared.ColorInfo.Printf("CDDB disc id: %q\n", discTOC.CddbDiscID)
	shared.ColorInfo.Printf("MusicBrainz disc id: %q\n", discTOC.MBDiscID)

	entry, candidates, err := resolveMetadata(ctx, cfg, discTOC)
	if err != nil {
		return err
	}

	fetchCover(ctx, cfg, entry, candidates, discTOC)

	engine := &rip.Engine{
		Drive:            d,
		Format:           cfg.Format,
		CompressionLevel: cfg.Compression,
		FastMode:         cfg.Mode == config.RipModeFast,
		SpeedFast:        cfg.SpeedFast,
	}

	totalAlbumSec := 0.0
	for _, track := range discTOC.Tracks {
		if track.IsAudio {
			totalAlbumSec += float64(track.Sectors()) * 588.0 / 44100.0
		}
	}

	wallStart := time.Now()
	completedBefore := 0.0
	for _, track := range discTOC.Tracks {
		if err := ripTrackWithProgress(engine, track, entry, discTOC, completedBefore, totalAlbumSec, wallStart); err != nil {
			return err
		}
		if track.IsAudio {
			completedBefore += float64(track.Sectors()) * 588.0 / 44100.0
		}
	}
	shared.ColorSuccess.Printf("Ripped %d tracks.\n", len(discTOC.Tracks))
	return nil
}

// resolveMetadata aggregates the providers and lets the user (or auto mode)
// choose the entry, falling back to an offline stub when nothing matched or
// the selection was ignored.
func resolveMetadata(ctx context.Context, cfg *config.Config, discTOC *toc.DiscTOC) (*meta.Entry, []*meta.Entry, error) {
	providers, searcher := buildProviders(cfg)
	aggregator := &meta.Aggregator{Providers: providers, TitleSearcher: searcher}

	entries, err := aggregator.Fetch(ctx, discTOC)
	if err != nil {
		shared.ColorWarning.Printf("Metadata lookup problem: %v\n", err)
	}
	entries = prepareCandidates(cfg, entries)

	selected, err := selectEntries(cfg, entries)
	if err != nil {
		return nil, nil, err
	}
	if len(selected) == 0 {
		shared.ColorWarning.Println("No metadata selected; using track numbers only.")
		fallback := meta.NewFallbackEntry(discTOC)
		return fallback, nil, nil
	}

	entry := selected[0]
	if len(selected) > 1 {
		entry = meta.MergeEntries(discTOC, selected)
	}
	entry.EnsureTrackTitles(len(discTOC.Tracks))
	return entry, selected, nil
}

func fetchCover(ctx context.Context, cfg *config.Config, entry *meta.Entry, candidates []*meta.Entry, discTOC *toc.DiscTOC) {
	fetcher := cover.NewFetcher(userAgent(), cfg.MaxWidth)
	source, notice, ok := fetcher.EnsureCoverArt(ctx, entry, candidates, discTOC, cover.Policy(cfg.Discogs))
	switch {
	case ok && source != cover.SourceNone:
		shared.ColorInfo.Printf("Cover art fetched from %s (%d bytes).\n", source, len(entry.CoverArt.Data))
		if cfg.ArtPreview {
			previewCover(entry)
		}
	case !ok && notice != "":
		shared.ColorWarning.Printf("Cover art unavailable: %s\n", notice)
	}
}

// previewCover reports the artwork dimensions; rendering terminal art is the
// interactive front end's concern.
func previewCover(entry *meta.Entry) {
	if width, height, ok := cover.ParsePNGDimensions(entry.CoverArt.Data); ok {
		shared.ColorInfo.Printf("Cover art: %dx%d PNG\n", width, height)
	}
}

func ripTrackWithProgress(
	engine *rip.Engine,
	track toc.TrackInfo,
	entry *meta.Entry,
	discTOC *toc.DiscTOC,
	completedBefore float64,
	totalAlbumSec float64,
	wallStart time.Time,
) error {
	bar := pb.New(100)
	bar.SetTemplateString(`{{string . "prefix"}} {{bar . }} {{percent . }}{{string . "eta"}}`)
	bar.Start()
	defer bar.Finish()

	progress := func(p *rip.Progress) {
		bar.SetCurrent(int64(p.Percent))
		bar.Set("prefix", fmt.Sprintf("[%d/%d] %s", p.TrackNumber, p.TotalTracks, p.TrackName))
		if p.WallTotalSec > 0 {
			remain := p.WallTotalSec - p.WallElapsedSec
			if remain < 0 {
				remain = 0
			}
			bar.Set("eta", fmt.Sprintf(" ETA %s", shared.FormatSeconds(remain)))
		}
	}

	return engine.RipTrack(track, entry, discTOC, progress,
		len(discTOC.Tracks), completedBefore, totalAlbumSec, wallStart)
}
