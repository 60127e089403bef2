package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"cdrip/internal/config"
	"cdrip/internal/retag"
	"cdrip/internal/shared"
	"cdrip/internal/toc"
)

var retagCmd = &cobra.Command{
	Use:   "retag <path>",
	Short: "Re-fetch metadata for existing FLAC files and rewrite their tags",
	Long:  "retag reconstructs each FLAC's disc TOC from its Vorbis comments, queries the\nmetadata providers again and rewrites the comment and picture blocks in place.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return retagPath(cmd.Context(), cfg, args[0])
	},
}

func retagPath(ctx context.Context, cfg *config.Config, path string) error {
	items, err := toc.CollectTagged(path)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("no FLAC files found under %s", path)
	}

	// Group by disc so each disc's metadata is fetched and selected once.
	type discGroup struct {
		toc   *toc.DiscTOC
		items []*toc.TaggedTOC
	}
	var order []string
	groups := make(map[string]*discGroup)
	for i := range items {
		item := &items[i]
		if !item.Valid {
			shared.ColorWarning.Printf("Skipping %s: %s\n", item.Path, item.Reason)
			continue
		}
		key := item.TOC.CddbDiscID
		group, ok := groups[key]
		if !ok {
			group = &discGroup{toc: item.TOC}
			groups[key] = group
			order = append(order, key)
		}
		group.items = append(group.items, item)
	}

	updated := 0
	for _, key := range order {
		group := groups[key]
		entry, _, err := resolveMetadata(ctx, cfg, group.toc)
		if err != nil {
			return err
		}
		fetchCover(ctx, cfg, entry, nil, group.toc)

		for _, item := range group.items {
			if err := retag.Update(item, entry); err != nil {
				shared.ColorError.Printf("Failed to retag %s: %v\n", item.Path, err)
				continue
			}
			shared.ColorSuccess.Printf("Retagged %s\n", item.Path)
			updated++
		}
	}
	shared.ColorInfo.Printf("Updated %d files.\n", updated)
	return nil
}
