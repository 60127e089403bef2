package config

import (
	"os"
	"path/filepath"
	"testing"

	"cdrip/internal/shared"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cdrip.conf")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.conf"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Format != DefaultFormat {
		t.Errorf("format = %q", cfg.Format)
	}
	if cfg.Compression != -1 {
		t.Errorf("compression = %d, want auto (-1)", cfg.Compression)
	}
	if cfg.Mode != RipModeBest {
		t.Errorf("mode = %q, want best", cfg.Mode)
	}
	if cfg.MaxWidth != DefaultMaxWidth {
		t.Errorf("max width = %d", cfg.MaxWidth)
	}
	if cfg.Discogs != DiscogsAlways {
		t.Errorf("discogs = %q, want always", cfg.Discogs)
	}
	if !cfg.ArtPreview {
		t.Error("aa should default to true")
	}
	if len(cfg.Servers) != 3 ||
		cfg.Servers[0].ID != "musicbrainz" ||
		cfg.Servers[1].ID != "gnudb" ||
		cfg.Servers[2].ID != "dbpoweramp" {
		t.Errorf("servers = %+v", cfg.Servers)
	}
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
[cdrip]
device = /dev/sr1
format = {artist}/{album}/{tracknumber:02d} {safetitle}
compression = 8
mode = fast
max_width = 1024
repeat = true
sort = true
auto = true
speed = fast
discogs = fallback
aa = false
filter_title = ^best of

[cddb]
servers = musicbrainz, local

[cddb.local]
host = cddb.example.com
port = 8880
path = /cddb/cddb.cgi
label = Local Mirror
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Device != "/dev/sr1" {
		t.Errorf("device = %q", cfg.Device)
	}
	if cfg.Compression != 8 {
		t.Errorf("compression = %d", cfg.Compression)
	}
	if cfg.Mode != RipModeFast {
		t.Errorf("mode = %q", cfg.Mode)
	}
	if cfg.MaxWidth != 1024 {
		t.Errorf("max width = %d", cfg.MaxWidth)
	}
	if !cfg.Repeat || !cfg.Sort || !cfg.Auto || !cfg.SpeedFast {
		t.Error("boolean keys not applied")
	}
	if cfg.Discogs != DiscogsFallback {
		t.Errorf("discogs = %q", cfg.Discogs)
	}
	if cfg.ArtPreview {
		t.Error("aa = false not applied")
	}
	if cfg.FilterTitle == nil || !cfg.FilterTitle.MatchString("BEST OF FOO") {
		t.Error("filter_title should be case-insensitive")
	}
	if len(cfg.Servers) != 2 {
		t.Fatalf("servers = %+v", cfg.Servers)
	}
	local := cfg.Servers[1]
	if local.Host != "cddb.example.com" || local.Port != 8880 ||
		local.Path != "/cddb/cddb.cgi" || local.Label != "Local Mirror" {
		t.Errorf("local server = %+v", local)
	}
}

func TestLoadInlineComments(t *testing.T) {
	path := writeConfig(t, `
[cdrip]
mode = fast ; prefer speed
max_width = 256 # small covers
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Mode != RipModeFast {
		t.Errorf("inline comment not stripped from mode: %q", cfg.Mode)
	}
	if cfg.MaxWidth != 256 {
		t.Errorf("inline comment not stripped from max_width: %d", cfg.MaxWidth)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []string{
		"[cdrip]\nmode = turbo\n",
		"[cdrip]\nmax_width = 0\n",
		"[cdrip]\nmax_width = -5\n",
		"[cdrip]\ndiscogs = sometimes\n",
		"[cdrip]\nspeed = medium\n",
		"[cdrip]\ncompression = fastest\n",
		"[cdrip]\nrepeat = perhaps\n",
		"[cdrip]\nfilter_title = [unclosed\n",
	}
	for _, content := range cases {
		path := writeConfig(t, content)
		_, err := Load(path)
		if err == nil {
			t.Errorf("config %q should be rejected", content)
			continue
		}
		if !shared.IsKind(err, shared.KindConfigError) {
			t.Errorf("kind = %v for %q, want ConfigError", shared.KindOf(err), content)
		}
	}
}

func TestLoadCompressionAuto(t *testing.T) {
	path := writeConfig(t, "[cdrip]\ncompression = auto\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Compression != -1 {
		t.Errorf("compression = %d, want -1", cfg.Compression)
	}
}

func TestLoadCustomServerNeedsHost(t *testing.T) {
	path := writeConfig(t, "[cddb]\nservers = mystery\n")
	if _, err := Load(path); err == nil {
		t.Error("unknown server id without host must be rejected")
	}
}
