// Package config loads the cdrip INI configuration.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	"cdrip/internal/shared"
)

// DiscogsMode selects the cover-art provider policy.
type DiscogsMode string

const (
	DiscogsNo       DiscogsMode = "no"
	DiscogsAlways   DiscogsMode = "always"
	DiscogsFallback DiscogsMode = "fallback"
)

// RipMode selects the read-integrity mode.
type RipMode string

const (
	RipModeFast RipMode = "fast"
	RipModeBest RipMode = "best"
)

// Defaults.
const (
	DefaultFormat   = "{album}/{tracknumber:02d}_{safetitle}.flac"
	DefaultMaxWidth = 512
	DefaultServers  = "musicbrainz,gnudb,dbpoweramp"
)

// ServerConfig is one configured metadata provider endpoint.
type ServerConfig struct {
	ID    string
	Host  string
	Port  int
	Path  string
	Label string
}

// Config is the structured configuration consumed by the core.
type Config struct {
	Device      string
	Format      string
	Compression int // -1 selects the mode default
	Mode        RipMode
	MaxWidth    int
	Repeat      bool
	Sort        bool
	Auto        bool
	SpeedFast   bool
	Discogs     DiscogsMode
	ArtPreview  bool
	FilterTitle *regexp.Regexp
	Servers     []ServerConfig
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{
		Format:      DefaultFormat,
		Compression: -1,
		Mode:        RipModeBest,
		MaxWidth:    DefaultMaxWidth,
		Discogs:     DiscogsAlways,
		ArtPreview:  true,
	}
	cfg.Servers = defaultServers(strings.Split(DefaultServers, ","))
	return cfg
}

// builtinServer fills in the well-known endpoints for the default ids.
func builtinServer(id string) ServerConfig {
	server := ServerConfig{ID: id, Label: id, Port: 80, Path: "/~cddb/cddb.cgi"}
	switch id {
	case "musicbrainz":
		server.Port = 0
		server.Path = ""
	case "gnudb":
		server.Host = "gnudb.gnudb.org"
	case "dbpoweramp":
		server.Host = "freedb.dbpoweramp.com"
	}
	return server
}

func defaultServers(ids []string) []ServerConfig {
	var servers []ServerConfig
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		servers = append(servers, builtinServer(id))
	}
	return servers
}

// Load reads the INI file at path. A missing file yields the defaults; a
// malformed file is a ConfigError.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	file, err := ini.Load(path)
	if err != nil {
		return nil, shared.WrapError(shared.KindConfigError, "failed to load config "+path, err)
	}
	if err := apply(cfg, file); err != nil {
		return nil, err
	}
	return cfg, nil
}

func apply(cfg *Config, file *ini.File) error {
	cdr := file.Section("cdrip")

	if key := cdr.Key("device"); key.String() != "" {
		cfg.Device = key.String()
	}
	if key := cdr.Key("format"); key.String() != "" {
		cfg.Format = key.String()
	}

	if raw := strings.TrimSpace(cdr.Key("compression").String()); raw != "" && raw != "auto" {
		level, err := strconv.Atoi(raw)
		if err != nil || level < 0 {
			return shared.Errorf(shared.KindConfigError, "cdrip.compression must be a non-negative integer or \"auto\", got %q", raw)
		}
		cfg.Compression = level
	}

	switch mode := strings.ToLower(strings.TrimSpace(cdr.Key("mode").String())); mode {
	case "", "default", "best":
		cfg.Mode = RipModeBest
	case "fast":
		cfg.Mode = RipModeFast
	default:
		return shared.Errorf(shared.KindConfigError, "cdrip.mode must be fast, best or default, got %q", mode)
	}

	if raw := strings.TrimSpace(cdr.Key("max_width").String()); raw != "" {
		width, err := strconv.Atoi(raw)
		if err != nil || width <= 0 {
			return shared.Errorf(shared.KindConfigError, "cdrip.max_width must be a positive integer, got %q", raw)
		}
		cfg.MaxWidth = width
	}

	var err error
	if cfg.Repeat, err = boolKey(cdr, "repeat", cfg.Repeat); err != nil {
		return err
	}
	if cfg.Sort, err = boolKey(cdr, "sort", cfg.Sort); err != nil {
		return err
	}
	if cfg.Auto, err = boolKey(cdr, "auto", cfg.Auto); err != nil {
		return err
	}
	if cfg.ArtPreview, err = boolKey(cdr, "aa", cfg.ArtPreview); err != nil {
		return err
	}

	switch speed := strings.ToLower(strings.TrimSpace(cdr.Key("speed").String())); speed {
	case "", "slow":
		cfg.SpeedFast = false
	case "fast":
		cfg.SpeedFast = true
	default:
		return shared.Errorf(shared.KindConfigError, "cdrip.speed must be slow or fast, got %q", speed)
	}

	switch discogs := strings.ToLower(strings.TrimSpace(cdr.Key("discogs").String())); discogs {
	case "", "always":
		cfg.Discogs = DiscogsAlways
	case "no":
		cfg.Discogs = DiscogsNo
	case "fallback":
		cfg.Discogs = DiscogsFallback
	default:
		return shared.Errorf(shared.KindConfigError, "cdrip.discogs must be no, always or fallback, got %q", discogs)
	}

	if raw := cdr.Key("filter_title").String(); raw != "" {
		re, err := regexp.Compile("(?i)" + raw)
		if err != nil {
			return shared.WrapError(shared.KindConfigError, "cdrip.filter_title is not a valid regex", err)
		}
		cfg.FilterTitle = re
	}

	cddbSection := file.Section("cddb")
	serverCSV := cddbSection.Key("servers").String()
	ids := strings.Split(DefaultServers, ",")
	if strings.TrimSpace(serverCSV) != "" {
		ids = strings.Split(serverCSV, ",")
	}

	var servers []ServerConfig
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		server := builtinServer(id)
		section := file.Section("cddb." + id)
		if host := section.Key("host").String(); host != "" {
			server.Host = host
		}
		if port, err := section.Key("port").Int(); err == nil && port > 0 {
			server.Port = port
		}
		if path := section.Key("path").String(); path != "" {
			server.Path = path
		}
		if label := section.Key("label").String(); label != "" {
			server.Label = label
		}
		if !strings.EqualFold(server.Label, "musicbrainz") && server.Host == "" {
			return shared.Errorf(shared.KindConfigError, "cddb.%s needs a host", id)
		}
		servers = append(servers, server)
	}
	if len(servers) == 0 {
		return shared.NewError(shared.KindConfigError, "cddb.servers selects no providers")
	}
	cfg.Servers = servers
	return nil
}

func boolKey(section *ini.Section, name string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(section.Key(name).String())
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseBool(strings.ToLower(raw))
	if err != nil {
		return false, shared.Errorf(shared.KindConfigError, "cdrip.%s must be a boolean, got %q", name, raw)
	}
	return value, nil
}

// String renders the effective configuration for debug output.
func (c *Config) String() string {
	ids := make([]string, 0, len(c.Servers))
	for _, server := range c.Servers {
		ids = append(ids, server.ID)
	}
	compression := "auto"
	if c.Compression >= 0 {
		compression = strconv.Itoa(c.Compression)
	}
	return fmt.Sprintf("device=%q format=%q compression=%s mode=%s max_width=%d discogs=%s servers=%s",
		c.Device, c.Format, compression, c.Mode, c.MaxWidth, c.Discogs, strings.Join(ids, ","))
}
