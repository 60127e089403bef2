// Package cddb queries legacy CDDB/freedb servers (gnudb and friends) over
// the HTTP command protocol.
package cddb

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"cdrip/internal/fetch"
	"cdrip/internal/meta"
	"cdrip/internal/shared"
	"cdrip/internal/toc"
)

const (
	protoLevel = 6
	helloUser  = "anonymous"
	helloHost  = "localhost"
	helloName  = "cdrip"
	helloVer   = "1.0"
)

// Server describes one CDDB endpoint.
type Server struct {
	Host  string
	Port  int
	Path  string
	Label string
}

// Client talks the CDDB command protocol to one server.
type Client struct {
	server  Server
	fetcher *fetch.Client
}

// NewClient creates a client for the given server.
func NewClient(server Server, userAgent string) *Client {
	if server.Path == "" {
		server.Path = "/~cddb/cddb.cgi"
	}
	return &Client{
		server:  server,
		fetcher: fetch.NewClient(userAgent, fetch.DefaultPolicy()),
	}
}

// Label implements meta.Provider.
func (c *Client) Label() string {
	return c.server.Label
}

func (c *Client) baseURL() string {
	host := c.server.Host
	if c.server.Port != 0 && c.server.Port != 80 && c.server.Port != 443 {
		host = fmt.Sprintf("%s:%d", host, c.server.Port)
	}
	return "http://" + host + c.server.Path
}

func (c *Client) commandURL(words []string) string {
	hello := strings.Join([]string{helloUser, helloHost, helloName, helloVer}, "+")
	return c.baseURL() +
		"?cmd=" + strings.Join(words, "+") +
		"&hello=" + hello +
		"&proto=" + strconv.Itoa(protoLevel)
}

type queryMatch struct {
	category string
	discID   string
}

// Fetch implements meta.Provider: a cddb query followed by one cddb read per
// matched entry.
func (c *Client) Fetch(ctx context.Context, t *toc.DiscTOC) ([]*meta.Entry, error) {
	if t == nil || len(t.Tracks) == 0 {
		return nil, shared.Errorf(shared.KindInvalidTOC, "%s query failed: invalid TOC", c.server.Label)
	}

	words := []string{"cddb", "query", t.CddbDiscID, strconv.Itoa(len(t.Tracks))}
	for _, track := range t.Tracks {
		words = append(words, strconv.FormatInt(track.Start, 10))
	}
	words = append(words, strconv.Itoa(t.LengthSeconds))

	result, err := c.fetcher.Get(ctx, c.server.Label, c.commandURL(words), "text/plain")
	if err != nil {
		return nil, err
	}

	matches, err := parseQueryResponse(string(result.Body))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.server.Label, err)
	}

	var entries []*meta.Entry
	for _, match := range matches {
		entry, err := c.readEntry(ctx, t, match)
		if err != nil {
			return entries, err
		}
		if entry != nil {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// parseQueryResponse decodes the answer to a cddb query command.
func parseQueryResponse(body string) ([]queryMatch, error) {
	scanner := bufio.NewScanner(strings.NewReader(body))
	if !scanner.Scan() {
		return nil, shared.NewError(shared.KindParseError, "empty CDDB query response")
	}
	status := strings.TrimSpace(scanner.Text())
	code, rest, ok := splitStatusLine(status)
	if !ok {
		return nil, shared.Errorf(shared.KindParseError, "malformed CDDB status line %q", status)
	}

	switch code {
	case 200:
		// Exact match: "200 category discid title".
		if match, ok := parseMatchLine(rest); ok {
			return []queryMatch{match}, nil
		}
		return nil, shared.Errorf(shared.KindParseError, "malformed CDDB match line %q", rest)
	case 202:
		return nil, nil
	case 210, 211:
		var matches []queryMatch
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "." || line == "" {
				continue
			}
			if match, ok := parseMatchLine(line); ok {
				matches = append(matches, match)
			}
		}
		return matches, nil
	}
	return nil, shared.Errorf(shared.KindParseError, "CDDB query failed with code %d", code)
}

func splitStatusLine(line string) (int, string, bool) {
	fields := strings.SplitN(line, " ", 2)
	code, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, "", false
	}
	rest := ""
	if len(fields) > 1 {
		rest = fields[1]
	}
	return code, rest, true
}

func parseMatchLine(line string) (queryMatch, bool) {
	fields := strings.SplitN(line, " ", 3)
	if len(fields) < 2 {
		return queryMatch{}, false
	}
	return queryMatch{category: fields[0], discID: fields[1]}, true
}

func (c *Client) readEntry(ctx context.Context, t *toc.DiscTOC, match queryMatch) (*meta.Entry, error) {
	readURL := c.commandURL([]string{"cddb", "read", match.category, match.discID})
	result, err := c.fetcher.Get(ctx, c.server.Label, readURL, "text/plain")
	if err != nil {
		return nil, err
	}

	record, err := parseReadResponse(string(result.Body))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.server.Label, err)
	}

	entry := &meta.Entry{
		CddbDiscID:  t.CddbDiscID,
		SourceLabel: c.server.Label,
		SourceURL:   c.baseURL(),
		FetchedAt:   shared.NowTimestampISO(),
		Tracks:      make([][]meta.Tag, len(t.Tracks)),
	}
	entry.AddAlbumTag("ARTIST", record.artist)
	entry.AddAlbumTag("ALBUM", record.album)
	entry.AddAlbumTag("GENRE", record.genre)
	if record.year > 0 {
		entry.AddAlbumTag("DATE", strconv.Itoa(record.year))
	}
	for i := range entry.Tracks {
		title := ""
		if i < len(record.titles) {
			title = strings.TrimSpace(record.titles[i])
		}
		if title == "" {
			title = fmt.Sprintf("Track %d", i+1)
		}
		entry.AddTrackTag(i, "TITLE", title)
	}
	return entry, nil
}

type xmcdRecord struct {
	artist string
	album  string
	genre  string
	year   int
	titles []string
}

// parseReadResponse decodes the xmcd record returned by cddb read. DTITLE is
// "Artist / Title"; TTITLEn lines are concatenated per track index.
func parseReadResponse(body string) (*xmcdRecord, error) {
	scanner := bufio.NewScanner(strings.NewReader(body))
	if !scanner.Scan() {
		return nil, shared.NewError(shared.KindParseError, "empty CDDB read response")
	}
	code, _, ok := splitStatusLine(strings.TrimSpace(scanner.Text()))
	if !ok || code != 210 {
		return nil, shared.Errorf(shared.KindParseError, "CDDB read failed with code %d", code)
	}

	record := &xmcdRecord{}
	titleByIndex := make(map[int]string)
	maxIndex := -1
	var dtitle string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "." {
			break
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq <= 0 {
			continue
		}
		key, value := line[:eq], line[eq+1:]
		switch {
		case key == "DTITLE":
			dtitle += value
		case key == "DYEAR":
			record.year, _ = strconv.Atoi(strings.TrimSpace(value))
		case key == "DGENRE":
			record.genre = strings.TrimSpace(value)
		case strings.HasPrefix(key, "TTITLE"):
			index, err := strconv.Atoi(key[len("TTITLE"):])
			if err != nil || index < 0 {
				continue
			}
			titleByIndex[index] += value
			if index > maxIndex {
				maxIndex = index
			}
		}
	}

	if artist, album, found := strings.Cut(dtitle, " / "); found {
		record.artist = strings.TrimSpace(artist)
		record.album = strings.TrimSpace(album)
	} else {
		record.album = strings.TrimSpace(dtitle)
	}
	record.titles = make([]string, maxIndex+1)
	for index, title := range titleByIndex {
		record.titles[index] = title
	}
	return record, nil
}
