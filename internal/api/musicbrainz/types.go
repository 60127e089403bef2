package musicbrainz

// JSON shapes of the MusicBrainz /ws/2 responses, limited to the members the
// matcher consumes.

// Artist represents a MusicBrainz artist
type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ArtistCredit is one element of the ordered artist-credit array.
type ArtistCredit struct {
	Name       string `json:"name"`
	JoinPhrase string `json:"joinphrase"`
	Artist     Artist `json:"artist"`
}

// Disc is one registered disc id with its frame offsets.
type Disc struct {
	ID      string  `json:"id"`
	Offsets []int64 `json:"offsets"`
}

// Recording carries the recording-level identifiers of a track.
type Recording struct {
	ID           string         `json:"id"`
	ISRCs        []string       `json:"isrcs"`
	ArtistCredit []ArtistCredit `json:"artist-credit"`
}

// MediaTrack is one track of a medium.
type MediaTrack struct {
	ID           string         `json:"id"`
	Position     int            `json:"position"`
	Number       string         `json:"number"`
	Title        string         `json:"title"`
	ArtistCredit []ArtistCredit `json:"artist-credit"`
	Recording    Recording      `json:"recording"`
}

// Media is one disc of a release.
type Media struct {
	ID         string       `json:"id"`
	Title      string       `json:"title"`
	Format     string       `json:"format"`
	Position   int          `json:"position"`
	TrackCount int          `json:"track-count"`
	Discs      []Disc       `json:"discs"`
	Tracks     []MediaTrack `json:"tracks"`
}

// NamedTag is a genre or folksonomy tag.
type NamedTag struct {
	Name string `json:"name"`
}

// ReleaseGroup represents a MusicBrainz release group
type ReleaseGroup struct {
	ID        string     `json:"id"`
	Genres    []NamedTag `json:"genres"`
	GenreList []string   `json:"genre-list"`
	Tags      []NamedTag `json:"tags"`
	TagList   []string   `json:"tag-list"`
}

// Label represents a MusicBrainz label
type Label struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// LabelInfo pairs a label with a catalog number.
type LabelInfo struct {
	CatalogNumber string `json:"catalog-number"`
	Label         Label  `json:"label"`
}

// RelationURL is the url object of a relation.
type RelationURL struct {
	Resource string `json:"resource"`
}

// Relation links a release to an external resource (e.g. Discogs).
type Relation struct {
	Type string      `json:"type"`
	URL  RelationURL `json:"url"`
}

// CoverArtArchive summarises artwork availability.
type CoverArtArchive struct {
	Artwork bool `json:"artwork"`
	Front   bool `json:"front"`
}

// Release represents a MusicBrainz release (album)
type Release struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Status          string          `json:"status"`
	Date            string          `json:"date"`
	Country         string          `json:"country"`
	Barcode         string          `json:"barcode"`
	ArtistCredit    []ArtistCredit  `json:"artist-credit"`
	LabelInfo       []LabelInfo     `json:"label-info"`
	Media           []Media         `json:"media"`
	ReleaseGroup    ReleaseGroup    `json:"release-group"`
	Genres          []NamedTag      `json:"genres"`
	GenreList       []string        `json:"genre-list"`
	Tags            []NamedTag      `json:"tags"`
	TagList         []string        `json:"tag-list"`
	Relations       []Relation      `json:"relations"`
	CoverArtArchive CoverArtArchive `json:"cover-art-archive"`
}

// discIDResponse is the /discid/{id} answer.
type discIDResponse struct {
	Releases []Release `json:"releases"`
}

// searchResponse is the /release/?query= answer.
type searchResponse struct {
	Releases []Release `json:"releases"`
}
