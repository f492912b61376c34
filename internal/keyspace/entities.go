package keyspace

// Dimension is a preference axis: a liked source or a liked genre.
type Dimension string

const (
	DimensionSource Dimension = "source"
	DimensionGenre  Dimension = "genre"
)

// Source is a streaming source catalog entry.
type Source struct {
	ID      ID       `json:"id" dynamodbav:"id"`
	Name    string   `json:"name" dynamodbav:"name"`
	Type    string   `json:"type,omitempty" dynamodbav:"type,omitempty"`
	LogoURL string   `json:"logo_100px,omitempty" dynamodbav:"logo_100px,omitempty"`
	Regions []string `json:"regions,omitempty" dynamodbav:"regions,omitempty"`
}

// Genre is a genre catalog entry.
type Genre struct {
	ID   ID     `json:"id" dynamodbav:"id"`
	Name string `json:"name" dynamodbav:"name"`
}

// Title is the canonical record of a title. The same shape arrives as the
// raw ingestion payload; PlotOverview, Poster and UserRating are typically
// filled in later by enrichment.
type Title struct {
	ID           ID     `json:"id" dynamodbav:"id"`
	Name         string `json:"title" dynamodbav:"title"`
	Year         int    `json:"year,omitempty" dynamodbav:"year,omitempty"`
	Type         string `json:"type,omitempty" dynamodbav:"type,omitempty"`
	PlotOverview string `json:"plot_overview,omitempty" dynamodbav:"plot_overview,omitempty"`
	Poster       string `json:"poster,omitempty" dynamodbav:"poster,omitempty"`
	UserRating   Rating `json:"user_rating,omitempty" dynamodbav:"user_rating,omitempty"`
	SourceIDs    []ID   `json:"source_ids,omitempty" dynamodbav:"source_ids,omitempty"`
	GenreIDs     []ID   `json:"genre_ids,omitempty" dynamodbav:"genre_ids,omitempty"`
}

// Displayable reports whether the title carries the display fields the read
// paths require. A title that is not yet enriched must never reach a caller.
func (t Title) Displayable() bool {
	return t.Poster != "" && t.PlotOverview != ""
}

// UserPreference is one (user, liked source-or-genre) fact. It is stored as
// a bare key; the row carries no payload.
type UserPreference struct {
	UserID    string
	Dimension Dimension
	RefID     ID
}

// IndexEntry is one derived recommendation-index fact: title TitleID belongs
// to both SourceID and GenreID as of its last ingestion.
type IndexEntry struct {
	SourceID ID
	GenreID  ID
	TitleID  ID
}
