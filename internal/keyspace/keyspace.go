// Package keyspace is the key codec for the shared table: pure functions
// mapping typed entities to and from (PK, SK, payload) triples. The leading
// segment of a partition key tags the entity kind; no two kinds share a
// prefix, except that recommendation-index partitions extend the source
// prefix with a ":genre:" segment and are disambiguated on that.
package keyspace

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/nightjar-tv/nightjar/internal/store"
)

const (
	SourcePrefix   = "source:"
	GenrePrefix    = "genre:"
	TitlePrefix    = "title:"
	UserPrefPrefix = "userpref:"

	// TitleRecordSK is the sort key of every canonical title row.
	TitleRecordSK = "record"

	// indexGenreSegment splits a recommendation-index partition key into
	// its source and genre halves.
	indexGenreSegment = ":genre:"

	// dataAttr holds the entity payload on rows that carry one.
	dataAttr = "data"
)

// Kind identifies what a decoded row is.
type Kind int

const (
	KindUnknown Kind = iota
	KindSource
	KindGenre
	KindTitle
	KindUserPreference
	KindIndexEntry
)

func (k Kind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindGenre:
		return "genre"
	case KindTitle:
		return "title"
	case KindUserPreference:
		return "userpref"
	case KindIndexEntry:
		return "index"
	default:
		return "unknown"
	}
}

// Key constructors. Each is injective for its kind: no two distinct
// entities of the same kind produce the same (PK, SK).

// SourceKey returns the key of a source catalog row. The name lives in the
// sort key so catalog listings can be served from keys alone.
func SourceKey(id ID, name string) store.Key {
	return store.Key{PK: SourcePrefix + string(id), SK: name}
}

// GenreKey returns the key of a genre catalog row.
func GenreKey(id ID, name string) store.Key {
	return store.Key{PK: GenrePrefix + string(id), SK: name}
}

// TitleKey returns the key of the single canonical row for a title.
func TitleKey(id ID) store.Key {
	return store.Key{PK: TitlePrefix + string(id), SK: TitleRecordSK}
}

// UserPartition returns the partition key holding all of one user's
// preference rows.
func UserPartition(userID string) string {
	return UserPrefPrefix + userID
}

// PreferenceKey returns the key of one (user, liked source-or-genre) row.
func PreferenceKey(userID string, dim Dimension, id ID) store.Key {
	return store.Key{PK: UserPartition(userID), SK: string(dim) + ":" + string(id)}
}

// IndexPartition returns the partition key of the inverted-index rows for
// one (source, genre) pair.
func IndexPartition(sourceID, genreID ID) string {
	return SourcePrefix + string(sourceID) + indexGenreSegment + string(genreID)
}

// IndexKey returns the key of one recommendation-index row. Index rows
// carry no payload; their existence encodes the membership.
func IndexKey(sourceID, genreID, titleID ID) store.Key {
	return store.Key{PK: IndexPartition(sourceID, genreID), SK: TitlePrefix + string(titleID)}
}

// EncodeSource encodes a source catalog row.
func EncodeSource(s Source) (store.Key, store.Payload, error) {
	data, err := wrapData(s)
	if err != nil {
		return store.Key{}, nil, fmt.Errorf("encode source %s: %w", s.ID, err)
	}
	return SourceKey(s.ID, s.Name), data, nil
}

// EncodeGenre encodes a genre catalog row.
func EncodeGenre(g Genre) (store.Key, store.Payload, error) {
	data, err := wrapData(g)
	if err != nil {
		return store.Key{}, nil, fmt.Errorf("encode genre %s: %w", g.ID, err)
	}
	return GenreKey(g.ID, g.Name), data, nil
}

// EncodeTitle encodes the canonical row of a title.
func EncodeTitle(t Title) (store.Key, store.Payload, error) {
	data, err := wrapData(t)
	if err != nil {
		return store.Key{}, nil, fmt.Errorf("encode title %s: %w", t.ID, err)
	}
	return TitleKey(t.ID), data, nil
}

// EncodePreference encodes one preference row. Preference rows carry no
// payload; the key is the whole fact.
func EncodePreference(p UserPreference) store.Key {
	return PreferenceKey(p.UserID, p.Dimension, p.RefID)
}

// Decoded is the result of decoding a row. Exactly the field matching Kind
// is set; a row whose partition prefix is not recognized decodes to
// KindUnknown with no error, so callers choose whether to skip or fail.
type Decoded struct {
	Kind       Kind
	Source     *Source
	Genre      *Genre
	Title      *Title
	Preference *UserPreference
	Index      *IndexEntry
}

// Decode maps a stored row back to a typed entity. The key is authoritative
// for identifying fields: ids and names parsed from PK/SK override whatever
// the payload carries.
func Decode(key store.Key, data store.Payload) (Decoded, error) {
	switch {
	case strings.HasPrefix(key.PK, UserPrefPrefix):
		return decodePreference(key)
	case strings.HasPrefix(key.PK, TitlePrefix):
		return decodeTitle(key, data)
	case strings.HasPrefix(key.PK, SourcePrefix):
		if strings.Contains(key.PK, indexGenreSegment) {
			return decodeIndexEntry(key)
		}
		return decodeSource(key, data)
	case strings.HasPrefix(key.PK, GenrePrefix):
		return decodeGenre(key, data)
	default:
		return Decoded{Kind: KindUnknown}, nil
	}
}

func decodePreference(key store.Key) (Decoded, error) {
	userID := strings.TrimPrefix(key.PK, UserPrefPrefix)
	dim, id, ok := strings.Cut(key.SK, ":")
	if !ok || id == "" {
		return Decoded{}, fmt.Errorf("malformed preference sort key %q", key.SK)
	}
	switch Dimension(dim) {
	case DimensionSource, DimensionGenre:
	default:
		return Decoded{}, fmt.Errorf("malformed preference sort key %q", key.SK)
	}
	return Decoded{
		Kind: KindUserPreference,
		Preference: &UserPreference{
			UserID:    userID,
			Dimension: Dimension(dim),
			RefID:     ID(id),
		},
	}, nil
}

func decodeTitle(key store.Key, data store.Payload) (Decoded, error) {
	if key.SK != TitleRecordSK {
		return Decoded{}, fmt.Errorf("unexpected sort key %q on title partition %q", key.SK, key.PK)
	}
	var t Title
	if err := unwrapData(data, &t); err != nil {
		return Decoded{}, fmt.Errorf("decode title %q: %w", key.PK, err)
	}
	t.ID = ID(strings.TrimPrefix(key.PK, TitlePrefix))
	return Decoded{Kind: KindTitle, Title: &t}, nil
}

func decodeIndexEntry(key store.Key) (Decoded, error) {
	rest := strings.TrimPrefix(key.PK, SourcePrefix)
	sourceID, genreID, _ := strings.Cut(rest, indexGenreSegment)
	titleID := strings.TrimPrefix(key.SK, TitlePrefix)
	if titleID == key.SK || titleID == "" {
		return Decoded{}, fmt.Errorf("malformed index sort key %q", key.SK)
	}
	return Decoded{
		Kind: KindIndexEntry,
		Index: &IndexEntry{
			SourceID: ID(sourceID),
			GenreID:  ID(genreID),
			TitleID:  ID(titleID),
		},
	}, nil
}

func decodeSource(key store.Key, data store.Payload) (Decoded, error) {
	var s Source
	if err := unwrapData(data, &s); err != nil {
		return Decoded{}, fmt.Errorf("decode source %q: %w", key.PK, err)
	}
	s.ID = ID(strings.TrimPrefix(key.PK, SourcePrefix))
	s.Name = key.SK
	return Decoded{Kind: KindSource, Source: &s}, nil
}

func decodeGenre(key store.Key, data store.Payload) (Decoded, error) {
	var g Genre
	if err := unwrapData(data, &g); err != nil {
		return Decoded{}, fmt.Errorf("decode genre %q: %w", key.PK, err)
	}
	g.ID = ID(strings.TrimPrefix(key.PK, GenrePrefix))
	g.Name = key.SK
	return Decoded{Kind: KindGenre, Genre: &g}, nil
}

// wrapData marshals an entity under the single "data" attribute, matching
// how every payload-carrying row stores its attributes.
func wrapData(v any) (store.Payload, error) {
	m, err := attributevalue.MarshalMap(v)
	if err != nil {
		return nil, err
	}
	return store.Payload{dataAttr: &types.AttributeValueMemberM{Value: m}}, nil
}

// unwrapData is tolerant of a missing or empty payload: identifying fields
// come from the key, and a row written before enrichment may carry nothing
// else yet.
func unwrapData(data store.Payload, out any) error {
	av, ok := data[dataAttr]
	if !ok {
		return nil
	}
	m, ok := av.(*types.AttributeValueMemberM)
	if !ok {
		return fmt.Errorf("attribute %q is not a map", dataAttr)
	}
	return attributevalue.UnmarshalMap(m.Value, out)
}
