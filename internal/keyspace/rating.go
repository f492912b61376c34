package keyspace

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ID is an opaque entity identifier. The upstream catalog API emits ids as
// JSON numbers while the rest of the system treats them as strings, so ID
// accepts either on the wire and always renders as a string.
type ID string

func (id ID) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(string(id))), nil
}

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if string(b) == "null" {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		s, err := strconv.Unquote(string(b))
		if err != nil {
			return fmt.Errorf("unquote id: %w", err)
		}
		*id = ID(s)
		return nil
	}
	// Bare number token; keep its exact text.
	*id = ID(b)
	return nil
}

// IDStrings converts a list of ids to plain strings.
func IDStrings(ids []ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

// Rating is a decimal rating kept as its exact decimal text. The store's
// number type is a decimal string, so carrying the text end to end means
// repeated read-modify-write cycles never drift the value the way binary
// floats would. Conversion to float64 happens only at the HTTP boundary.
type Rating string

// RatingFromFloat renders a float with the shortest exact decimal text.
func RatingFromFloat(f float64) Rating {
	return Rating(strconv.FormatFloat(f, 'f', -1, 64))
}

// Float64 converts for boundary use. An unset rating is 0.
func (r Rating) Float64() float64 {
	if r == "" {
		return 0
	}
	f, err := strconv.ParseFloat(string(r), 64)
	if err != nil {
		return 0
	}
	return f
}

// IsSet reports whether a rating was ever recorded.
func (r Rating) IsSet() bool {
	return r != ""
}

func (r Rating) MarshalJSON() ([]byte, error) {
	if r == "" {
		return []byte("null"), nil
	}
	if _, err := strconv.ParseFloat(string(r), 64); err != nil {
		return nil, fmt.Errorf("rating %q is not numeric", string(r))
	}
	return []byte(r), nil
}

func (r *Rating) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if string(b) == "null" {
		*r = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		s, err := strconv.Unquote(string(b))
		if err != nil {
			return fmt.Errorf("unquote rating: %w", err)
		}
		b = []byte(s)
	}
	if _, err := strconv.ParseFloat(string(b), 64); err != nil {
		return fmt.Errorf("rating %q is not numeric", string(b))
	}
	*r = Rating(b)
	return nil
}

// MarshalDynamoDBAttributeValue stores the rating as the store's native
// decimal number type, preserving the exact text.
func (r Rating) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	if r == "" {
		return &types.AttributeValueMemberNULL{Value: true}, nil
	}
	if _, err := strconv.ParseFloat(string(r), 64); err != nil {
		return nil, fmt.Errorf("rating %q is not numeric", string(r))
	}
	return &types.AttributeValueMemberN{Value: string(r)}, nil
}

func (r *Rating) UnmarshalDynamoDBAttributeValue(av types.AttributeValue) error {
	switch v := av.(type) {
	case *types.AttributeValueMemberN:
		*r = Rating(v.Value)
	case *types.AttributeValueMemberS:
		*r = Rating(v.Value)
	case *types.AttributeValueMemberNULL:
		*r = ""
	default:
		return fmt.Errorf("cannot decode rating from %T", av)
	}
	return nil
}
