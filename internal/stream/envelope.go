// Package stream moves title payloads over Kinesis between the fetch side
// and the ingestion side. Each record is a self-describing envelope so
// consumers can trace where a title came from.
package stream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nightjar-tv/nightjar/internal/keyspace"
)

// Header identifies the producer of a record.
type Header struct {
	PublishingComponent string `json:"publishing_component"`
	PublishTimestamp    string `json:"publish_timestamp"`
	PublishCause        string `json:"publish_cause"`
}

// Envelope wraps one title for transit.
type Envelope struct {
	Header  Header         `json:"header"`
	Payload keyspace.Title `json:"payload"`
}

func newEnvelope(component, cause string, title keyspace.Title, now time.Time) Envelope {
	return Envelope{
		Header: Header{
			PublishingComponent: component,
			PublishTimestamp:    now.UTC().Format(time.RFC3339),
			PublishCause:        cause,
		},
		Payload: title,
	}
}

func decodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode stream envelope: %w", err)
	}
	return env, nil
}
