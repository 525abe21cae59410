// Package payload defines the envelope carried by work items and
// execution results, plus pluggable codecs for it.
package payload

import "time"

// Envelope is the structured body stored in an item's payload and in an
// execution's result data. Stage names the pipeline step that produced
// it, ContentType describes the Body's shape for consumers.
type Envelope struct {
	Stage       string         `json:"stage" msgpack:"stage"`
	ContentType string         `json:"content_type" msgpack:"content_type"`
	Body        map[string]any `json:"body" msgpack:"body"`
	ProducedAt  time.Time      `json:"produced_at" msgpack:"produced_at"`
}

// NewEnvelope builds an envelope stamped with the current UTC time.
func NewEnvelope(stage, contentType string, body map[string]any) *Envelope {
	return &Envelope{
		Stage:       stage,
		ContentType: contentType,
		Body:        body,
		ProducedAt:  time.Now().UTC(),
	}
}
