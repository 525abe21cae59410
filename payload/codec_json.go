package payload

import "encoding/json"

// JSONCodec encodes/decodes envelopes as JSON.
type JSONCodec struct{}

func (c *JSONCodec) Encode(env *Envelope) ([]byte, error) {
	return json.Marshal(env)
}

func (c *JSONCodec) Decode(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (c *JSONCodec) Name() string { return CodecNameJSON }
