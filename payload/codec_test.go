package payload

import (
	"testing"
	"time"
)

func TestGetCodec(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want string
	}{
		{"json", CodecNameJSON},
		{"msgpack", CodecNameMsgpack},
		{"", CodecNameJSON},
		{"protobuf", CodecNameJSON}, // unknown falls back to JSON
	}

	for _, tt := range tests {
		if got := GetCodec(tt.name).Name(); got != tt.want {
			t.Errorf("GetCodec(%q).Name() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestCodecRoundTrip(t *testing.T) {
	t.Parallel()

	env := NewEnvelope("extract", "application/vnd.docqueue.fields", map[string]any{
		"document_id": "doc-42",
		"language":    "en",
	})

	for _, codec := range []Codec{&JSONCodec{}, &MsgpackCodec{}} {
		data, err := codec.Encode(env)
		if err != nil {
			t.Fatalf("%s encode: %v", codec.Name(), err)
		}

		got, err := codec.Decode(data)
		if err != nil {
			t.Fatalf("%s decode: %v", codec.Name(), err)
		}
		if got.Stage != "extract" {
			t.Errorf("%s: stage = %q", codec.Name(), got.Stage)
		}
		if got.Body["document_id"] != "doc-42" {
			t.Errorf("%s: body lost document_id: %v", codec.Name(), got.Body)
		}
		if got.ProducedAt.IsZero() || got.ProducedAt.After(time.Now().Add(time.Minute)) {
			t.Errorf("%s: bad produced_at %v", codec.Name(), got.ProducedAt)
		}
	}
}

func TestCodecDecodeGarbage(t *testing.T) {
	t.Parallel()

	for _, codec := range []Codec{&JSONCodec{}, &MsgpackCodec{}} {
		if _, err := codec.Decode([]byte("\x00not an envelope")); err == nil {
			t.Errorf("%s: expected decode error", codec.Name())
		}
	}
}
