package content

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecode(t *testing.T) {
	registry := DefaultRegistry()

	t.Run("text codecs pass through", func(t *testing.T) {
		data := []byte(`{"order":42}`)
		body, err := Encode(registry, "application/json", data)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if body != string(data) {
			t.Errorf("JSON encode changed the body: %q", body)
		}

		out, err := Decode(registry, "application/json", body)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !bytes.Equal(out, data) {
			t.Errorf("round trip produced %q, want %q", out, data)
		}
	})

	t.Run("binary codecs survive arbitrary bytes", func(t *testing.T) {
		data := []byte{0x00, 0xff, 0x10, 0x80, 0x7f}
		body, err := Encode(registry, "application/octet-stream", data)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if bytes.ContainsRune([]byte(body), 0) {
			t.Error("encoded body must be text-safe")
		}

		out, err := Decode(registry, "application/octet-stream", body)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !bytes.Equal(out, data) {
			t.Errorf("round trip produced %v, want %v", out, data)
		}
	})

	t.Run("content type parameters are ignored for lookup", func(t *testing.T) {
		data := []byte(`{"v":1}`)
		body, err := Encode(registry, "application/json;schema=order.placed/v2", data)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		out, err := Decode(registry, "application/json; charset=utf-8", body)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !bytes.Equal(out, data) {
			t.Errorf("round trip produced %q, want %q", out, data)
		}
	})

	t.Run("empty content type is the plain-text fallback", func(t *testing.T) {
		body, err := Encode(registry, "", []byte("as-is"))
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if body != "as-is" {
			t.Errorf("fallback encode = %q, want %q", body, "as-is")
		}
		out, err := Decode(registry, "", body)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if string(out) != "as-is" {
			t.Errorf("fallback decode = %q, want %q", out, "as-is")
		}
	})

	t.Run("unknown content type fails", func(t *testing.T) {
		if _, err := Encode(registry, "application/x-custom", []byte("x")); !errors.Is(err, ErrUnsupportedContentType) {
			t.Errorf("expected ErrUnsupportedContentType, got %v", err)
		}
		if _, err := Decode(registry, "application/x-custom", "x"); !errors.Is(err, ErrUnsupportedContentType) {
			t.Errorf("expected ErrUnsupportedContentType, got %v", err)
		}
	})

	t.Run("corrupt base64 fails decoding", func(t *testing.T) {
		_, err := Decode(registry, "application/msgpack", "not base64 at all!!!")
		if !errors.Is(err, ErrDecoding) {
			t.Errorf("expected ErrDecoding, got %v", err)
		}
	})
}

func TestRegistry(t *testing.T) {
	t.Run("lookup misses on empty registry", func(t *testing.T) {
		r := NewRegistry()
		if _, ok := r.Lookup("application/json"); ok {
			t.Error("empty registry should not resolve any codec")
		}
	})

	t.Run("register replaces existing codec", func(t *testing.T) {
		r := NewRegistry(JSON)
		r.Register(upperCodec{})

		body, err := Encode(r, "application/json", []byte("abc"))
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if body != "ABC" {
			t.Errorf("replacement codec not used, got %q", body)
		}
	})
}

// upperCodec is a stand-in codec registered over application/json in tests.
type upperCodec struct{}

func (upperCodec) ContentType() string { return "application/json" }

func (upperCodec) Encode(data []byte) (string, error) {
	return string(bytes.ToUpper(data)), nil
}

func (upperCodec) Decode(body string) ([]byte, error) {
	return bytes.ToLower([]byte(body)), nil
}
