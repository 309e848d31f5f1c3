// Package content provides a content-type codec layer for message bodies.
//
// Mailboxer stores message and notification bodies as plain text strings.
// This package provides a convention for encoding structured or binary
// content into text-safe bodies and decoding them back.
//
// The content package does not touch any mailboxer interfaces. Callers
// encode before building a SendRequest or NotifyRequest and decode after
// loading a payload. Bodies remain text-first; this package is an opt-in
// layer on top.
//
// # Codec Interface
//
// A [Codec] converts between raw bytes and a text-safe string:
//
//   - Text-safe formats (JSON, XML) pass through unchanged.
//   - Binary formats (protobuf, msgpack) are base64-encoded for storage.
//
// The application handles serialization (struct to bytes) separately.
// The codec handles only the text-encoding concern.
//
// # Usage
//
// Sending a structured notification:
//
//	data, _ := json.Marshal(orderPlaced)
//	body, _ := content.JSON.Encode(data)
//	service.Notify(ctx, recipients, mailboxer.NotifyRequest{
//	    Subject: "Order placed",
//	    Body:    body,
//	    Code:    "application/json;schema=order.placed/v2",
//	})
//
// Reading it back, carrying the content type in the notification code:
//
//	payload, _ := receipt.Payload(ctx)
//	raw, _ := content.Decode(registry, payload.NotificationCode, payload.Body)
//	var placed OrderPlaced
//	json.Unmarshal(raw, &placed)
package content

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Sentinel errors.
var (
	// ErrUnsupportedContentType is returned when no codec is registered for a content type.
	ErrUnsupportedContentType = errors.New("content: unsupported content type")

	// ErrEncoding is returned when a codec fails to encode data.
	ErrEncoding = errors.New("content: encoding failed")

	// ErrDecoding is returned when a codec fails to decode a body.
	ErrDecoding = errors.New("content: decoding failed")
)

// Codec converts between raw bytes and a text-safe string representation.
//
// Implementations handle a specific content type. Text-safe formats (JSON,
// XML) typically pass through unchanged. Binary formats (protobuf, msgpack)
// use base64 encoding.
type Codec interface {
	// ContentType returns the MIME type this codec handles.
	ContentType() string

	// Encode converts raw bytes to a text-safe string for storage in a body.
	Encode(data []byte) (string, error)

	// Decode converts a text body back to the original raw bytes.
	Decode(body string) ([]byte, error)
}

// Registry maps content types to codecs.
// It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	codecs map[string]Codec
}

// NewRegistry creates a registry pre-loaded with the given codecs.
func NewRegistry(codecs ...Codec) *Registry {
	r := &Registry{
		codecs: make(map[string]Codec, len(codecs)),
	}
	for _, c := range codecs {
		r.codecs[c.ContentType()] = c
	}
	return r
}

// Register adds a codec to the registry. If a codec for the same content
// type already exists, it is replaced.
func (r *Registry) Register(c Codec) {
	r.mu.Lock()
	r.codecs[c.ContentType()] = c
	r.mu.Unlock()
}

// Lookup returns the codec for the given content type.
// Returns false if no codec is registered for the content type.
func (r *Registry) Lookup(contentType string) (Codec, bool) {
	r.mu.RLock()
	c, ok := r.codecs[contentType]
	r.mu.RUnlock()
	return c, ok
}

// Encode looks up the codec for the content type and encodes raw bytes
// into a text-safe body. Parameters after a ";" in the content type are
// ignored for codec lookup.
//
// An empty content type is the plain-text fallback: the data is stored
// as-is.
func Encode(registry *Registry, contentType string, data []byte) (string, error) {
	ct := baseContentType(contentType)
	if ct == "" {
		return string(data), nil
	}

	codec, ok := registry.Lookup(ct)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedContentType, ct)
	}

	body, err := codec.Encode(data)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEncoding, err)
	}
	return body, nil
}

// Decode looks up the codec for the content type and decodes the body to
// raw bytes. Parameters after a ";" in the content type (such as a schema
// identifier) are ignored for codec lookup.
//
// An empty content type is the plain-text fallback: the body is returned
// as raw bytes unchanged.
func Decode(registry *Registry, contentType, body string) ([]byte, error) {
	ct := baseContentType(contentType)
	if ct == "" {
		return []byte(body), nil
	}

	codec, ok := registry.Lookup(ct)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedContentType, ct)
	}

	data, err := codec.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecoding, err)
	}
	return data, nil
}

// baseContentType strips ";"-separated parameters from a content type.
func baseContentType(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.TrimSpace(contentType)
}
