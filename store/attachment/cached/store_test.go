package cached

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"
)

// mapBackend is an in-memory attachment backend that counts loads.
type mapBackend struct {
	blobs map[string][]byte
	loads int
}

func newMapBackend() *mapBackend {
	return &mapBackend{blobs: make(map[string][]byte)}
}

func (b *mapBackend) Upload(_ context.Context, filename, _ string, content io.Reader) (string, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return "", err
	}
	uri := "mem://" + filename
	b.blobs[uri] = data
	return uri, nil
}

func (b *mapBackend) Load(_ context.Context, uri string) (io.ReadCloser, error) {
	data, ok := b.blobs[uri]
	if !ok {
		return nil, fmt.Errorf("no blob at %s", uri)
	}
	b.loads++
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *mapBackend) Delete(_ context.Context, uri string) error {
	delete(b.blobs, uri)
	return nil
}

func readAndClose(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := rc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return string(data)
}

func TestStore(t *testing.T) {
	ctx := context.Background()

	newStore := func(t *testing.T, backend *mapBackend, opts ...Option) *Store {
		t.Helper()
		opts = append([]Option{WithCacheDir(t.TempDir())}, opts...)
		s, err := New(backend, opts...)
		if err != nil {
			t.Fatalf("new cached store: %v", err)
		}
		return s
	}

	t.Run("second load is served from disk", func(t *testing.T) {
		backend := newMapBackend()
		s := newStore(t, backend)

		uri, err := s.Upload(ctx, "report.txt", "text/plain", strings.NewReader("quarterly numbers"))
		if err != nil {
			t.Fatalf("upload: %v", err)
		}

		for i := 0; i < 2; i++ {
			rc, err := s.Load(ctx, uri)
			if err != nil {
				t.Fatalf("load %d: %v", i, err)
			}
			if got := readAndClose(t, rc); got != "quarterly numbers" {
				t.Fatalf("load %d = %q, want %q", i, got, "quarterly numbers")
			}
		}
		if backend.loads != 1 {
			t.Errorf("backend loads = %d, want 1", backend.loads)
		}
	})

	t.Run("abandoned read is not cached", func(t *testing.T) {
		backend := newMapBackend()
		s := newStore(t, backend)

		uri, err := s.Upload(ctx, "big.bin", "application/octet-stream", strings.NewReader(strings.Repeat("x", 1024)))
		if err != nil {
			t.Fatalf("upload: %v", err)
		}

		rc, err := s.Load(ctx, uri)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if _, err := rc.Read(make([]byte, 16)); err != nil {
			t.Fatalf("partial read: %v", err)
		}
		if err := rc.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}

		rc, err = s.Load(ctx, uri)
		if err != nil {
			t.Fatalf("reload: %v", err)
		}
		if got := readAndClose(t, rc); len(got) != 1024 {
			t.Fatalf("reload returned %d bytes, want 1024", len(got))
		}
		if backend.loads != 2 {
			t.Errorf("backend loads = %d, want 2 (truncated copy must not be cached)", backend.loads)
		}
	})

	t.Run("delete drops the cached copy", func(t *testing.T) {
		backend := newMapBackend()
		s := newStore(t, backend)

		uri, err := s.Upload(ctx, "note.txt", "text/plain", strings.NewReader("gone soon"))
		if err != nil {
			t.Fatalf("upload: %v", err)
		}
		rc, err := s.Load(ctx, uri)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		readAndClose(t, rc)

		if err := s.Delete(ctx, uri); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, err := s.Load(ctx, uri); err == nil {
			t.Error("load after delete should fail, not serve a stale cache entry")
		}
	})

	t.Run("eviction keeps the cache within budget", func(t *testing.T) {
		backend := newMapBackend()
		s := newStore(t, backend, WithMaxBytes(64), WithTTL(time.Hour))

		var uris []string
		for i := 0; i < 3; i++ {
			uri, err := s.Upload(ctx, fmt.Sprintf("part-%d", i), "application/octet-stream",
				strings.NewReader(strings.Repeat("y", 40)))
			if err != nil {
				t.Fatalf("upload %d: %v", i, err)
			}
			uris = append(uris, uri)
			rc, err := s.Load(ctx, uri)
			if err != nil {
				t.Fatalf("load %d: %v", i, err)
			}
			readAndClose(t, rc)
		}

		s.mu.Lock()
		used := s.used
		s.mu.Unlock()
		if used > 64 {
			t.Errorf("cache holds %d bytes, budget is 64", used)
		}

		// Every URI still loads correctly, cached or not.
		for i, uri := range uris {
			rc, err := s.Load(ctx, uri)
			if err != nil {
				t.Fatalf("reload %d: %v", i, err)
			}
			if got := readAndClose(t, rc); len(got) != 40 {
				t.Errorf("reload %d returned %d bytes, want 40", i, len(got))
			}
		}
	})
}
