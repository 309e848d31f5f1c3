// Package cached puts a read-through disk cache in front of a blob
// attachment store. Inbox views tend to re-open the same attachment
// shortly after delivery, so repeat loads are served from local disk
// instead of another round trip to object storage.
package cached

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/full-stack-biz/mailboxer/store"
)

// Store caches attachment bodies under a single directory, keyed by a
// digest of the backend URI. Uploads and deletes pass straight through;
// only Load is cached.
type Store struct {
	backend store.AttachmentFileStore
	dir     string
	budget  int64
	ttl     time.Duration
	logger  *slog.Logger

	// mu guards used, the byte count of promoted entries.
	mu   sync.Mutex
	used int64
}

var _ store.AttachmentFileStore = (*Store)(nil)

// New wraps backend with a disk cache. Stale entries left over from a
// previous run are swept out before the store is returned.
func New(backend store.AttachmentFileStore, opts ...Option) (*Store, error) {
	o := newOptions(opts...)

	dir := filepath.Join(o.dir, "mailboxer-attachments")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	s := &Store{
		backend: backend,
		dir:     dir,
		budget:  o.maxBytes,
		ttl:     o.ttl,
		logger:  o.logger,
	}
	s.used = s.sweep()
	return s, nil
}

// Upload stores content in the backend. The body is cached only when
// it is first loaded back.
func (s *Store) Upload(ctx context.Context, filename, contentType string, content io.Reader) (string, error) {
	return s.backend.Upload(ctx, filename, contentType, content)
}

// Load returns the attachment body, from disk when a fresh copy
// exists, otherwise from the backend while filling the cache.
func (s *Store) Load(ctx context.Context, uri string) (io.ReadCloser, error) {
	path := s.entryPath(uri)
	if f := s.openFresh(path); f != nil {
		s.logger.Debug("attachment cache hit", "uri", uri)
		return f, nil
	}

	src, err := s.backend.Load(ctx, uri)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(s.dir, "fill-*")
	if err != nil {
		// Serve uncached rather than failing the load.
		s.logger.Warn("attachment cache unavailable", "error", err)
		return src, nil
	}
	return &fillReader{src: src, tmp: tmp, dest: path, store: s}, nil
}

// Delete drops any cached copy, then deletes from the backend.
func (s *Store) Delete(ctx context.Context, uri string) error {
	path := s.entryPath(uri)
	if info, err := os.Stat(path); err == nil {
		s.discard(path, info.Size())
	}
	return s.backend.Delete(ctx, uri)
}

func (s *Store) entryPath(uri string) string {
	sum := sha256.Sum256([]byte(uri))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:]))
}

// openFresh returns an open handle on a live cache entry, or nil on a
// miss. A stale entry is discarded so the caller refills it.
func (s *Store) openFresh(path string) *os.File {
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	if s.ttl > 0 && time.Since(info.ModTime()) > s.ttl {
		s.discard(path, info.Size())
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	// Touching the mtime keeps hot entries from aging out.
	now := time.Now()
	_ = os.Chtimes(path, now, now)
	return f
}

func (s *Store) discard(path string, size int64) {
	if err := os.Remove(path); err == nil {
		s.account(-size)
	}
}

func (s *Store) account(delta int64) {
	s.mu.Lock()
	s.used += delta
	if s.used < 0 {
		s.used = 0
	}
	s.mu.Unlock()
}

// promote moves a filled temp file to its cache slot, evicting the
// oldest entries first when the budget would be exceeded. Bodies
// larger than the whole budget are never cached.
func (s *Store) promote(tmp, dest string, size int64) {
	if size > s.budget {
		os.Remove(tmp)
		return
	}
	s.makeRoom(size)
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		s.logger.Warn("attachment cache fill failed", "error", err)
		return
	}
	s.account(size)
	s.logger.Debug("attachment cached", "path", dest, "size", size)
}

func (s *Store) makeRoom(need int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.used+need <= s.budget {
		return
	}

	type entry struct {
		path string
		size int64
		mod  time.Time
	}
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn("attachment cache eviction failed", "error", err)
		return
	}
	var entries []entry
	for _, de := range dirents {
		// In-flight fills are not promoted yet and are not evictable.
		if strings.HasPrefix(de.Name(), "fill-") {
			continue
		}
		info, err := de.Info()
		if err != nil || info.IsDir() {
			continue
		}
		entries = append(entries, entry{
			path: filepath.Join(s.dir, de.Name()),
			size: info.Size(),
			mod:  info.ModTime(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].mod.Before(entries[j].mod) })

	for _, e := range entries {
		if s.used+need <= s.budget {
			break
		}
		if err := os.Remove(e.path); err == nil {
			s.used -= e.size
			if s.used < 0 {
				s.used = 0
			}
		}
	}
}

// sweep removes expired entries and returns the bytes still cached.
func (s *Store) sweep() int64 {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn("attachment cache sweep failed", "error", err)
		return 0
	}
	var live int64
	now := time.Now()
	for _, de := range dirents {
		// Fills abandoned by a previous run are garbage.
		if strings.HasPrefix(de.Name(), "fill-") {
			os.Remove(filepath.Join(s.dir, de.Name()))
			continue
		}
		info, err := de.Info()
		if err != nil || info.IsDir() {
			continue
		}
		if s.ttl > 0 && now.Sub(info.ModTime()) > s.ttl {
			os.Remove(filepath.Join(s.dir, de.Name()))
			continue
		}
		live += info.Size()
	}
	return live
}

// fillReader streams the backend body to the caller while copying it
// into a temp file. The copy is promoted into the cache on Close; a
// failed copy is dropped and the caller never notices.
type fillReader struct {
	src    io.ReadCloser
	tmp    *os.File
	dest   string
	store  *Store
	n        int64
	complete bool
	broken   bool
	done     bool
}

func (r *fillReader) Read(p []byte) (int, error) {
	n, err := r.src.Read(p)
	if n > 0 && !r.broken {
		if _, werr := r.tmp.Write(p[:n]); werr != nil {
			r.broken = true
		}
		r.n += int64(n)
	}
	switch err {
	case nil:
	case io.EOF:
		r.complete = true
	default:
		r.broken = true
	}
	return n, err
}

func (r *fillReader) Close() error {
	if r.done {
		return nil
	}
	r.done = true

	// A body the caller abandoned mid-read would cache truncated.
	srcErr := r.src.Close()
	if err := r.tmp.Close(); err != nil || r.broken || !r.complete {
		os.Remove(r.tmp.Name())
		return srcErr
	}
	r.store.promote(r.tmp.Name(), r.dest, r.n)
	return srcErr
}
