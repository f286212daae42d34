package tts

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Cache stores synthesized audio keyed by provider, voice, encoding and text.
type Cache struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger
}

// OpenCache opens a badger-backed cache at path. An empty path keeps the
// cache in memory. A zero ttl keeps entries until evicted by size.
func OpenCache(path string, ttl time.Duration, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "tts.cache")

	opts := badger.DefaultOptions(path).WithLogger(badgerLogger{logger})
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("tts: open cache: %w", err)
	}
	return &Cache{db: db, ttl: ttl, logger: logger}, nil
}

// CacheKey derives the storage key for a synthesis request.
func CacheKey(provider, voiceID string, enc Encoding, text string) []byte {
	h := sha256.New()
	for _, part := range []string{provider, voiceID, string(enc), text} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return []byte("tts/" + hex.EncodeToString(h.Sum(nil)))
}

// Get returns the cached audio and its encoding, ok=false on a miss.
func (c *Cache) Get(key []byte) (audio []byte, enc Encoding, ok bool, err error) {
	var val []byte
	err = c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, "", false, nil
	}
	if err != nil {
		return nil, "", false, fmt.Errorf("tts: cache get: %w", err)
	}

	sep := bytes.IndexByte(val, 0)
	if sep < 0 {
		return nil, "", false, fmt.Errorf("tts: cache get: corrupt entry")
	}
	return val[sep+1:], Encoding(val[:sep]), true, nil
}

// Put stores audio under key.
func (c *Cache) Put(key, audio []byte, enc Encoding) error {
	val := make([]byte, 0, len(enc)+1+len(audio))
	val = append(val, enc...)
	val = append(val, 0)
	val = append(val, audio...)

	err := c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(key, val)
		if c.ttl > 0 {
			e = e.WithTTL(c.ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("tts: cache put: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// badgerLogger routes badger's printf-style logging into slog.
type badgerLogger struct{ l *slog.Logger }

func (b badgerLogger) Errorf(f string, args ...interface{}) {
	b.l.Error(fmt.Sprintf(f, args...))
}

func (b badgerLogger) Warningf(f string, args ...interface{}) {
	b.l.Warn(fmt.Sprintf(f, args...))
}

func (b badgerLogger) Infof(f string, args ...interface{}) {
	b.l.Debug(fmt.Sprintf(f, args...))
}

func (b badgerLogger) Debugf(f string, args ...interface{}) {
	b.l.Debug(fmt.Sprintf(f, args...))
}

// CachedProvider serves repeated requests from a Cache and records
// complete streams from the wrapped provider.
type CachedProvider struct {
	inner   Provider
	cache   *Cache
	voiceID string
	enc     Encoding
	logger  *slog.Logger
}

// NewCachedProvider wraps p. defaultVoice and enc must match p's
// configuration so keys for "" and the explicit voice coincide.
func NewCachedProvider(p Provider, cache *Cache, defaultVoice string, enc Encoding) *CachedProvider {
	return &CachedProvider{
		inner:   p,
		cache:   cache,
		voiceID: defaultVoice,
		enc:     enc,
		logger:  cache.logger,
	}
}

// Name returns the wrapped provider's name.
func (c *CachedProvider) Name() string {
	return c.inner.Name()
}

func (c *CachedProvider) key(text, voiceID string) []byte {
	if voiceID == "" {
		voiceID = c.voiceID
	}
	return CacheKey(c.inner.Name(), voiceID, c.enc, text)
}

func (c *CachedProvider) lookup(key []byte) ([]byte, AudioFormat, bool) {
	audio, enc, ok, err := c.cache.Get(key)
	if err != nil {
		c.logger.Warn("cache lookup failed", "error", err)
		return nil, AudioFormat{}, false
	}
	if !ok {
		return nil, AudioFormat{}, false
	}
	return audio, enc.Format(), true
}

// Synthesize returns cached audio or synthesizes and stores it.
func (c *CachedProvider) Synthesize(ctx context.Context, text, voiceID string) (*AudioResult, error) {
	key := c.key(text, voiceID)
	if audio, format, ok := c.lookup(key); ok {
		dur, _ := Duration(audio, format)
		return &AudioResult{Audio: audio, Format: format, Duration: dur, CharCount: len(text)}, nil
	}

	res, err := c.inner.Synthesize(ctx, text, voiceID)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Put(key, res.Audio, res.Format.Encoding); err != nil {
		c.logger.Warn("cache store failed", "error", err)
	}
	return res, nil
}

// Stream returns cached audio as a stream, or tees the wrapped stream into
// the cache once it completes without error.
func (c *CachedProvider) Stream(ctx context.Context, text, voiceID string) (AudioStream, error) {
	key := c.key(text, voiceID)
	if audio, format, ok := c.lookup(key); ok {
		c.logger.Debug("cache hit", "chars", len(text))
		return newBufferStream(audio, format), nil
	}

	s, err := c.inner.Stream(ctx, text, voiceID)
	if err != nil {
		return nil, err
	}
	return &teeStream{AudioStream: s, owner: c, key: key}, nil
}

// Close closes the wrapped provider. The cache is closed by its owner.
func (c *CachedProvider) Close() error {
	return c.inner.Close()
}

type teeStream struct {
	AudioStream
	owner *CachedProvider
	key   []byte
	buf   bytes.Buffer
	done  bool
}

func (t *teeStream) Read() ([]byte, error) {
	chunk, err := t.AudioStream.Read()
	if err != nil || t.done {
		return chunk, err
	}
	if chunk == nil {
		t.done = true
		if err := t.owner.cache.Put(t.key, t.buf.Bytes(), t.Format().Encoding); err != nil {
			t.owner.logger.Warn("cache store failed", "error", err)
		}
		return nil, nil
	}
	t.buf.Write(chunk)
	return chunk, nil
}

var _ Provider = (*CachedProvider)(nil)
