package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/fxamacker/cbor/v2"
	"go.uber.org/zap"

	"github.com/conduit-lang/datarest/internal/rest/etag"
)

// MiddlewareConfig holds configuration for the collection cache middleware
type MiddlewareConfig struct {
	Cache Cache
	// TTL is the time-to-live for cached responses
	TTL time.Duration
	// Resource names the resource a request addresses. Requests it returns
	// "" for are not cached.
	Resource func(r *http.Request) string
	Logger   *zap.Logger
}

// cachedResponse is the stored form of a rendered response
type cachedResponse struct {
	Status int         `cbor:"1,keyasint"`
	Header http.Header `cbor:"2,keyasint"`
	Body   []byte      `cbor:"3,keyasint"`
	ETag   string      `cbor:"4,keyasint"`
}

// Middleware caches successful GET responses per resource. Responses carry
// a weak ETag computed over the body and honour If-None-Match. Other methods
// pass through.
func Middleware(config MiddlewareConfig) func(http.Handler) http.Handler {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet || config.Cache == nil {
				next.ServeHTTP(w, r)
				return
			}
			resource := config.Resource(r)
			if resource == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			generation, err := Generation(ctx, config.Cache, resource)
			if err != nil {
				logger.Warn("cache read failed", zap.String("resource", resource), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			key := Key(resource, r) + "@" + generation

			data, err := config.Cache.Get(ctx, key)
			if err == nil {
				var cached cachedResponse
				if err := cbor.Unmarshal(data, &cached); err == nil {
					serve(w, r, cached, "HIT")
					return
				}
				logger.Warn("discarding undecodable cache entry", zap.String("key", key))
			} else if !IsCacheMiss(err) {
				logger.Warn("cache read failed", zap.String("resource", resource), zap.Error(err))
			}

			rec := &recorder{header: make(http.Header), status: http.StatusOK}
			next.ServeHTTP(rec, r)

			cached := cachedResponse{
				Status: rec.status,
				Header: rec.header,
				Body:   rec.body.Bytes(),
			}
			if rec.status != http.StatusOK {
				serve(w, r, cached, "")
				return
			}

			cached.ETag = WeakETag(cached.Body).String()
			if data, err := cbor.Marshal(cached); err == nil {
				if err := config.Cache.Set(ctx, key, data, config.TTL); err != nil {
					logger.Warn("cache write failed", zap.String("resource", resource), zap.Error(err))
				}
			}
			serve(w, r, cached, "MISS")
		})
	}
}

// WeakETag returns a weak validator for a rendered body
func WeakETag(body []byte) etag.ETag {
	hash := sha256.Sum256(body)
	return etag.Weak(hex.EncodeToString(hash[:16]))
}

func serve(w http.ResponseWriter, r *http.Request, cached cachedResponse, state string) {
	for key, values := range cached.Header {
		w.Header()[key] = append([]string(nil), values...)
	}
	if state != "" {
		w.Header().Set("X-Cache", state)
	}
	if cached.ETag != "" {
		w.Header().Set("ETag", cached.ETag)

		current := etag.FromHeader(cached.ETag)
		if etag.MatchesAny(etag.Parse(r.Header.Get("If-None-Match")), current, true) {
			w.Header().Del("Content-Type")
			w.Header().Del("Content-Length")
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	w.WriteHeader(cached.Status)
	w.Write(cached.Body)
}

// recorder buffers a response so its ETag can be sent before the body
type recorder struct {
	header      http.Header
	status      int
	body        bytes.Buffer
	wroteHeader bool
}

func (r *recorder) Header() http.Header {
	return r.header
}

func (r *recorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
}

func (r *recorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.body.Write(b)
}
