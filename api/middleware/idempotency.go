package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/loyalty-backend/api/responses"
	pkgerrors "github.com/angelmondragon/loyalty-backend/pkg/errors"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/loyalty-backend/pkg/redis"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"
	maxIdempotencyKey = 128

	// inFlightTTL bounds a reservation whose request never completes.
	inFlightTTL = 2 * time.Minute

	replayTTL = 24 * time.Hour
	// A redemption code may be re-requested by a till that lost the first
	// response, so redemptions are remembered for a week.
	redeemReplayTTL = 7 * 24 * time.Hour
)

// idempotentRoutes lists the point-moving POST routes by their chi pattern.
var idempotentRoutes = map[string]time.Duration{
	"/api/v1/points/award":                   replayTTL,
	"/api/v1/points/adjust":                  replayTTL,
	"/api/v1/redemptions/{redemptionId}/use": replayTTL,
	"/api/v1/redemptions":                    redeemReplayTTL,
}

type storedResponse struct {
	InFlight    bool   `json:"in_flight,omitempty"`
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
	BodyHash    string `json:"body_hash"`
}

// Idempotency makes the point-moving routes safe to resend: a repeated
// Idempotency-Key with the same body gets the first response back, a repeated
// key with a different body is a 409. The key is reserved before the handler
// runs, so a resend that arrives mid-flight is a 409 rather than a second
// execution. 5xx responses release the key so the client may retry.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := routeTTL(r.Method, routePattern(r))
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			id := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			switch {
			case id == "":
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			case len(id) > maxIdempotencyKey:
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key is too long"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			sum := sha256.Sum256(body)
			bodyHash := hex.EncodeToString(sum[:])
			key := store.IdempotencyKey(RestaurantIDFromContext(ctx)+"|"+r.Method+"|"+r.URL.Path, id)

			marker, _ := json.Marshal(storedResponse{InFlight: true, BodyHash: bodyHash})
			reserved, err := store.SetNX(ctx, key, string(marker), inFlightTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !reserved {
				answerExisting(w, r, store, logg, key, bodyHash)
				return
			}

			capture := &responseCapture{ResponseWriter: w, status: http.StatusOK}
			completed := false
			defer func() {
				if !completed {
					// panicked or failed: let the client retry under the same key
					if err := store.Del(context.WithoutCancel(ctx), key); err != nil {
						logg.Error(ctx, "release idempotency key", err)
					}
				}
			}()

			next.ServeHTTP(capture, r)
			if capture.status >= http.StatusInternalServerError {
				return
			}

			payload, err := json.Marshal(storedResponse{
				Status:      capture.status,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
				BodyHash:    bodyHash,
			})
			if err == nil {
				err = store.Set(context.WithoutCancel(ctx), key, string(payload), ttl)
			}
			if err != nil {
				// the response already went out; the marker expires and a
				// later resend re-executes
				logg.Error(ctx, "persist idempotency record", err)
			}
			completed = true
		})
	}
}

// answerExisting handles a key someone else already holds: a finished record
// is replayed, a reservation still in flight is a conflict.
func answerExisting(w http.ResponseWriter, r *http.Request, store pkgredis.IdempotencyStore, logg *logger.Logger, key, bodyHash string) {
	ctx := r.Context()
	raw, err := store.Get(ctx, key)
	switch {
	case pkgredis.IsNil(err):
		// released between SetNX and Get; the first attempt failed with a 5xx
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this Idempotency-Key is still in progress"))
		return
	case err != nil:
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
		return
	}

	var prior storedResponse
	if err := json.Unmarshal([]byte(raw), &prior); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	switch {
	case prior.BodyHash != bodyHash:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case prior.InFlight:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this Idempotency-Key is still in progress"))
	default:
		prior.replay(w)
	}
}

func (s storedResponse) replay(w http.ResponseWriter) {
	if s.ContentType != "" {
		w.Header().Set("Content-Type", s.ContentType)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(s.Status)
	_, _ = w.Write(s.Body)
}

// routePattern is the matched chi pattern. Group middleware runs before the
// subrouter resolves, leaving a wildcard, so the concrete path is matched
// against the templates instead.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" && !strings.Contains(pattern, "*") {
			return pattern
		}
	}
	return r.URL.Path
}

func routeTTL(method, path string) (time.Duration, bool) {
	if method != http.MethodPost || path == "" {
		return 0, false
	}
	path = strings.TrimSuffix(path, "/")
	if ttl, ok := idempotentRoutes[path]; ok {
		return ttl, true
	}
	for pattern, ttl := range idempotentRoutes {
		if matchTemplate(pattern, path) {
			return ttl, true
		}
	}
	return 0, false
}

// matchTemplate compares segment by segment; {param} matches any one
// non-empty segment.
func matchTemplate(pattern, path string) bool {
	want := strings.Split(pattern, "/")
	got := strings.Split(path, "/")
	if len(want) != len(got) {
		return false
	}
	for i, seg := range want {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			if got[i] == "" {
				return false
			}
			continue
		}
		if seg != got[i] {
			return false
		}
	}
	return true
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}
