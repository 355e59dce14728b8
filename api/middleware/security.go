package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/tecnogrow/paybridge/api/responses"
	"github.com/tecnogrow/paybridge/pkg/config"
	pkgerrors "github.com/tecnogrow/paybridge/pkg/errors"
	"github.com/tecnogrow/paybridge/pkg/logger"
)

const (
	apiKeyHeader    = "X-API-Key"
	signatureHeader = "X-Signature"
	timestampHeader = "X-Timestamp"
)

// APIKey enforces the shared storefront key. A server with no key configured
// rejects everything rather than running open.
func APIKey(cfg config.SecurityConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if cfg.APIKey == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "api key is not configured"))
				return
			}

			provided := r.Header.Get(apiKeyHeader)
			if provided == "" {
				w.Header().Set("WWW-Authenticate", "ApiKey")
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "api key required"))
				return
			}
			if subtleCompare(provided, cfg.APIKey) {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("WWW-Authenticate", "ApiKey")
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid api key"))
		})
	}
}

// HMACSignature verifies X-Signature over "{body}:{timestamp}" with SHA-256
// and rejects stale timestamps. The layer is active only when a secret is
// configured.
func HMACSignature(cfg config.SecurityConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	tolerance := cfg.TimestampTolerance
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.HMACSecret == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			signature := r.Header.Get(signatureHeader)
			timestamp := r.Header.Get(timestampHeader)
			if signature == "" || timestamp == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "signature and timestamp required"))
				return
			}

			requestTime, err := strconv.ParseInt(timestamp, 10, 64)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid timestamp"))
				return
			}
			drift := time.Since(time.Unix(requestTime, 0))
			if drift < 0 {
				drift = -drift
			}
			if drift > tolerance {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "timestamp outside tolerance"))
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "reading request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			expected := Sign(cfg.HMACSecret, string(body), timestamp)
			if !subtleCompare(signature, expected) {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid signature"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Sign computes the hex HMAC-SHA256 signature clients must send.
func Sign(secret, body, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body + ":" + timestamp))
	return hex.EncodeToString(mac.Sum(nil))
}

func subtleCompare(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}
