package healthapi

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strings"
	"time"
)

type Middleware func(http.Handler) http.Handler

// chain applies mws so that the first one is the outermost.
func chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// respWriter records what a handler wrote.
type respWriter struct {
	http.ResponseWriter
	status int
	size   int
	wrote  bool
}

func wrap(w http.ResponseWriter) *respWriter {
	if rw, ok := w.(*respWriter); ok {
		return rw
	}
	return &respWriter{ResponseWriter: w, status: http.StatusOK}
}

func (w *respWriter) WriteHeader(code int) {
	if !w.wrote {
		w.status, w.wrote = code, true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *respWriter) Write(b []byte) (int, error) {
	w.wrote = true
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

// recoverMW turns a handler panic into a 500 error envelope, unless the
// handler had already started the response.
func recoverMW(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := wrap(w)
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			log.Printf("[http] PANIC %s %s: %v", r.Method, r.URL.Path, rec)
			if !ww.wrote {
				writeError(ww, http.StatusInternalServerError, "INTERNAL", "internal error")
			}
		}()
		next.ServeHTTP(ww, r)
	})
}

// logMW writes one access line per request: method, path, status, bytes, duration.
func logMW(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := wrap(w)
		next.ServeHTTP(ww, r)
		log.Printf("[http] %s %s %d %dB %s", r.Method, r.URL.Path, ww.status, ww.size, time.Since(start).Round(time.Microsecond))
	})
}

func timeoutMW(d time.Duration) Middleware {
	if d <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, http.StatusText(http.StatusGatewayTimeout))
	}
}

// public paths never need credentials
func public(path string) bool {
	return path == "/" || path == "/health" || strings.HasPrefix(path, "/docs/")
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// authorized accepts "Authorization: Bearer <token>" or "X-API-Key: <key>",
// each only when configured.
func authorized(r *http.Request, bearerToken, apiKey string) bool {
	if bearerToken != "" {
		if tok, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && equal(tok, bearerToken) {
			return true
		}
	}
	return apiKey != "" && equal(r.Header.Get("X-API-Key"), apiKey)
}

// authMW guards everything but the public paths. With no credential
// configured every request passes.
func authMW(bearerToken, apiKey string) Middleware {
	open := bearerToken == "" && apiKey == ""
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if open || public(r.URL.Path) || authorized(r, bearerToken, apiKey) {
				next.ServeHTTP(w, r)
				return
			}
			if bearerToken != "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="mcpanel"`)
			}
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid credentials")
		})
	}
}
