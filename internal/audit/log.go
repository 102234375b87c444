package audit

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var _ zerolog.LogObjectMarshaler = (*Entry)(nil)

type key struct{}

// Level is the log level at which audit logs are written: above error, so the
// entries survive any level filtering applied to the application logs.
const Level = zerolog.Level(20)

var (
	logKey = key{}

	configureLevel sync.Once
)

// Entry is the audit record of a single request passing through the gate.
type Entry struct {
	Method    string
	Path      string
	Status    int
	SourceIP  string
	ClientIP  string
	RayID     string
	UserAgent string

	Authorized     bool
	AuthSubject    string
	AuthEmail      string
	AuthIssuer     string
	AuthAudience   []string
	AuthExpirySecs int64

	Error string
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler, avoiding
// reflection when the entry is written.
func (e *Entry) MarshalZerologObject(event *zerolog.Event) {
	event.Str("method", e.Method).
		Str("path", e.Path).
		Int("status", e.Status).
		Str("sourceIP", e.SourceIP).
		Str("userAgent", e.UserAgent).
		Bool("authorized", e.Authorized).
		Str("authSubject", e.AuthSubject).
		Str("authEmail", e.AuthEmail).
		Str("authIssuer", e.AuthIssuer).
		Str("error", e.Error)

	// only present when the request came through the Cloudflare edge
	if e.ClientIP != "" {
		event.Str("clientIP", e.ClientIP)
	}
	if e.RayID != "" {
		event.Str("rayID", e.RayID)
	}

	if len(e.AuthAudience) > 0 {
		event.Strs("authAudience", e.AuthAudience)
	}

	if e.AuthExpirySecs > 0 {
		exp := time.Unix(e.AuthExpirySecs, 0)
		event.Time("authExpiry", exp).
			Dur("authExpiryRemaining", time.Until(exp).Round(time.Millisecond))
	}
}

// Begin records the request details on the entry.
func (e *Entry) Begin(r *http.Request) {
	e.Method = r.Method
	e.Path = r.URL.Path
	e.UserAgent = r.UserAgent()
	e.SourceIP = r.RemoteAddr
	e.ClientIP = r.Header.Get("Cf-Connecting-Ip")
	e.RayID = r.Header.Get("Cf-Ray")
}

// End returns a func that writes the entry. When deferred, it also captures a
// panic from the handler chain: the panic is noted on the entry, the entry is
// written, and the panic is raised again.
func (e *Entry) End(ctx context.Context) func() {
	return func() {
		r := recover()
		if r != nil {
			e.Status = http.StatusInternalServerError
			if e.Error != "" {
				e.Error += "; "
			}
			e.Error += fmt.Sprintf("panic: %v", r)
		}

		// a handler that never calls WriteHeader responds 200
		if e.Status == 0 {
			e.Status = http.StatusOK
		}

		zerolog.Ctx(ctx).WithLevel(Level).EmbedObject(e).Str("type", "audit").Msg("audit_event")

		if r != nil {
			panic(r)
		}
	}
}

// Middleware creates the audit entry for each request and writes it to the log
// once the request completes, whatever the outcome. Placed ahead of the access
// gate, it records rejected requests as well as admitted ones.
//
// A panic during the request is recorded on the entry before being re-raised.
func Middleware() func(next http.Handler) http.Handler {
	zerologConfiguration()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, entry := Context(r.Context())

			response := wrapResponseWriter(w, entry)

			entry.Begin(r)
			defer entry.End(ctx)()

			next.ServeHTTP(response, r.WithContext(ctx))
		})
	}
}

// Log returns the entry for the current request. It is safe to call when no
// audit middleware is present: the entry returned is then simply discarded.
func Log(ctx context.Context) *Entry {
	_, e := Context(ctx)
	return e
}

// Context returns the entry for the current request, creating one if it does
// not exist. Changes to a newly created entry are only kept if the returned
// context is used.
func Context(ctx context.Context) (context.Context, *Entry) {
	e, ok := ctx.Value(logKey).(*Entry)
	if !ok {
		e = &Entry{}
		ctx = context.WithValue(ctx, logKey, e)
	}

	return ctx, e
}

// zerologConfiguration names the audit level in both console and JSON output.
// The level marshaller is global, so it is only wrapped once.
func zerologConfiguration() {
	configureLevel.Do(func() {
		zerolog.FormattedLevels[Level] = "AUD"

		marshal := zerolog.LevelFieldMarshalFunc
		zerolog.LevelFieldMarshalFunc = func(l zerolog.Level) string {
			if l == Level {
				return "audit"
			}
			return marshal(l)
		}
	})
}
