package access

import (
	"errors"
	"net/http"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/jamestelfer/cfaccess-gate/internal/audit"
	"github.com/rs/zerolog"
)

// ErrMisconfigured indicates that the team domain or audience is not set. It
// is a deployment defect, not a client error.
var ErrMisconfigured = errors.New("access gate misconfigured: team domain and audience are required")

const (
	msgMisconfigured = "Missing required environment variables"
	msgMissingToken  = "Missing CF Access JWT"
	msgInvalidToken  = "Invalid CF Access JWT"
)

// rejection maps a gate failure to the response sent to the client. Every
// verification failure produces the same response so that callers cannot tell
// which check failed.
func rejection(err error) (status int, message string, outcome string) {
	switch {
	case errors.Is(err, ErrMisconfigured):
		return http.StatusInternalServerError, msgMisconfigured, outcomeMisconfigured
	case errors.Is(err, jwtmiddleware.ErrJWTMissing):
		return http.StatusForbidden, msgMissingToken, outcomeMissing
	default:
		return http.StatusForbidden, msgInvalidToken, outcomeInvalid
	}
}

// errorHandler writes the rejection response. The underlying cause is only
// logged and recorded on the audit entry.
func (g *gate) errorHandler(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	status, message, outcome := rejection(err)

	ev := zerolog.Ctx(ctx).Info()
	if status >= http.StatusInternalServerError {
		ev = zerolog.Ctx(ctx).Error()
	}
	ev.Err(err).Str("outcome", outcome).Msg("access: request rejected")

	entry := audit.Log(ctx)
	entry.Authorized = false
	entry.Error = "access: " + err.Error()

	g.decisions.record(ctx, outcome)

	writeText(w, status, message)
}

func writeText(w http.ResponseWriter, status int, message string) {
	h := w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(message))
}
