package access

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/jamestelfer/cfaccess-gate/internal/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestRejection(t *testing.T) {
	for _, scenario := range []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
		wantOutcome string
	}{
		{
			name:        "misconfigured",
			err:         ErrMisconfigured,
			wantStatus:  http.StatusInternalServerError,
			wantMessage: "Missing required environment variables",
			wantOutcome: outcomeMisconfigured,
		},
		{
			name:        "missing",
			err:         jwtmiddleware.ErrJWTMissing,
			wantStatus:  http.StatusForbidden,
			wantMessage: "Missing CF Access JWT",
			wantOutcome: outcomeMissing,
		},
		{
			name:        "invalid",
			err:         jwtmiddleware.ErrJWTInvalid,
			wantStatus:  http.StatusForbidden,
			wantMessage: "Invalid CF Access JWT",
			wantOutcome: outcomeInvalid,
		},
		{
			name:        "wrapped invalid",
			err:         fmt.Errorf("%w: expected claims not validated: issuer", jwtmiddleware.ErrJWTInvalid),
			wantStatus:  http.StatusForbidden,
			wantMessage: "Invalid CF Access JWT",
			wantOutcome: outcomeInvalid,
		},
		{
			name:        "extraction failure",
			err:         errors.New("error extracting token: boom"),
			wantStatus:  http.StatusForbidden,
			wantMessage: "Invalid CF Access JWT",
			wantOutcome: outcomeInvalid,
		},
	} {
		t.Run(scenario.name, func(t *testing.T) {
			status, message, outcome := rejection(scenario.err)

			assert.Equal(t, scenario.wantStatus, status)
			assert.Equal(t, scenario.wantMessage, message)
			assert.Equal(t, scenario.wantOutcome, outcome)
		})
	}
}

func TestErrorHandler_RecordsCauseOnAuditOnly(t *testing.T) {
	d, err := newDecisions(noop.NewMeterProvider())
	require.NoError(t, err)

	g := &gate{decisions: d}

	ctx, entry := audit.Context(context.Background())
	entry.Authorized = true

	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
	rr := httptest.NewRecorder()

	cause := fmt.Errorf("%w: audience mismatch", jwtmiddleware.ErrJWTInvalid)
	g.errorHandler(rr, req, cause)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "Invalid CF Access JWT", rr.Body.String())
	assert.NotContains(t, rr.Body.String(), "audience")
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	assert.False(t, entry.Authorized)
	assert.Equal(t, "access: "+cause.Error(), entry.Error)
}
