package main

import (
	"fmt"
	"net/http"

	"github.com/jamestelfer/cfaccess-gate/internal/access"
	"github.com/rs/zerolog/log"
)

// handleGetMessage greets the verified identity. Service tokens carry no
// email, which leaves the greeting empty.
func handleGetMessage() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// payload must be present from the gate
		payload := access.RequirePayloadFromContext(r.Context())

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, err := fmt.Fprintf(w, "Hello %s", payload.Email())
		if err != nil {
			// record failure to log: trying to respond to the client at this
			// point will likely fail
			log.Info().Err(err).Msg("failed to write response")
		}
	})
}
