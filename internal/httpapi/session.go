package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banyan/banyan/internal/auth"
	"github.com/banyan/banyan/internal/bnerr"
	"github.com/banyan/banyan/internal/metrics"
)

// SessionHandlers backs the optional dashboard-convenience
// POST /api/internal/session endpoint (SPEC_FULL.md §2.4): exchanges an
// already-Basic-authenticated request for a short-lived JWT a browser
// dashboard can hold instead of the long-lived provider token.
type SessionHandlers struct {
	sessions *auth.SessionManager
}

func newSessionHandlers(sessions *auth.SessionManager) *SessionHandlers {
	return &SessionHandlers{sessions: sessions}
}

// Issue handles POST /api/internal/session.
func (h *SessionHandlers) Issue(c *gin.Context) {
	u := currentUser(c)
	signed, expiresAt, err := h.sessions.Issue(u)
	if err != nil {
		writeError(c, bnerr.Wrap(bnerr.KindFatal, err, "session issuance unavailable"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_token": signed, "expires_at": expiresAt})
}

// metricsHandler wraps promhttp for GET /metrics.
func metricsHandler(m *metrics.Metrics) gin.HandlerFunc {
	h := promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
