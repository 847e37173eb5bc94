package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureRegistered_Idempotent(t *testing.T) {
	// Repeated registration must not panic
	EnsureRegistered()
	EnsureRegistered()
}

func TestRecorders(t *testing.T) {
	EnsureRegistered()

	RecordTurn("completed", 120*time.Millisecond)
	RecordTurn("provider_error", 0)
	RecordFragment()
	RecordGenerate("ok")
	SetActiveSessions(3)
	RecordSweep(2)
	RecordSessionAppend(time.Millisecond)
	RecordSessionLoad(time.Millisecond)
	RecordBroadcast()
	SetConnectedClients(1)
}

func TestHandler_ExposesMetrics(t *testing.T) {
	EnsureRegistered()
	RecordTurn("completed", time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "sayra_chat_turns_total")
	assert.Contains(t, body, "sayra_sessions_active")
}
