package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naila/sayra/pkg/chat"
	"github.com/naila/sayra/pkg/provider"
	"github.com/naila/sayra/pkg/session"
)

type scriptedStream struct {
	fragments []string
	finalErr  error
	pos       int
}

func (s *scriptedStream) Recv() (string, error) {
	if s.pos >= len(s.fragments) {
		if s.finalErr != nil {
			return "", s.finalErr
		}
		return "", io.EOF
	}
	fragment := s.fragments[s.pos]
	s.pos++
	return fragment, nil
}

func (s *scriptedStream) Close() error { return nil }

type fakeProvider struct {
	fragments    []string
	openErr      error
	completeText string
	completeErr  error
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) OpenStream(ctx context.Context, req provider.Request) (provider.Stream, error) {
	if p.openErr != nil {
		return nil, p.openErr
	}
	return &scriptedStream{fragments: p.fragments}, nil
}

func (p *fakeProvider) Complete(ctx context.Context, req provider.Request) (string, error) {
	return p.completeText, p.completeErr
}

func newTestServer(t *testing.T, prov provider.Provider) (*Server, *session.Store) {
	t.Helper()

	store, err := session.NewStore(filepath.Join(t.TempDir(), "sessions.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	orch := chat.NewOrchestrator(store, prov, chat.Options{
		Model:       "test-model",
		IdleTimeout: time.Second,
		Logger:      zerolog.Nop(),
	})

	server := NewServer(ServerOptions{}, store, orch, nil, nil, zerolog.Nop())
	server.startTime = time.Now()
	return server, store
}

func streamRequest(t *testing.T, sessionID, prompt string) *http.Request {
	t.Helper()
	body, err := json.Marshal(StreamRequest{Prompt: prompt, SessionID: sessionID})
	require.NoError(t, err)
	return httptest.NewRequest(http.MethodPost, "/chat/stream", strings.NewReader(string(body)))
}

func TestHandleStream_StreamsPlainText(t *testing.T) {
	server, store := newTestServer(t, &fakeProvider{fragments: []string{"Hel", "lo"}})

	rec := httptest.NewRecorder()
	server.handleStream(rec, streamRequest(t, "s1", "hi"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "Hello", rec.Body.String())

	sess, err := store.Get(context.Background(), "s1", "anonymous")
	require.NoError(t, err)
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, "Hello", sess.Messages[1].Content)
}

func TestHandleStream_EmptyPrompt(t *testing.T) {
	server, _ := newTestServer(t, &fakeProvider{})

	rec := httptest.NewRecorder()
	server.handleStream(rec, streamRequest(t, "s1", ""))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Error)
}

func TestHandleStream_BlankPrompt(t *testing.T) {
	server, store := newTestServer(t, &fakeProvider{})

	rec := httptest.NewRecorder()
	server.handleStream(rec, streamRequest(t, "s1", "   "))

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Nothing persisted for the rejected turn
	_, err := store.Get(context.Background(), "s1", "anonymous")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestHandleStream_InvalidBody(t *testing.T) {
	server, _ := newTestServer(t, &fakeProvider{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat/stream", strings.NewReader("{not json"))
	server.handleStream(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleStream_ProviderFailureBeforeOutput(t *testing.T) {
	server, store := newTestServer(t, &fakeProvider{openErr: errors.New("service unavailable")})

	rec := httptest.NewRecorder()
	server.handleStream(rec, streamRequest(t, "s1", "hi"))

	assert.Equal(t, http.StatusBadGateway, rec.Code)

	// The user message is still persisted
	sess, err := store.Get(context.Background(), "s1", "anonymous")
	require.NoError(t, err)
	require.Len(t, sess.Messages, 1)
}

func TestHandleStream_FailureAfterOutputAbortsTransport(t *testing.T) {
	server, _ := newTestServer(t, &fakeProvider{})

	// Swap in a provider whose stream fails mid-sequence
	server.orchestrator = chat.NewOrchestrator(server.store, &failingMidStreamProvider{}, chat.Options{
		IdleTimeout: time.Second,
		Logger:      zerolog.Nop(),
	})

	rec := httptest.NewRecorder()
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		server.handleStream(rec, streamRequest(t, "s1", "hi"))
	})
	assert.Equal(t, "partial ", rec.Body.String())
}

type failingMidStreamProvider struct{}

func (p *failingMidStreamProvider) Name() string { return "fake" }

func (p *failingMidStreamProvider) OpenStream(ctx context.Context, req provider.Request) (provider.Stream, error) {
	return &scriptedStream{fragments: []string{"partial "}, finalErr: errors.New("connection reset")}, nil
}

func (p *failingMidStreamProvider) Complete(ctx context.Context, req provider.Request) (string, error) {
	return "", errors.New("not implemented")
}

func TestHandleHistory_ReturnsMessages(t *testing.T) {
	server, store := newTestServer(t, &fakeProvider{})
	ctx := context.Background()

	_, err := store.GetOrCreate(ctx, "s1", "anonymous")
	require.NoError(t, err)
	_, err = store.AppendMessage(ctx, "s1", session.Message{Role: session.RoleUser, Content: "hi"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/chat/history/s1", nil)
	req.SetPathValue("sessionId", "s1")
	server.handleHistory(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "hi", resp.Messages[0].Content)
}

func TestHandleHistory_UnknownSessionIsEmptyList(t *testing.T) {
	server, _ := newTestServer(t, &fakeProvider{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/chat/history/missing", nil)
	req.SetPathValue("sessionId", "missing")
	server.handleHistory(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"messages":[]}`, rec.Body.String())
}

func TestHandleSessions(t *testing.T) {
	server, store := newTestServer(t, &fakeProvider{})
	ctx := context.Background()

	_, err := store.GetOrCreate(ctx, "s1", "anonymous")
	require.NoError(t, err)
	_, err = store.AppendMessage(ctx, "s1", session.Message{Role: session.RoleUser, Content: "first question"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	server.handleSessions(rec, httptest.NewRequest(http.MethodGet, "/chat/sessions", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var summaries []session.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, "s1", summaries[0].SessionID)
	assert.Equal(t, "first question", summaries[0].Title)
}

func TestHandleRename(t *testing.T) {
	server, store := newTestServer(t, &fakeProvider{})
	ctx := context.Background()

	_, err := store.GetOrCreate(ctx, "s1", "anonymous")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/chat/rename/s1", strings.NewReader(`{"title":"My Chat"}`))
	req.SetPathValue("sessionId", "s1")
	server.handleRename(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	sess, err := store.Get(ctx, "s1", "anonymous")
	require.NoError(t, err)
	assert.Equal(t, "My Chat", sess.Title)
}

func TestHandleRename_BlankTitle(t *testing.T) {
	server, _ := newTestServer(t, &fakeProvider{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/chat/rename/s1", strings.NewReader(`{"title":"   "}`))
	req.SetPathValue("sessionId", "s1")
	server.handleRename(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRename_NotFound(t *testing.T) {
	server, _ := newTestServer(t, &fakeProvider{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/chat/rename/missing", strings.NewReader(`{"title":"X"}`))
	req.SetPathValue("sessionId", "missing")
	server.handleRename(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp AckResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Chat session not found.", resp.Message)
}

func TestHandleDelete(t *testing.T) {
	server, store := newTestServer(t, &fakeProvider{})
	ctx := context.Background()

	_, err := store.GetOrCreate(ctx, "s1", "anonymous")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/chat/s1", nil)
	req.SetPathValue("sessionId", "s1")
	server.handleDelete(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp AckResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Chat session deleted successfully.", resp.Message)

	_, err = store.Get(ctx, "s1", "anonymous")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestHandleDelete_NotFound(t *testing.T) {
	server, _ := newTestServer(t, &fakeProvider{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/chat/missing", nil)
	req.SetPathValue("sessionId", "missing")
	server.handleDelete(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp AckResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Chat session not found.", resp.Message)
}

func TestHandleGenerate(t *testing.T) {
	server, _ := newTestServer(t, &fakeProvider{completeText: "a haiku"})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(`{"prompt":"write a haiku"}`))
	server.handleGenerate(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp GenerateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "a haiku", resp.GeneratedText)
}

func TestHandleGenerate_EmptyPrompt(t *testing.T) {
	server, _ := newTestServer(t, &fakeProvider{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(`{"prompt":""}`))
	server.handleGenerate(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp GenerateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
}

func TestHandleGenerate_ProviderFailure(t *testing.T) {
	server, _ := newTestServer(t, &fakeProvider{completeErr: errors.New("quota exceeded")})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(`{"prompt":"hi"}`))
	server.handleGenerate(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp GenerateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.NotContains(t, resp.Error, "quota")
}

func TestHandleHealth(t *testing.T) {
	server, _ := newTestServer(t, &fakeProvider{})

	rec := httptest.NewRecorder()
	server.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}
