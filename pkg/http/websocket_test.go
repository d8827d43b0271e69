package http

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fluently-server/pkg/ai"
	"fluently-server/pkg/analysis"
)

func newTestHub(t *testing.T) (*FeedbackHub, *analysis.Analyzer, string) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	analyzer := analysis.NewAnalyzer(logger, ai.NewMockProvider(logger), analysis.NewSessionStore())
	hub := NewFeedbackHub(logger, analyzer)
	hub.Start()

	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	return hub, analyzer, wsURL
}

func dialSession(t *testing.T, wsURL, sessionID string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws/"+sessionID, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	var welcome wsMessage
	require.NoError(t, ws.ReadJSON(&welcome))
	require.Equal(t, "connected", welcome.Type)
	require.Equal(t, sessionID, welcome.SessionID)
	require.NotEmpty(t, welcome.ConnectionID)
	return ws
}

func TestFeedbackHubConnection(t *testing.T) {
	hub, analyzer, wsURL := newTestHub(t)
	sessionID := analyzer.StartSession("u1", "en", nil)

	ws := dialSession(t, wsURL, sessionID)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, hub.ConnectionCount())

	ws.Close()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, hub.ConnectionCount())
}

func TestFeedbackHubPingPong(t *testing.T) {
	_, analyzer, wsURL := newTestHub(t)
	sessionID := analyzer.StartSession("u1", "en", nil)

	ws := dialSession(t, wsURL, sessionID)

	require.NoError(t, ws.WriteJSON(map[string]string{"type": "ping"}))

	var reply wsMessage
	require.NoError(t, ws.ReadJSON(&reply))
	assert.Equal(t, "pong", reply.Type)
}

func TestFeedbackHubRequestAnalytics(t *testing.T) {
	_, analyzer, wsURL := newTestHub(t)
	sessionID := analyzer.StartSession("u1", "en", nil)

	ws := dialSession(t, wsURL, sessionID)

	require.NoError(t, ws.WriteJSON(map[string]string{"type": "request_analytics"}))

	var reply wsMessage
	require.NoError(t, ws.ReadJSON(&reply))
	require.Equal(t, "analytics_update", reply.Type)
	require.NotNil(t, reply.Data)
	assert.Equal(t, sessionID, reply.Data.SessionInfo.SessionID)
}

func TestFeedbackHubRequestAnalyticsUnknownSession(t *testing.T) {
	_, _, wsURL := newTestHub(t)

	ws := dialSession(t, wsURL, "ghost-session")

	require.NoError(t, ws.WriteJSON(map[string]string{"type": "request_analytics"}))

	var reply wsMessage
	require.NoError(t, ws.ReadJSON(&reply))
	assert.Equal(t, "error", reply.Type)
	assert.NotEmpty(t, reply.Error)
}

func TestFeedbackHubBroadcastRouting(t *testing.T) {
	hub, analyzer, wsURL := newTestHub(t)
	sessionA := analyzer.StartSession("u1", "en", nil)
	sessionB := analyzer.StartSession("u2", "en", nil)

	wsA := dialSession(t, wsURL, sessionA)
	wsB := dialSession(t, wsURL, sessionB)
	time.Sleep(50 * time.Millisecond)

	hub.BroadcastFeedback(sessionA, []analysis.RealTimeFeedback{{
		ID:      "fb-1",
		Type:    analysis.AnalysisFluency,
		Message: "Fluency suggestions",
	}})

	var got wsMessage
	require.NoError(t, wsA.ReadJSON(&got))
	assert.Equal(t, "realtime_feedback", got.Type)
	assert.Equal(t, sessionA, got.SessionID)
	require.Len(t, got.Feedback, 1)
	assert.Equal(t, "fb-1", got.Feedback[0].ID)

	// Subscriber of the other session must see nothing.
	wsB.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var stray wsMessage
	err := wsB.ReadJSON(&stray)
	assert.Error(t, err, "client for another session received %+v", stray)
}

func TestFeedbackHubSessionEnded(t *testing.T) {
	hub, analyzer, wsURL := newTestHub(t)
	sessionID := analyzer.StartSession("u1", "en", nil)

	ws := dialSession(t, wsURL, sessionID)
	time.Sleep(50 * time.Millisecond)

	final, err := analyzer.EndSession(sessionID)
	require.NoError(t, err)
	hub.BroadcastSessionEnded(sessionID, final)

	var got wsMessage
	require.NoError(t, ws.ReadJSON(&got))
	assert.Equal(t, "session_ended", got.Type)
	require.NotNil(t, got.FinalAnalytics)
	assert.Equal(t, sessionID, got.FinalAnalytics.SessionInfo.SessionID)
}

func TestFeedbackHubMissingSessionID(t *testing.T) {
	_, _, wsURL := newTestHub(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"/ws/", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 400, resp.StatusCode)
}
