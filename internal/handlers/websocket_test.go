package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tenancy-backend/internal/docstore"
	"tenancy-backend/internal/handlers"
	"tenancy-backend/internal/models"
)

func dialWS(t *testing.T, h *handlers.WebSocketHandler, token string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	return conn
}

// readWSType discards events until one of the wanted type arrives.
func readWSType(t *testing.T, conn *websocket.Conn, want string) handlers.WSMessage {
	t.Helper()
	for {
		var msg handlers.WSMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == want {
			return msg
		}
	}
}

func TestWebSocketVendorScopes(t *testing.T) {
	auth := new(MockAuthService)
	auth.On("VerifyToken", mock.Anything, "tok-1").
		Return(&models.Identity{ID: "u1", Email: "ann@x.com"}, nil)

	h := handlers.NewWebSocketHandler(auth, docstore.NewMemory(), nil)
	conn := dialWS(t, h, "tok-1")

	// Vendors have no unscoped view; asking for one is an error, not a
	// silently narrowed stream.
	require.NoError(t, conn.WriteJSON(map[string]string{
		"type": "subscribe", "collection": models.CollectionVendors, "scope": "all",
	}))
	errEvent := readWSType(t, conn, "error")
	assert.Equal(t, models.CollectionVendors, errEvent.Collection)

	// The default scope streams the caller's own vendors.
	require.NoError(t, conn.WriteJSON(map[string]string{
		"type": "subscribe", "collection": models.CollectionVendors,
	}))
	snap := readWSType(t, conn, "snapshot")
	assert.Equal(t, models.CollectionVendors, snap.Collection)
	assert.Empty(t, snap.Records)
}

func TestWebSocketRejectsBadToken(t *testing.T) {
	auth := new(MockAuthService)
	auth.On("VerifyToken", mock.Anything, "bad").
		Return(nil, assert.AnError)

	h := handlers.NewWebSocketHandler(auth, docstore.NewMemory(), nil)
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?token=bad"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
