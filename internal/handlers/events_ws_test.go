package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/blackjack/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialFeed(t *testing.T, env *testEnv, c *client, protocols ...string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	header := http.Header{}
	for _, ck := range c.http.Jar.Cookies(mustURL(t, env.srv.URL)) {
		header.Add("Cookie", ck.String())
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return websocket.Dial(ctx, "ws"+strings.TrimPrefix(env.srv.URL, "http")+"/api/ws", &websocket.DialOptions{
		HTTPHeader:   header,
		Subprotocols: protocols,
	})
}

func readJSON(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func TestEventsFeed(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.client(t)
	c.signup("jules")

	conn, _, err := dialFeed(t, env, c, "blackjack")
	require.NoError(t, err)
	defer conn.CloseNow()
	assert.Equal(t, "blackjack", conn.Subprotocol())

	var hello stateMessage
	readJSON(t, conn, &hello)
	assert.Equal(t, "state", hello.Type)
	assert.Nil(t, hello.State, "no round in play yet")

	env.shoe.push("10", "9", "7", "8")
	require.Equal(t, http.StatusOK, c.call(http.MethodPost, "/api/deal", map[string]int64{"bet_amount": 20}, nil))

	var ev game.GameEvent
	readJSON(t, conn, &ev)
	assert.Equal(t, game.EventGameDealt, ev.Type)
	assert.NotZero(t, ev.GameID)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"type":"sync"}`)))
	var synced stateMessage
	readJSON(t, conn, &synced)
	require.NotNil(t, synced.State)
	assert.Equal(t, ev.GameID, synced.State.GameID)

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"type":"ping"}`)))
	var pong map[string]string
	readJSON(t, conn, &pong)
	assert.Equal(t, "pong", pong["type"])

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`not json`)))
	var bad map[string]string
	readJSON(t, conn, &bad)
	assert.Equal(t, "error", bad["type"])

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
	assert.Eventually(t, func() bool {
		return env.gs.Hub.Subscribers(userIDOf(t, env, "jules")) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEventsFeedRequiresSession(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.client(t)

	_, resp, err := dialFeed(t, env, c, "blackjack")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestEventsFeedWrongSubprotocol(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.client(t)
	c.signup("kim")

	conn, _, err := dialFeed(t, env, c, "chat")
	require.NoError(t, err)
	defer conn.CloseNow()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, _, err = conn.Read(ctx)
	assert.Equal(t, websocket.StatusCode(BadSubprotocolError), websocket.CloseStatus(err))
}

func userIDOf(t *testing.T, env *testEnv, username string) uuid.UUID {
	t.Helper()
	u, err := env.store.GetUserByUsername(context.Background(), username)
	require.NoError(t, err)
	return u.ID
}
