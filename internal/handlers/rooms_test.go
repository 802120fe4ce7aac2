package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/peerplay/internal/auth"
	"github.com/jason-s-yu/peerplay/internal/directory"
	"github.com/jason-s-yu/peerplay/internal/logging"
	"github.com/jason-s-yu/peerplay/internal/models"
	"github.com/jason-s-yu/peerplay/internal/peer"
	"github.com/jason-s-yu/peerplay/internal/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hostID = peer.NewPeerID("127.0.0.1:9000").String()

func newTestServer(t *testing.T) (*APIServer, *directory.Memory, http.Handler) {
	t.Helper()
	signer, err := auth.NewSigner(time.Hour)
	require.NoError(t, err)
	mem := directory.NewMemory()
	s := NewAPIServer(mem, signer, logging.Discard())
	return s, mem, s.Routes()
}

func do(h http.Handler, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func bearer(t *testing.T, s *APIServer, name string) http.Header {
	token, err := s.signer.CreateJWT(uuid.NewString(), name)
	require.NoError(t, err)
	return http.Header{"Authorization": {"Bearer " + token}}
}

func TestIdentityHandler(t *testing.T) {
	s, _, h := newTestServer(t)

	w := do(h, "POST", "/identity", `{"name":"ada"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp directory.IdentityResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	claims, err := s.signer.AuthenticateJWT(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.PlayerID, claims.PlayerID())
	assert.Equal(t, "ada", claims.Name)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, AuthCookie, cookies[0].Name)

	id := uuid.NewString()
	w = do(h, "POST", "/identity", `{"player_id":"`+id+`","name":"ada"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, id, resp.PlayerID, "a known player keeps its id")

	for _, body := range []string{`nope`, `{"name":""}`, `{"name":"ada","player_id":"x"}`} {
		assert.Equal(t, http.StatusBadRequest, do(h, "POST", "/identity", body, nil).Code, body)
	}
}

func TestCreateRoomAuth(t *testing.T) {
	s, _, h := newTestServer(t)
	body := `{"host_id":"` + hostID + `","game_type":"gomoku"}`

	assert.Equal(t, http.StatusUnauthorized, do(h, "POST", "/rooms", body, nil).Code)
	assert.Equal(t, http.StatusForbidden, do(h, "POST", "/rooms", body, http.Header{"Authorization": {"Bearer junk"}}).Code)

	token, err := s.signer.CreateJWT(uuid.NewString(), "cookie-host")
	require.NoError(t, err)
	w := do(h, "POST", "/rooms", body, http.Header{"Cookie": {"theme=dark; " + AuthCookie + "=" + token}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var room models.Room
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &room))
	assert.Equal(t, "cookie-host", room.HostName, "host name defaults to the token's name")
	assert.Equal(t, rules.Gomoku, room.GameType)
}

func TestCreateRoomRejectsBadInput(t *testing.T) {
	s, _, h := newTestServer(t)
	hdr := bearer(t, s, "ada")
	for _, body := range []string{
		`{`,
		`{"host_id":"` + hostID + `","game_type":"chess"}`,
		`{"host_id":"nowhere","game_type":"gomoku"}`,
	} {
		assert.Equal(t, http.StatusBadRequest, do(h, "POST", "/rooms", body, hdr).Code, body)
	}
}

func TestRoomLifecycle(t *testing.T) {
	s, mem, h := newTestServer(t)
	ctx := context.Background()
	hdr := bearer(t, s, "bob")
	room, err := mem.CreateRoom(ctx, "ada", hostID, rules.Mancala, false)
	require.NoError(t, err)
	_, err = mem.CreateRoom(ctx, "eve", hostID, rules.Dots, false)
	require.NoError(t, err)

	w := do(h, "GET", "/rooms?game=mancala", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rooms []models.Room
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rooms))
	require.Len(t, rooms, 1)
	assert.Equal(t, room.ID, rooms[0].ID)

	assert.Equal(t, http.StatusBadRequest, do(h, "GET", "/rooms?game=chess", "", nil).Code)
	assert.Equal(t, http.StatusOK, do(h, "GET", "/rooms/"+room.ID.String(), "", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(h, "GET", "/rooms/"+uuid.NewString(), "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(h, "GET", "/rooms/not-a-uuid", "", nil).Code)

	join := "/rooms/" + room.ID.String() + "/join"
	assert.Equal(t, http.StatusUnauthorized, do(h, "POST", join, "", nil).Code)
	assert.Equal(t, http.StatusOK, do(h, "POST", join, "", hdr).Code)
	w = do(h, "POST", join, "", hdr)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"joined":false`)
	assert.Equal(t, http.StatusNotFound, do(h, "POST", "/rooms/"+uuid.NewString()+"/join", "", hdr).Code)

	closeURL := "/rooms/" + room.ID.String() + "/close"
	w = do(h, "POST", closeURL, "", hdr)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"closed":true`)
	w = do(h, "POST", closeURL, "", hdr)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"closed":false`)

	assert.Equal(t, http.StatusOK, do(h, "GET", "/healthz", "", nil).Code)
}

func dialFeed(t *testing.T, srv *httptest.Server, query string, subprotocols ...string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/rooms/ws" + query
	c, _, err := websocket.Dial(context.Background(), u, &websocket.DialOptions{Subprotocols: subprotocols})
	require.NoError(t, err)
	t.Cleanup(func() { c.CloseNow() })
	return c
}

func readEvent(t *testing.T, c *websocket.Conn) models.RoomEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	var ev models.RoomEvent
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestRoomFeedHandler(t *testing.T) {
	_, mem, h := newTestServer(t)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	ctx := context.Background()

	c := dialFeed(t, srv, "?game=connect4", directory.FeedSubprotocol)
	assert.Equal(t, directory.FeedReady, readEvent(t, c).Event)

	_, err := mem.CreateRoom(ctx, "ada", hostID, rules.Othello, false)
	require.NoError(t, err)
	room, err := mem.CreateRoom(ctx, "bob", hostID, rules.Connect4, false)
	require.NoError(t, err)

	ev := readEvent(t, c)
	assert.Equal(t, models.RoomInserted, ev.Event)
	assert.Equal(t, room.ID, ev.Room.ID)
	c.Close(websocket.StatusNormalClosure, "")
}

func TestRoomFeedRejectsBadRequests(t *testing.T) {
	_, _, h := newTestServer(t)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	for _, tc := range []struct {
		name  string
		query string
		proto []string
		code  websocket.StatusCode
	}{
		{"no subprotocol", "", nil, BadSubprotocolError},
		{"unknown game", "?game=chess", []string{directory.FeedSubprotocol}, InvalidGameTypeError},
	} {
		c := dialFeed(t, srv, tc.query, tc.proto...)
		_, _, err := c.Read(context.Background())
		assert.Equal(t, tc.code, websocket.CloseStatus(err), tc.name)
	}
}

func TestExtractCookieToken(t *testing.T) {
	assert.Equal(t, "abc", extractCookieToken("a=1; auth_token=abc; b=2", AuthCookie))
	assert.Equal(t, "abc", extractCookieToken("auth_token=abc", AuthCookie))
	assert.Equal(t, "", extractCookieToken("xauth_token=abc", AuthCookie))
	assert.Equal(t, "", extractCookieToken("", AuthCookie))
}
