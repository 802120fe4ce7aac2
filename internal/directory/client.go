package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/peerplay/internal/models"
	"github.com/jason-s-yu/peerplay/internal/rules"
	"github.com/sirupsen/logrus"
)

var ErrUnauthorized = errors.New("directory rejected credentials")

// Client talks to the directory service over HTTP and its websocket feed.
type Client struct {
	base   *url.URL
	token  string
	http   *http.Client
	logger logrus.FieldLogger
}

// NewClient builds a client for the service at baseURL. token may be empty
// for read-only use; see RequestIdentity.
func NewClient(baseURL, token string, httpClient *http.Client, logger logrus.FieldLogger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid directory url %q", baseURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{base: u, token: token, http: httpClient, logger: logger}, nil
}

// SetToken replaces the bearer token used on mutating calls.
func (c *Client) SetToken(token string) { c.token = token }

// RequestIdentity asks the service for a token for playerID (empty mints a
// new id) and installs it on the client.
func (c *Client) RequestIdentity(ctx context.Context, playerID, name string) (IdentityResponse, error) {
	var resp IdentityResponse
	if err := c.do(ctx, http.MethodPost, "/identity", nil, IdentityRequest{PlayerID: playerID, Name: name}, &resp); err != nil {
		return IdentityResponse{}, err
	}
	c.token = resp.Token
	return resp, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path += path
	u.RawQuery = query.Encode()
	return u.String()
}

// do performs a JSON request. Non-2xx statuses other than 409 become errors;
// 409 is returned to the caller with a nil error.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrRoomNotFound
	case resp.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrInvalidRoom, readMessage(resp.Body))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, readMessage(resp.Body))
	case resp.StatusCode == http.StatusConflict, resp.StatusCode >= 200 && resp.StatusCode < 300:
	default:
		return fmt.Errorf("%w: %s %s: %d %s", ErrUnavailable, method, path, resp.StatusCode, readMessage(resp.Body))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding %s response: %w", path, err)
		}
	}
	return nil
}

func readMessage(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(b))
}

func (c *Client) CreateRoom(ctx context.Context, hostName, hostPeerID string, gameType rules.GameType, isPrivate bool) (models.Room, error) {
	if _, err := validateRoom(hostName, hostPeerID, gameType); err != nil {
		return models.Room{}, err
	}
	var room models.Room
	req := CreateRoomRequest{HostName: hostName, HostID: hostPeerID, GameType: gameType, IsPrivate: isPrivate}
	if err := c.do(ctx, http.MethodPost, "/rooms", nil, req, &room); err != nil {
		return models.Room{}, err
	}
	return room, nil
}

func (c *Client) TryJoinRoom(ctx context.Context, id uuid.UUID) (bool, error) {
	var resp JoinResponse
	if err := c.do(ctx, http.MethodPost, "/rooms/"+id.String()+"/join", nil, nil, &resp); err != nil {
		return false, err
	}
	return resp.Joined, nil
}

func (c *Client) CloseRoom(ctx context.Context, id uuid.UUID) (bool, error) {
	var resp CloseResponse
	if err := c.do(ctx, http.MethodPost, "/rooms/"+id.String()+"/close", nil, nil, &resp); err != nil {
		return false, err
	}
	return resp.Closed, nil
}

func (c *Client) GetRoom(ctx context.Context, id uuid.UUID) (models.Room, error) {
	var room models.Room
	if err := c.do(ctx, http.MethodGet, "/rooms/"+id.String(), nil, nil, &room); err != nil {
		return models.Room{}, err
	}
	return room, nil
}

func (c *Client) ListWaiting(ctx context.Context, gameType rules.GameType) ([]models.Room, error) {
	var query url.Values
	if gameType != "" {
		query = url.Values{"game": {string(gameType)}}
	}
	var rooms []models.Room
	if err := c.do(ctx, http.MethodGet, "/rooms", query, nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// Subscribe dials the room feed and returns once the service confirms the
// subscription. ctx bounds the dial only.
func (c *Client) Subscribe(ctx context.Context, gameType rules.GameType, h RoomHandlers) (Subscription, error) {
	ws := *c.base
	switch ws.Scheme {
	case "https":
		ws.Scheme = "wss"
	default:
		ws.Scheme = "ws"
	}
	ws.Path += "/rooms/ws"
	if gameType != "" {
		ws.RawQuery = url.Values{"game": {string(gameType)}}.Encode()
	}

	conn, _, err := websocket.Dial(ctx, ws.String(), &websocket.DialOptions{
		HTTPClient:   c.http,
		Subprotocols: []string{FeedSubprotocol},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: dialing room feed: %v", ErrUnavailable, err)
	}
	first, err := readFeedEvent(ctx, conn)
	if err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("%w: room feed: %v", ErrUnavailable, err)
	}
	if first.Event != FeedReady {
		conn.CloseNow()
		return nil, fmt.Errorf("%w: room feed sent %q before ready", ErrUnavailable, first.Event)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	d := newDispatcher(h, "")
	d.onEnd = func() {
		cancel()
		conn.Close(websocket.StatusNormalClosure, "")
	}
	go func() {
		for {
			ev, err := readFeedEvent(readCtx, conn)
			if err != nil {
				if readCtx.Err() == nil {
					c.logger.WithError(err).Warn("room feed ended")
				}
				return
			}
			d.push(ev)
		}
	}()
	return d, nil
}

func readFeedEvent(ctx context.Context, conn *websocket.Conn) (models.RoomEvent, error) {
	var ev models.RoomEvent
	_, data, err := conn.Read(ctx)
	if err != nil {
		return ev, err
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("decoding room event: %w", err)
	}
	return ev, nil
}
