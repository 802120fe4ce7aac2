// Package peer owns the single direct websocket link between two players.
// The host listens on an ephemeral endpoint and accepts exactly one guest;
// after that the link is symmetric and carries protocol envelopes both ways.
package peer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/peerplay/internal/protocol"
	"github.com/sirupsen/logrus"
)

// Subprotocol is negotiated on every peer link.
const Subprotocol = "peerplay"

// BadSubprotocolError is the close code sent when the remote did not
// negotiate the peerplay subprotocol.
const BadSubprotocolError = 3000

type Role string

const (
	RoleNone  Role = ""
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosed     State = "closed"
)

var (
	ErrPeerUnreachable = errors.New("peer unreachable")
	ErrLinkExists      = errors.New("manager already has a link")
	ErrPeerClosed      = errors.New("peer closed the link")
	ErrConnectionLost  = errors.New("peer connection lost")
	ErrLinkClosed      = errors.New("link closed")
)

// Options tune one Manager. Zero fields fall back to DefaultOptions.
type Options struct {
	// ListenAddr is where a host listens, e.g. ":0" or "127.0.0.1:7000".
	ListenAddr string
	// AdvertiseHost replaces the listener host in the published PeerID.
	AdvertiseHost    string
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	PingTimeout      time.Duration
	WriteTimeout     time.Duration
	SendBuffer       int
	ReadLimit        int64
}

func DefaultOptions() Options {
	return Options{
		ListenAddr:       "127.0.0.1:0",
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      15 * time.Second,
		WriteTimeout:     5 * time.Second,
		SendBuffer:       64,
		ReadLimit:        1 << 20,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ListenAddr == "" {
		o.ListenAddr = d.ListenAddr
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = d.HandshakeTimeout
	}
	if o.PingInterval <= 0 {
		o.PingInterval = d.PingInterval
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = d.PingTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = d.SendBuffer
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = d.ReadLimit
	}
	return o
}

// Handlers are invoked from the link's read goroutine, so callbacks for one
// link never run concurrently and arrive in wire order. OnClose runs exactly
// once, after the last OnMessage; its error is nil for a local Close.
type Handlers struct {
	OnOpen      func()
	OnMessage   func(protocol.Envelope)
	OnClose     func(error)
	OnMalformed func(data []byte, err error)
}

// Manager holds at most one link for its whole life. There is no automatic
// reconnection; a new link needs a new Manager.
type Manager struct {
	opts     Options
	handlers Handlers
	logger   logrus.FieldLogger

	mu            sync.Mutex
	state         State
	role          Role
	id            PeerID
	token         uuid.UUID
	accepting     bool
	conn          *websocket.Conn
	srv           *http.Server
	closedLocally bool

	out       chan protocol.Envelope
	quit      chan struct{}
	quitOnce  sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

func NewManager(opts Options, h Handlers, logger logrus.FieldLogger) *Manager {
	opts = opts.withDefaults()
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Manager{
		opts:     opts,
		handlers: h,
		logger:   logger,
		state:    StateIdle,
		out:      make(chan protocol.Envelope, opts.SendBuffer),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Role() Role {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.role
}

// ID is the local link id for a host and the remote id for a guest.
func (m *Manager) ID() PeerID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id
}

// Done is closed after OnClose has returned.
func (m *Manager) Done() <-chan struct{} { return m.done }

// CreateLink starts listening for a single guest and returns the id to publish.
func (m *Manager) CreateLink(ctx context.Context) (PeerID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateIdle {
		return "", ErrLinkExists
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", m.opts.ListenAddr)
	if err != nil {
		return "", fmt.Errorf("listen on %s: %w", m.opts.ListenAddr, err)
	}
	host, port, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		ln.Close()
		return "", fmt.Errorf("listener address: %w", err)
	}
	if m.opts.AdvertiseHost != "" {
		host = m.opts.AdvertiseHost
	} else if ip := net.ParseIP(host); ip != nil && ip.IsUnspecified() {
		host = outboundHost()
	}

	m.token = uuid.New()
	m.id = PeerID(m.token.String() + "@" + net.JoinHostPort(host, port))
	m.role = RoleHost
	m.state = StateConnecting

	mux := http.NewServeMux()
	mux.HandleFunc("/peer/", m.acceptHandler)
	m.srv = &http.Server{Handler: mux, ReadHeaderTimeout: m.opts.HandshakeTimeout}
	srv := m.srv
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.WithError(err).Warn("peer listener stopped")
		}
	}()

	m.logger.WithFields(logrus.Fields{"peer": m.id, "role": RoleHost}).Info("waiting for guest")
	return m.id, nil
}

// acceptHandler upgrades the one guest connection and then serves the link
// for its lifetime. Later connection attempts are refused.
func (m *Manager) acceptHandler(w http.ResponseWriter, r *http.Request) {
	token, err := uuid.Parse(strings.TrimPrefix(r.URL.Path, "/peer/"))
	if err != nil || token != m.token {
		http.Error(w, "unknown link", http.StatusNotFound)
		return
	}

	m.mu.Lock()
	if m.state != StateConnecting || m.accepting {
		m.mu.Unlock()
		m.logger.WithField("remote", r.RemoteAddr).Warn("refusing second guest")
		http.Error(w, "link already taken", http.StatusConflict)
		return
	}
	m.accepting = true
	m.mu.Unlock()

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{Subprotocol},
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		m.logger.WithError(err).Warn("peer websocket accept failed")
		m.release()
		return
	}
	if c.Subprotocol() != Subprotocol {
		c.Close(BadSubprotocolError, "client must speak the peerplay subprotocol")
		m.release()
		return
	}
	if !m.open(c) {
		return
	}
	m.logger.WithFields(logrus.Fields{"peer": m.ID(), "remote": r.RemoteAddr}).Info("guest connected")
	m.run(c)
}

// outboundHost guesses the address other machines reach us on. No packet
// is sent; the UDP dial only selects a route.
func outboundHost() string {
	c, err := net.Dial("udp", "192.0.2.1:9")
	if err != nil {
		return "127.0.0.1"
	}
	defer c.Close()
	if addr, ok := c.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "127.0.0.1"
}

func (m *Manager) release() {
	m.mu.Lock()
	m.accepting = false
	m.mu.Unlock()
}

// ConnectTo dials a host's published id. Stale ids, offline hosts, taken
// links and handshake timeouts all surface as ErrPeerUnreachable.
func (m *Manager) ConnectTo(ctx context.Context, remote PeerID) error {
	token, addr, err := ParsePeerID(string(remote))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPeerUnreachable, err)
	}

	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return ErrLinkExists
	}
	m.state = StateConnecting
	m.role = RoleGuest
	m.id = remote
	m.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, m.opts.HandshakeTimeout)
	defer cancel()
	c, _, err := websocket.Dial(dialCtx, "ws://"+addr+"/peer/"+token.String(), &websocket.DialOptions{
		Subprotocols: []string{Subprotocol},
	})
	if err != nil {
		m.reset()
		return fmt.Errorf("%w: dial %s: %v", ErrPeerUnreachable, remote, err)
	}
	if c.Subprotocol() != Subprotocol {
		c.Close(BadSubprotocolError, "server must speak the peerplay subprotocol")
		m.reset()
		return fmt.Errorf("%w: %s did not negotiate %s", ErrPeerUnreachable, remote, Subprotocol)
	}
	if !m.open(c) {
		return ErrLinkClosed
	}
	m.logger.WithFields(logrus.Fields{"peer": remote, "role": RoleGuest}).Info("connected to host")
	go m.run(c)
	return nil
}

// reset returns a guest to idle after a failed dial so the caller may retry.
func (m *Manager) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateConnecting {
		m.state = StateIdle
		m.role = RoleNone
		m.id = ""
	}
}

func (m *Manager) open(c *websocket.Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateClosed {
		c.CloseNow()
		return false
	}
	c.SetReadLimit(m.opts.ReadLimit)
	m.conn = c
	m.state = StateOpen
	return true
}

// Send queues an envelope without blocking. It reports false when the link is
// not open or the send buffer is full.
func (m *Manager) Send(env protocol.Envelope) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateOpen {
		return false
	}
	select {
	case m.out <- env:
		return true
	default:
		m.logger.WithField("type", env.Type).Warn("peer send buffer full, dropping message")
		return false
	}
}

// Close flushes queued envelopes, closes the link and stops listening.
// It is safe to call from any goroutine, including a handler, and more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return nil
	}
	m.state = StateClosed
	m.closedLocally = true
	srv, conn := m.srv, m.conn
	m.mu.Unlock()

	m.quitOnce.Do(func() { close(m.quit) })
	if srv != nil {
		srv.Close()
	}
	if conn == nil {
		m.finish(nil)
	}
	return nil
}

func (m *Manager) run(c *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := m.logger.WithFields(logrus.Fields{"peer": m.ID(), "role": m.Role()})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.writePump(ctx, cancel, c, logger)
	}()

	if m.handlers.OnOpen != nil {
		m.handlers.OnOpen()
	}
	err := m.readPump(ctx, c, logger)
	cancel()
	wg.Wait()
	c.CloseNow()
	m.finish(err)
}

func (m *Manager) readPump(ctx context.Context, c *websocket.Conn, logger logrus.FieldLogger) error {
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Info("peer link closed normally")
			} else {
				logger.Debugf("peer read ended: %v (status %d)", err, status)
			}
			return err
		}
		if typ != websocket.MessageText {
			m.malformed(logger, data, fmt.Errorf("%w: binary frame", protocol.ErrMalformed))
			continue
		}
		env, err := protocol.Decode(data)
		if err != nil {
			m.malformed(logger, data, err)
			continue
		}
		if env.Type == protocol.TypePing {
			if ping, err := env.Ping(); err == nil {
				m.Send(protocol.MustNew(protocol.TypePong, ping))
			}
			continue
		}
		if m.handlers.OnMessage != nil {
			m.handlers.OnMessage(env)
		}
	}
}

func (m *Manager) malformed(logger logrus.FieldLogger, data []byte, err error) {
	logger.WithError(err).Warn("dropping malformed frame")
	if m.handlers.OnMalformed != nil {
		m.handlers.OnMalformed(data, err)
	}
}

// writePump serialises every write on the link and sends keepalive pings.
// A failed ping or write cancels ctx, which ends the read pump.
func (m *Manager) writePump(ctx context.Context, cancel context.CancelFunc, c *websocket.Conn, logger logrus.FieldLogger) {
	ticker := time.NewTicker(m.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.quit:
			m.drain(c, logger)
			if err := c.Close(websocket.StatusNormalClosure, "link closed"); err != nil {
				logger.Debugf("close handshake: %v", err)
			}
			cancel()
			return
		case env := <-m.out:
			if err := m.write(ctx, c, env); err != nil {
				logger.Warnf("failed to write %s to peer: %v", env.Type, err)
				cancel()
				return
			}
		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, m.opts.PingTimeout)
			err := c.Ping(pingCtx)
			pingCancel()
			if err != nil {
				logger.Warnf("ping failed: %v. Assuming disconnect.", err)
				cancel()
				return
			}
		}
	}
}

func (m *Manager) drain(c *websocket.Conn, logger logrus.FieldLogger) {
	for {
		select {
		case env := <-m.out:
			if err := m.write(context.Background(), c, env); err != nil {
				logger.Debugf("dropping %s during close: %v", env.Type, err)
				return
			}
		default:
			return
		}
	}
}

func (m *Manager) write(ctx context.Context, c *websocket.Conn, env protocol.Envelope) error {
	data, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, m.opts.WriteTimeout)
	defer cancel()
	return c.Write(wctx, websocket.MessageText, data)
}

func (m *Manager) finish(readErr error) {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.state = StateClosed
		local := m.closedLocally
		srv := m.srv
		m.mu.Unlock()

		m.quitOnce.Do(func() { close(m.quit) })
		if srv != nil {
			srv.Close()
		}

		var reason error
		switch status := websocket.CloseStatus(readErr); {
		case local || readErr == nil:
		case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
			reason = ErrPeerClosed
		default:
			reason = fmt.Errorf("%w: %v", ErrConnectionLost, readErr)
		}
		m.logger.WithFields(logrus.Fields{"peer": m.ID(), "reason": reason}).Info("peer link finished")
		if m.handlers.OnClose != nil {
			m.handlers.OnClose(reason)
		}
		close(m.done)
	})
}
