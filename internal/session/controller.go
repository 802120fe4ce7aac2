// Package session runs one game between two peers: the host/guest
// handshake, local turn enforcement and disconnect handling. Moves travel
// only over the peer link; the directory is used for matchmaking alone.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/peerplay/internal/directory"
	"github.com/jason-s-yu/peerplay/internal/models"
	"github.com/jason-s-yu/peerplay/internal/peer"
	"github.com/jason-s-yu/peerplay/internal/protocol"
	"github.com/jason-s-yu/peerplay/internal/rules"
	"github.com/sirupsen/logrus"
)

// State is the session lifecycle. Hosts go idle → hosting → host-connected →
// playing → ended; guests go idle → joining → connected → playing → ended.
type State string

const (
	StateIdle          State = "idle"
	StateHosting       State = "hosting"
	StateHostConnected State = "host-connected"
	StateJoining       State = "joining"
	StateConnected     State = "connected"
	StatePlaying       State = "playing"
	StateEnded         State = "ended"
)

var (
	ErrRoomTaken    = errors.New("room already taken")
	ErrOpponentLeft = errors.New("opponent left the game")
	ErrDisconnected = errors.New("opponent disconnected")
	ErrNotPlaying   = errors.New("no game in progress")
	ErrBusy         = errors.New("session already started")
	ErrNoDirectory  = errors.New("no room directory configured")
	ErrBadSync      = errors.New("unusable state sync")
	ErrSendFailed   = errors.New("peer link is not accepting messages")
	ErrEnded        = errors.New("session ended")
)

// roomCloseTimeout bounds the best-effort room close after the opponent goes away.
const roomCloseTimeout = 5 * time.Second

// Events are delivered in order on a dedicated goroutine. Any may be nil.
type Events struct {
	OnState  func(State)
	OnUpdate func(*rules.GameState)
	OnChat   func(protocol.ChatPayload)
	// OnError reports dropped or rejected inbound messages. The session goes on.
	OnError func(error)
	// OnEnded fires once with nil after Leave, ErrOpponentLeft or ErrDisconnected.
	OnEnded func(error)
}

type Options struct {
	Peer peer.Options
	// Resequence buffers early moves for transports that may reorder frames.
	Resequence     bool
	SequenceWindow int
}

func DefaultOptions() Options {
	return Options{Peer: peer.DefaultOptions()}
}

// Controller runs a single session. Once ended it cannot be reused.
type Controller struct {
	dir    directory.Directory
	opts   Options
	events Events
	logger logrus.FieldLogger
	notify *notifier

	mu         sync.Mutex
	state      State
	role       peer.Role
	me         rules.Player
	name       string
	opponent   string
	expectGame rules.GameType
	engine     rules.Engine
	game       *rules.GameState
	room       *models.Room
	link       *peer.Manager
	seq        *protocol.Sequencer
	endErr     error
	ended      chan struct{}
}

// NewController builds an idle session. dir may be nil when only JoinPeer is used.
func NewController(dir directory.Directory, opts Options, events Events, logger logrus.FieldLogger) *Controller {
	return &Controller{
		dir:    dir,
		opts:   opts,
		events: events,
		logger: logger,
		notify: newNotifier(),
		state:  StateIdle,
		ended:  make(chan struct{}),
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Game returns a copy of the current game, or nil outside a game.
func (c *Controller) Game() *rules.GameState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.game == nil {
		return nil
	}
	return c.game.Clone()
}

// Me is the side this peer plays: black for hosts, white for guests.
func (c *Controller) Me() rules.Player {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.me
}

func (c *Controller) Opponent() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opponent
}

// Room returns the directory room of this session, if any.
func (c *Controller) Room() (models.Room, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room == nil {
		return models.Room{}, false
	}
	return *c.room, true
}

// Done is closed when the session ends; Err then returns the reason.
func (c *Controller) Done() <-chan struct{} { return c.ended }

func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endErr
}

func (c *Controller) log() logrus.FieldLogger {
	fields := logrus.Fields{"role": c.role, "state": c.state}
	if c.room != nil {
		fields["room"] = c.room.ID
	}
	return c.logger.WithFields(fields)
}

func (c *Controller) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	if f := c.events.OnState; f != nil {
		c.notify.emit(func() { f(s) })
	}
}

func (c *Controller) emitUpdateLocked() {
	if f := c.events.OnUpdate; f != nil && c.game != nil {
		g := c.game.Clone()
		c.notify.emit(func() { f(g) })
	}
}

func (c *Controller) rejectLocked(err error) {
	c.log().WithError(err).Warn("dropping inbound message")
	if f := c.events.OnError; f != nil {
		c.notify.emit(func() { f(err) })
	}
}

// newLink builds a peer manager whose callbacks are ignored once the
// controller has moved on to another link or ended.
func (c *Controller) newLink() *peer.Manager {
	var link *peer.Manager
	link = peer.NewManager(c.opts.Peer, peer.Handlers{
		OnOpen:      func() { c.onOpen(link) },
		OnMessage:   func(env protocol.Envelope) { c.onMessage(link, env) },
		OnClose:     func(err error) { c.onClose(link, err) },
		OnMalformed: func(_ []byte, err error) { c.onMalformed(link, err) },
	}, c.logger)
	if c.opts.Resequence {
		c.seq = protocol.NewSequencer(0, c.opts.SequenceWindow)
	}
	return link
}

// abort returns a failed host or join attempt to idle so the user can retry.
func (c *Controller) abort(link *peer.Manager) {
	c.mu.Lock()
	if c.link == link {
		c.link = nil
		c.role, c.me, c.opponent, c.expectGame = peer.RoleNone, rules.NoPlayer, "", ""
		c.engine, c.game, c.room, c.seq = nil, nil, nil, nil
		c.setStateLocked(StateIdle)
	}
	c.mu.Unlock()
	link.Close()
}

func (c *Controller) begin(s State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return fmt.Errorf("%w: %s", ErrBusy, c.state)
	}
	c.setStateLocked(s)
	return nil
}

// stillIn reports whether the session is still in s and, when link is
// non-nil, still owns it. Leave may end the session while Host or Join
// waits on the network.
func (c *Controller) stillIn(s State, link *peer.Manager) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == s && (link == nil || c.link == link)
}

// dropRoom closes a room this session claimed or created but will not use.
func (c *Controller) dropRoom(ctx context.Context, id uuid.UUID) {
	if _, err := c.dir.CloseRoom(ctx, id); err != nil {
		c.logger.WithError(err).WithField("room", id).Warn("failed to close abandoned room")
	}
}

func (c *Controller) backToIdle() {
	c.mu.Lock()
	if c.state == StateJoining && c.link == nil {
		c.room = nil
		c.setStateLocked(StateIdle)
	}
	c.mu.Unlock()
}

// Host opens a link, publishes it as a waiting room and plays black once a
// guest connects and asks for the state.
func (c *Controller) Host(ctx context.Context, gameType rules.GameType, hostName string, private bool) (models.Room, error) {
	if c.dir == nil {
		return models.Room{}, ErrNoDirectory
	}
	engine, err := rules.For(gameType)
	if err != nil {
		return models.Room{}, err
	}
	if err := c.begin(StateHosting); err != nil {
		return models.Room{}, err
	}

	c.mu.Lock()
	if c.state != StateHosting {
		c.mu.Unlock()
		return models.Room{}, ErrEnded
	}
	link := c.newLink()
	c.link, c.role, c.me, c.name = link, peer.RoleHost, rules.Black, hostName
	c.engine, c.game = engine, engine.NewState()
	c.mu.Unlock()

	id, err := link.CreateLink(ctx)
	if err != nil {
		c.abort(link)
		return models.Room{}, err
	}
	if !c.stillIn(StateHosting, link) {
		link.Close()
		return models.Room{}, ErrEnded
	}
	room, err := c.dir.CreateRoom(ctx, hostName, id.String(), gameType, private)
	if err != nil {
		c.abort(link)
		return models.Room{}, fmt.Errorf("creating room: %w", err)
	}

	c.mu.Lock()
	if c.link != link {
		// Left while the room was being created; nobody will host it.
		c.mu.Unlock()
		link.Close()
		c.dropRoom(ctx, room.ID)
		return models.Room{}, ErrEnded
	}
	c.room = &room
	c.log().WithFields(logrus.Fields{"game": gameType, "peer": id}).Info("hosting room")
	c.mu.Unlock()
	return room, nil
}

// Join claims a waiting room and connects to its host. Losing the claim
// returns ErrRoomTaken and leaves the controller idle.
func (c *Controller) Join(ctx context.Context, roomID uuid.UUID, name string) error {
	if c.dir == nil {
		return ErrNoDirectory
	}
	if err := c.begin(StateJoining); err != nil {
		return err
	}
	joined, err := c.dir.TryJoinRoom(ctx, roomID)
	if err != nil {
		c.backToIdle()
		return err
	}
	if !joined {
		c.backToIdle()
		return ErrRoomTaken
	}
	if !c.stillIn(StateJoining, nil) {
		c.dropRoom(ctx, roomID)
		return ErrEnded
	}
	room, err := c.dir.GetRoom(ctx, roomID)
	if err != nil {
		c.backToIdle()
		return err
	}

	c.mu.Lock()
	if c.state != StateJoining {
		c.mu.Unlock()
		c.dropRoom(ctx, roomID)
		return ErrEnded
	}
	c.room, c.expectGame = &room, room.GameType
	c.mu.Unlock()

	if err := c.connect(ctx, peer.PeerID(room.HostID), name); err != nil {
		// The host is gone or we left; nobody else can use this room.
		c.dropRoom(ctx, room.ID)
		return err
	}
	return nil
}

// JoinPeer connects straight to a host's link id without the directory.
func (c *Controller) JoinPeer(ctx context.Context, id peer.PeerID, name string) error {
	if err := c.begin(StateJoining); err != nil {
		return err
	}
	return c.connect(ctx, id, name)
}

func (c *Controller) connect(ctx context.Context, id peer.PeerID, name string) error {
	c.mu.Lock()
	if c.state != StateJoining {
		c.mu.Unlock()
		return ErrEnded
	}
	link := c.newLink()
	c.link, c.role, c.me, c.name = link, peer.RoleGuest, rules.White, name
	c.mu.Unlock()

	if err := link.ConnectTo(ctx, id); err != nil {
		c.abort(link)
		if c.State() == StateEnded {
			return ErrEnded
		}
		return err
	}
	c.mu.Lock()
	owned := c.link == link
	c.mu.Unlock()
	if !owned {
		link.Close()
		return ErrEnded
	}
	return nil
}

// PlaceMove validates and applies a local move, then sends it. Illegal
// moves fail here without touching the network.
func (c *Controller) PlaceMove(pos rules.Position) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StatePlaying {
		return ErrNotPlaying
	}
	if c.game.CurrentTurn != c.me {
		if c.game.Over() {
			return rules.ErrGameOver
		}
		return rules.ErrNotYourTurn
	}
	next, err := rules.Play(c.engine, c.game, pos, c.me)
	if err != nil {
		return err
	}
	mv := *next.LastMove
	if !c.link.Send(protocol.MustNew(protocol.TypeMove, protocol.MoveFrom(mv))) {
		return ErrSendFailed
	}
	c.game = next
	if c.seq != nil {
		c.seq.Advance(mv.Seq)
	}
	c.log().WithFields(logrus.Fields{"seq": mv.Seq, "pos": mv.Position}).Debug("move sent")
	c.emitUpdateLocked()
	return nil
}

// Chat sends a line of text to the opponent.
func (c *Controller) Chat(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateHostConnected, StateConnected, StatePlaying:
	default:
		return ErrNotPlaying
	}
	msg := protocol.ChatPayload{From: c.name, Text: text, TS: time.Now().UTC()}
	if !c.link.Send(protocol.MustNew(protocol.TypeChat, msg)) {
		return ErrSendFailed
	}
	return nil
}

// Leave tells the opponent, closes the link and closes the room. It ends the
// session from any state and is safe to call more than once.
func (c *Controller) Leave(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateEnded {
		c.mu.Unlock()
		return nil
	}
	link, room := c.link, c.room
	if link != nil {
		link.Send(protocol.MustNew(protocol.TypeLeave, protocol.LeavePayload{Reason: "left"}))
	}
	c.endLocked(nil)
	c.mu.Unlock()

	if link != nil {
		link.Close()
	}
	if room != nil && c.dir != nil {
		if _, err := c.dir.CloseRoom(ctx, room.ID); err != nil {
			c.logger.WithError(err).WithField("room", room.ID).Warn("failed to close room on leave")
		}
	}
	return nil
}

// endLocked moves to the terminal state and discards the game.
func (c *Controller) endLocked(reason error) {
	if c.state == StateEnded {
		return
	}
	log := c.log()
	if reason != nil {
		log = log.WithError(reason)
	}
	log.Info("session ended")
	c.link = nil
	c.game = nil
	c.seq = nil
	c.endErr = reason
	c.setStateLocked(StateEnded)
	if f := c.events.OnEnded; f != nil {
		c.notify.emit(func() { f(reason) })
	}
	c.notify.finish()
	close(c.ended)
}

// closeRoomLater closes the room in the background after the opponent left.
func (c *Controller) closeRoomLater(room *models.Room) {
	if room == nil || c.dir == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), roomCloseTimeout)
		defer cancel()
		if _, err := c.dir.CloseRoom(ctx, room.ID); err != nil {
			c.logger.WithError(err).WithField("room", room.ID).Warn("failed to close room")
		}
	}()
}

func (c *Controller) onOpen(link *peer.Manager) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link != link {
		return
	}
	switch c.role {
	case peer.RoleHost:
		c.setStateLocked(StateHostConnected)
		if c.room != nil && c.dir != nil {
			go c.markRoomTaken(c.room.ID)
		}
	case peer.RoleGuest:
		c.setStateLocked(StateConnected)
		c.link.Send(protocol.MustNew(protocol.TypeSyncRequest, protocol.SyncRequestPayload{Name: c.name}))
	}
}

// markRoomTaken takes a room a guest reached directly off the lobby. It is a
// no-op when the guest already claimed it.
func (c *Controller) markRoomTaken(id uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), roomCloseTimeout)
	defer cancel()
	if _, err := c.dir.TryJoinRoom(ctx, id); err != nil {
		c.logger.WithError(err).WithField("room", id).Warn("failed to mark room taken")
	}
}

func (c *Controller) onMessage(link *peer.Manager, env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeMove:
		c.onMove(link, env)
	case protocol.TypeSyncRequest:
		c.onSyncRequest(link, env)
	case protocol.TypeFullStateSync:
		c.onSync(link, env)
	case protocol.TypeChat:
		c.onChat(link, env)
	case protocol.TypeLeave:
		c.onLeave(link)
	case protocol.TypePong:
		c.logger.Debug("pong")
	}
}

func (c *Controller) onMalformed(link *peer.Manager, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link != link {
		return
	}
	c.rejectLocked(err)
	if c.state == StatePlaying {
		c.resyncLocked()
	}
}

// resyncLocked realigns the peers: the host pushes its state, the guest asks for it.
func (c *Controller) resyncLocked() {
	switch c.role {
	case peer.RoleHost:
		c.sendSyncLocked()
	case peer.RoleGuest:
		c.link.Send(protocol.MustNew(protocol.TypeSyncRequest, protocol.SyncRequestPayload{Name: c.name}))
	}
}

func (c *Controller) sendSyncLocked() {
	c.link.Send(protocol.MustNew(protocol.TypeFullStateSync, protocol.SyncPayload{
		Game:     c.engine.Type(),
		History:  c.game.History,
		State:    c.game,
		YouAre:   rules.White,
		HostName: c.name,
	}))
	if c.seq != nil {
		c.seq.Reset(len(c.game.History))
	}
}

func (c *Controller) onMove(link *peer.Manager, env protocol.Envelope) {
	m, err := env.Move()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link != link {
		return
	}
	if err != nil {
		c.rejectLocked(err)
		return
	}
	if c.state != StatePlaying {
		c.rejectLocked(fmt.Errorf("%w: move %d while %s", ErrNotPlaying, m.MoveNumber, c.state))
		return
	}
	if c.seq == nil {
		c.applyInboundLocked(m)
		return
	}
	ready, err := c.seq.Push(m)
	if err != nil {
		c.rejectLocked(err)
		c.resyncLocked()
		return
	}
	for _, r := range ready {
		if !c.applyInboundLocked(r) {
			return
		}
	}
}

// applyInboundLocked re-validates an opponent's move. Rejected moves leave
// the game untouched and realign the peers.
func (c *Controller) applyInboundLocked(m protocol.MovePayload) bool {
	if err := protocol.CheckSequence(len(c.game.History), m.MoveNumber); err != nil {
		c.rejectLocked(err)
		c.resyncLocked()
		return false
	}
	if m.Player != c.me.Opponent() || m.Player != c.game.CurrentTurn {
		c.rejectLocked(fmt.Errorf("%w: move %d by %s", rules.ErrNotYourTurn, m.MoveNumber, m.Player))
		c.resyncLocked()
		return false
	}
	next, err := rules.Play(c.engine, c.game, m.Position(), m.Player)
	if err != nil {
		c.rejectLocked(fmt.Errorf("move %d %s: %w", m.MoveNumber, m.Position(), err))
		c.resyncLocked()
		return false
	}
	c.game = next
	c.log().WithFields(logrus.Fields{"seq": m.MoveNumber, "pos": m.Position()}).Debug("move received")
	c.emitUpdateLocked()
	return true
}

func (c *Controller) onSyncRequest(link *peer.Manager, env protocol.Envelope) {
	req, err := env.SyncRequest()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link != link {
		return
	}
	if err != nil {
		c.rejectLocked(err)
		return
	}
	if c.role != peer.RoleHost || (c.state != StateHostConnected && c.state != StatePlaying) {
		c.rejectLocked(fmt.Errorf("%w: unexpected sync request while %s", protocol.ErrWrongType, c.state))
		return
	}
	c.sendSyncLocked()
	if c.state == StateHostConnected {
		c.opponent = req.Name
		c.setStateLocked(StatePlaying)
		c.log().WithField("opponent", req.Name).Info("game started")
		c.emitUpdateLocked()
	}
}

func (c *Controller) onSync(link *peer.Manager, env protocol.Envelope) {
	s, err := env.Sync()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link != link {
		return
	}
	if err != nil {
		c.rejectLocked(err)
		return
	}
	if c.role != peer.RoleGuest || (c.state != StateConnected && c.state != StatePlaying) {
		c.rejectLocked(fmt.Errorf("%w: unexpected state sync while %s", protocol.ErrWrongType, c.state))
		return
	}

	engine, err := rules.For(s.Game)
	if err == nil && c.expectGame != "" && s.Game != c.expectGame {
		err = fmt.Errorf("host plays %s, room is %s", s.Game, c.expectGame)
	}
	if err == nil && s.YouAre != rules.White {
		err = fmt.Errorf("host assigned %q", s.YouAre)
	}
	var game *rules.GameState
	if err == nil {
		game, err = rules.Replay(engine, s.History)
	}
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrBadSync, err)
		c.rejectLocked(err)
		return
	}

	c.engine, c.game = engine, game
	if c.seq != nil {
		c.seq.Reset(len(game.History))
	}
	if c.state == StateConnected {
		c.opponent = s.HostName
		c.setStateLocked(StatePlaying)
		c.log().WithFields(logrus.Fields{"opponent": s.HostName, "game": s.Game}).Info("game started")
	}
	c.emitUpdateLocked()
}

func (c *Controller) onChat(link *peer.Manager, env protocol.Envelope) {
	msg, err := env.Chat()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link != link {
		return
	}
	if err != nil {
		c.rejectLocked(err)
		return
	}
	if f := c.events.OnChat; f != nil {
		c.notify.emit(func() { f(msg) })
	}
}

func (c *Controller) onLeave(link *peer.Manager) {
	c.mu.Lock()
	if c.link != link {
		c.mu.Unlock()
		return
	}
	room := c.room
	c.endLocked(ErrOpponentLeft)
	c.mu.Unlock()

	link.Close()
	c.closeRoomLater(room)
}

func (c *Controller) onClose(link *peer.Manager, err error) {
	c.mu.Lock()
	if c.link != link {
		c.mu.Unlock()
		return
	}
	room := c.room
	reason := ErrDisconnected
	if err != nil {
		reason = fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	c.endLocked(reason)
	c.mu.Unlock()

	c.closeRoomLater(room)
}
