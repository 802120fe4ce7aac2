package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/peerplay/internal/peer"
	"github.com/jason-s-yu/peerplay/internal/protocol"
	"github.com/jason-s-yu/peerplay/internal/rules"
	"github.com/jason-s-yu/peerplay/internal/session"
	"github.com/spf13/cobra"
)

var (
	hostGame    string
	hostPrivate bool
	joinPeer    string
	resequence  bool
)

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Open a room and wait for an opponent",
	RunE: func(cmd *cobra.Command, args []string) error {
		game, err := rules.ParseGameType(hostGame)
		if err != nil {
			return err
		}
		e, err := setup()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		c, t := newTable(e, cmd.OutOrStdout())
		err = e.withAuth(ctx, func() error {
			room, err := c.Host(ctx, game, e.me.Name, hostPrivate)
			if err != nil {
				return err
			}
			t.printf("hosting %s room %s\n", game, room.ID)
			if hostPrivate {
				t.printf("private room; share this link id: %s\n", room.HostID)
			}
			return nil
		})
		if err != nil {
			return err
		}
		return t.play(ctx, c, cmd.InOrStdin())
	},
}

var joinCmd = &cobra.Command{
	Use:   "join [room-id]",
	Short: "Join a waiting room, or a host's link id with --peer",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if (len(args) == 1) == (joinPeer != "") {
			return errors.New("give either a room id or --peer")
		}
		e, err := setup()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		c, t := newTable(e, cmd.OutOrStdout())
		if joinPeer != "" {
			err = c.JoinPeer(ctx, peer.PeerID(joinPeer), e.me.Name)
		} else {
			id, perr := uuid.Parse(args[0])
			if perr != nil {
				return fmt.Errorf("invalid room id %q", args[0])
			}
			err = e.withAuth(ctx, func() error { return c.Join(ctx, id, e.me.Name) })
		}
		if errors.Is(err, session.ErrRoomTaken) {
			return errors.New("someone else joined that room first; pick another")
		}
		if err != nil {
			return err
		}
		return t.play(ctx, c, cmd.InOrStdin())
	},
}

func init() {
	hostCmd.Flags().StringVar(&hostGame, "game", string(rules.Gomoku), "game type")
	hostCmd.Flags().BoolVar(&hostPrivate, "private", false, "keep the room out of the public listing")
	joinCmd.Flags().StringVar(&joinPeer, "peer", "", "connect straight to a host's link id")
	for _, c := range []*cobra.Command{hostCmd, joinCmd} {
		c.Flags().BoolVar(&resequence, "resequence", false, "buffer moves that arrive out of order")
	}
}

// table prints session events. Callbacks arrive on the controller's
// notifier goroutine, so output is serialised with a mutex.
type table struct {
	mu  sync.Mutex
	out io.Writer
	me  rules.Player
}

func newTable(e *env, out io.Writer) (*session.Controller, *table) {
	t := &table{out: out}
	opts := session.DefaultOptions()
	opts.Peer = peer.Options{
		ListenAddr:       e.cfg.Peer.Listen,
		AdvertiseHost:    e.cfg.Peer.AdvertiseHost,
		HandshakeTimeout: e.cfg.Peer.HandshakeTimeout,
		PingInterval:     e.cfg.Peer.PingInterval,
		SendBuffer:       e.cfg.Peer.SendBuffer,
	}
	opts.Resequence = resequence

	var c *session.Controller
	c = session.NewController(e.client, opts, session.Events{
		OnState: func(s session.State) {
			switch s {
			case session.StateHostConnected:
				t.printf("opponent connected\n")
			case session.StatePlaying:
				t.mu.Lock()
				t.me = c.Me()
				t.mu.Unlock()
				t.printf("playing %s against %s\n", t.side(), c.Opponent())
			}
		},
		OnUpdate: t.show,
		OnChat: func(m protocol.ChatPayload) {
			t.printf("<%s> %s\n", m.From, m.Text)
		},
		OnError: func(err error) {
			t.printf("! %v\n", err)
		},
		OnEnded: func(err error) {
			switch {
			case err == nil:
				t.printf("left the game\n")
			case errors.Is(err, session.ErrOpponentLeft):
				t.printf("your opponent left\n")
			default:
				t.printf("connection lost: %v\n", err)
			}
		},
	}, e.logger)
	return c, t
}

func (t *table) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format, args...)
}

func (t *table) side() rules.Player {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.me
}

func (t *table) show(g *rules.GameState) {
	me := t.side()
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprint(t.out, renderBoard(g, me))
	switch {
	case g.Draw:
		fmt.Fprintln(t.out, "draw")
	case g.Winner == me:
		fmt.Fprintln(t.out, "you win")
	case g.Winner != rules.NoPlayer:
		fmt.Fprintln(t.out, "you lose")
	case g.CurrentTurn == me:
		fmt.Fprintln(t.out, "your move")
	default:
		fmt.Fprintln(t.out, "waiting for opponent")
	}
}

// play reads commands from in until the session ends or ctx is cancelled.
func (t *table) play(ctx context.Context, c *session.Controller, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-c.Done():
				return
			}
		}
	}()

	leave := func() error {
		leaveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return c.Leave(leaveCtx)
	}
	for {
		select {
		case <-ctx.Done():
			return leave()
		case <-c.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return leave()
			}
			if quit := t.command(c, strings.TrimSpace(line)); quit {
				return leave()
			}
		}
	}
}

func (t *table) command(c *session.Controller, line string) (quit bool) {
	switch {
	case line == "":
		return false
	case line == "/quit":
		return true
	case line == "/board":
		if g := c.Game(); g != nil {
			t.show(g)
		}
	case strings.HasPrefix(line, "/chat "):
		if err := c.Chat(strings.TrimPrefix(line, "/chat ")); err != nil {
			t.printf("! %v\n", err)
		}
	default:
		g := c.Game()
		if g == nil {
			t.printf("! no game yet\n")
			return false
		}
		pos, err := parseMove(g.Game, strings.Fields(line))
		if err == nil {
			err = c.PlaceMove(pos)
		}
		if err != nil {
			t.printf("! %v\n", err)
		}
	}
	return false
}
