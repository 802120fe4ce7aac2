package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/jason-s-yu/peerplay/internal/directory"
	"github.com/jason-s-yu/peerplay/internal/models"
	"github.com/jason-s-yu/peerplay/internal/rules"
	"github.com/spf13/cobra"
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Show (and on first use create) the local player identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		if err := e.authorize(cmd.Context(), false); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "player %s\nname   %s\nfile   %s\n", e.me.PlayerID, e.me.Name, e.cfg.Identity.Path)
		return nil
	},
}

var (
	listGame  string
	listWatch bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List waiting rooms",
	RunE: func(cmd *cobra.Command, args []string) error {
		var game rules.GameType
		if listGame != "" {
			g, err := rules.ParseGameType(listGame)
			if err != nil {
				return err
			}
			game = g
		}
		e, err := setup()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if !listWatch {
			rooms, err := e.client.ListWaiting(cmd.Context(), game)
			if err != nil {
				return err
			}
			printRooms(out, rooms)
			return nil
		}

		_, sub, err := directory.WatchLobby(cmd.Context(), e.client, game, func(rooms []models.Room) {
			fmt.Fprintln(out, "--", time.Now().Format(time.TimeOnly))
			printRooms(out, rooms)
		})
		if err != nil {
			return err
		}
		defer sub.Close()
		<-cmd.Context().Done()
		return nil
	},
}

func init() {
	listCmd.Flags().StringVar(&listGame, "game", "", "only this game type")
	listCmd.Flags().BoolVar(&listWatch, "watch", false, "keep the list updated until interrupted")
}

func printRooms(w io.Writer, rooms []models.Room) {
	if len(rooms) == 0 {
		fmt.Fprintln(w, "no waiting rooms")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROOM\tGAME\tHOST\tWAITING")
	for _, r := range rooms {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.GameType, r.HostName, time.Since(r.CreatedAt).Round(time.Second))
	}
	tw.Flush()
}
