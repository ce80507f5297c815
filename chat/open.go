package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gosuda/portal-chat/chat/api"
	"github.com/gosuda/portal-chat/chat/auth"
	"github.com/gosuda/portal-chat/chat/realtime"
	"github.com/gosuda/portal-chat/chat/room"
	"github.com/gosuda/portal-chat/chat/view"
)

var (
	flagRoomName        string
	flagRoomDescription string
)

var openCmd = &cobra.Command{
	Use:   "open [room-id]",
	Short: "Open the chat view, optionally entering a room",
	Long:  "Open the chat view. Without a room id the room selected in the previous run is entered again.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runOpen,
}

func init() {
	flags := openCmd.Flags()
	flags.StringVar(&flagRoomName, "name", "", "display name of the room (defaults to its id)")
	flags.StringVar(&flagRoomDescription, "description", "", "room description shown in the header")
}

func runOpen(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	local, store, err := openStore()
	if err != nil {
		return err
	}
	defer local.Close()

	user, err := loadUser(store)
	if err != nil {
		return err
	}
	wsURL, err := socketURL(flagAPIURL, flagSocketURL)
	if err != nil {
		return err
	}

	logFile, err := logToFile()
	if err != nil {
		return err
	}
	defer logFile.Close()

	dialCtx, cancelDial := context.WithTimeout(ctx, requestTimeout)
	conn, err := realtime.Dial(dialCtx, wsURL, user.Token)
	cancelDial()
	if err != nil {
		return fmt.Errorf("connect event channel: %w", err)
	}
	defer conn.Close()

	bridge := view.NewBridge()
	session := room.New(room.Config{
		User:     user,
		API:      api.New(flagAPIURL),
		Channel:  conn,
		OnChange: bridge.Snapshot,
		Notify:   bridge.Notify,
	})
	// leave must reach the queue before the connection flushes and closes
	defer session.Close()

	model := view.New(view.Options{
		User:         user,
		Controller:   session,
		Room:         initialRoom(store, args),
		OnRoomChange: rememberRoom(store),
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return bridge.Run(gctx, p.Send)
	})
	g.Go(func() error {
		select {
		case <-conn.Done():
			if err := conn.Err(); err != nil {
				log.Warn().Err(err).Msg("[chat] event channel closed")
				p.Send(view.ErrMsg{Err: err})
			}
		case <-gctx.Done():
		}
		return nil
	})
	g.Go(func() error {
		defer cancel()
		final, err := p.Run()
		if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return fmt.Errorf("run chat view: %w", err)
		}
		if m, ok := final.(view.Model); ok && m.Err() != nil && !errors.Is(m.Err(), room.ErrClosed) {
			return m.Err()
		}
		return nil
	})
	return g.Wait()
}

func initialRoom(store *auth.Store, args []string) *api.Room {
	id := store.LastRoom()
	if len(args) == 1 {
		id = args[0]
	}
	if id == "" {
		return nil
	}
	name := flagRoomName
	if name == "" {
		name = id
	}
	return &api.Room{ID: id, Name: name, Description: flagRoomDescription}
}

func rememberRoom(store *auth.Store) func(*api.Room) {
	return func(r *api.Room) {
		id := ""
		if r != nil {
			id = r.ID
		}
		if err := store.SetLastRoom(id); err != nil {
			log.Warn().Err(err).Msg("[chat] remember room")
		}
	}
}

// logToFile sends logs to <data-path>/chat.log so they stay off the screen.
func logToFile() (*os.File, error) {
	dir, err := dataPath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, "chat.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	log.Logger = zerolog.New(f).With().Timestamp().Logger()
	log.Info().Int("pid", os.Getpid()).Msg("[chat] open")
	return f, nil
}
