package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gosuda/portal-chat/chat/api"
	"github.com/gosuda/portal-chat/chat/view"
)

var flagLimit int

var historyCmd = &cobra.Command{
	Use:   "history <room-id>",
	Short: "Print the message history of a room",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&flagLimit, "limit", 0, "only print the last N messages (0 for all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	local, store, err := openStore()
	if err != nil {
		return err
	}
	u, err := loadUser(store)
	local.Close()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()
	msgs, err := api.New(flagAPIURL).Messages(ctx, u.Token, args[0])
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			return errNotLoggedIn
		}
		return fmt.Errorf("load history: %s", api.Describe(err))
	}
	if flagLimit > 0 && len(msgs) > flagLimit {
		msgs = msgs[len(msgs)-flagLimit:]
	}

	out := cmd.OutOrStdout()
	for _, m := range msgs {
		who := view.SanitizeName(m.Sender.Username)
		if m.Sender.ID == u.ID {
			who = "You"
		}
		fmt.Fprintf(out, "[%s] %s: %s\n", m.CreatedAt.Local().Format("03:04 PM"), who, view.SanitizeText(m.Content))
	}
	return nil
}
