package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosuda/portal-chat/chat/api"
	"github.com/gosuda/portal-chat/chat/auth"
)

const requestTimeout = 15 * time.Second

var (
	flagEmail    string
	flagPassword string
	flagUsername string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and remember the session",
	Args:  cobra.NoArgs,
	RunE:  runLogin,
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account",
	Args:  cobra.NoArgs,
	RunE:  runRegister,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged in user",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

func init() {
	for _, c := range []*cobra.Command{loginCmd, registerCmd} {
		c.Flags().StringVar(&flagEmail, "email", "", "account email")
		c.Flags().StringVar(&flagPassword, "password", "", "account password")
	}
	registerCmd.Flags().StringVar(&flagUsername, "username", "", "display name")
}

// errNotLoggedIn is what commands needing a session report instead of
// auth.ErrUnauthenticated.
var errNotLoggedIn = errors.New("not logged in; run `chat login` first")

func runLogin(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()

	u, err := api.New(flagAPIURL).Login(ctx, flagEmail, flagPassword)
	if err != nil {
		log.Debug().Err(err).Msg("[chat] login")
		return fmt.Errorf("login failed: %s", api.Describe(err))
	}

	local, store, err := openStore()
	if err != nil {
		return err
	}
	defer local.Close()
	if err := store.Save(u); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", u.Username)
	return nil
}

func runRegister(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()

	u, err := api.New(flagAPIURL).Register(ctx, flagEmail, flagPassword, flagUsername)
	if err != nil {
		log.Debug().Err(err).Msg("[chat] register")
		return fmt.Errorf("registration failed: %s", api.Describe(err))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Account created for %s. Log in with `chat login`.\n", u.Username)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	local, store, err := openStore()
	if err != nil {
		return err
	}
	defer local.Close()
	if err := store.Clear(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	local, store, err := openStore()
	if err != nil {
		return err
	}
	defer local.Close()
	u, err := loadUser(store)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s <%s> (%s)\n", u.Username, u.Email, u.ID)
	return nil
}

func loadUser(store *auth.Store) (api.User, error) {
	u, err := store.Load()
	if errors.Is(err, auth.ErrUnauthenticated) {
		return api.User{}, errNotLoggedIn
	}
	return u, err
}
