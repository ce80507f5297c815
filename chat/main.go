package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:               "chat",
	Short:             "Terminal client for the portal chat backend",
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

var (
	flagAPIURL    string
	flagSocketURL string
	flagDataPath  string
	flagDebug     bool
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagAPIURL, "api-url", envOr("CHAT_API_URL", "http://localhost:5000"), "chat backend base URL (from env CHAT_API_URL if set)")
	flags.StringVar(&flagSocketURL, "socket-url", os.Getenv("CHAT_SOCKET_URL"), "event channel websocket URL; derived from --api-url when empty (from env CHAT_SOCKET_URL if set)")
	flags.StringVar(&flagDataPath, "data-path", "", "directory for the local session store (default <user config dir>/portal-chat)")
	flags.BoolVar(&flagDebug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(loginCmd, registerCmd, logoutCmd, whoamiCmd, historyCmd, openCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute chat command")
	}
}

func setupLogging(cmd *cobra.Command, args []string) error {
	level := zerolog.InfoLevel
	if flagDebug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()
	return nil
}
