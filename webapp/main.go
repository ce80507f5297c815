package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"gosuda.org/portal/portal/core/cryptoops"
	"gosuda.org/portal/sdk"
)

const shutdownTimeout = 5 * time.Second

var rootCmd = &cobra.Command{
	Use:   "webapp",
	Short: "Serve the built chat front-end with single-page fallback",
	RunE:  runServer,
}

var (
	flagDir        string
	flagPort       int
	flagServerURLs []string
	flagName       string
	flagCredKey    string
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagDir, "dir", "./dist", "directory holding the built front-end (index.html and assets)")
	flags.IntVar(&flagPort, "port", 3000, "local HTTP port (negative to disable)")
	flags.StringSliceVar(&flagServerURLs, "server-url", strings.Split(os.Getenv("RELAY"), ","), "optional relayserver base URL(s) to also expose the app through; repeat or comma-separated (from env RELAY if set)")
	flags.StringVar(&flagName, "name", "portal-chat", "backend display name on the relay")
	flags.StringVar(&flagCredKey, "cred-key", "", "optional credential key to use for the listener (base64 encoded)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute webapp command")
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if info, err := os.Stat(flagDir); err != nil {
		return fmt.Errorf("front-end dir: %w", err)
	} else if !info.IsDir() {
		return fmt.Errorf("front-end dir %s is not a directory", flagDir)
	}
	srv := &http.Server{
		Handler:           NewHandler(os.DirFS(flagDir)),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	var listeners []net.Listener
	if flagPort >= 0 {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", flagPort))
		if err != nil {
			return fmt.Errorf("listen on port %d: %w", flagPort, err)
		}
		log.Info().Str("dir", flagDir).Msgf("[webapp] serving locally at http://127.0.0.1:%d", flagPort)
		listeners = append(listeners, ln)
	}
	if servers := relayServers(flagServerURLs); len(servers) > 0 {
		ln, closeRelay, err := relayListener(servers)
		if err != nil {
			for _, l := range listeners {
				_ = l.Close()
			}
			return err
		}
		defer closeRelay()
		log.Info().Strs("relays", servers).Msg("[webapp] relay listener enabled")
		listeners = append(listeners, ln)
	}
	if len(listeners) == 0 {
		return errors.New("nothing to serve: set --port or --server-url")
	}

	// one http.Server serves every listener, so a single Shutdown drains them all
	g, gctx := errgroup.WithContext(ctx)
	for _, ln := range listeners {
		g.Go(func() error {
			if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve %s: %w", ln.Addr(), err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	err := g.Wait()
	log.Info().Err(err).Msg("[webapp] shutdown complete")
	return err
}

func relayServers(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// relayListener registers the app on the portal relays and returns a
// listener for the connections they forward.
func relayListener(servers []string) (net.Listener, func(), error) {
	cred := sdk.NewCredential()
	if flagCredKey != "" {
		key, err := base64.StdEncoding.DecodeString(flagCredKey)
		if err != nil {
			return nil, nil, fmt.Errorf("decode cred key: %w", err)
		}
		if cred, err = cryptoops.NewCredentialFromPrivateKey(key); err != nil {
			return nil, nil, fmt.Errorf("new credential from private key: %w", err)
		}
	}
	client, err := sdk.NewClient(func(cfg *sdk.RDClientConfig) {
		cfg.BootstrapServers = servers
	})
	if err != nil {
		return nil, nil, fmt.Errorf("new relay client: %w", err)
	}
	ln, err := client.Listen(cred, flagName, []string{"http/1.1"})
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("relay listen: %w", err)
	}
	return ln, func() { _ = client.Close() }, nil
}
