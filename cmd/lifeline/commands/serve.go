package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/lifeline/pkg/tokenserver"
	"github.com/haivivi/lifeline/pkg/uibridge"
	"github.com/haivivi/lifeline/pkg/voicesession"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the token endpoint and the WebSocket session bridge",
	Long: `Serve the application backend of lifeline.

Routes:
  POST /api/session   mint a realtime session (needs an OpenAI API key)
  GET  /ws            WebSocket bridge to a server-side voice session

The API key is read from --api-key, the context, or OPENAI_API_KEY. The
bridged session fetches its tokens from the context's token endpoint, or
from this server when none is set.

Examples:
  lifeline serve --listen :3000
  lifeline serve --no-bridge --api-key sk-xxx`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("listen", ":3000", "listen address")
	f.String("api-key", "", "OpenAI API key (overrides context)")
	f.Bool("no-bridge", false, "serve the token endpoint only")
	f.String("voice", "", "voice of the bridged session (overrides context)")
	f.String("ogg", "", "Ogg/Opus file streamed as microphone input of the bridged session")
	f.Bool("loop", false, "loop the --ogg file")
}

// localURL returns an http URL reaching listen from this host.
func localURL(listen string) string {
	if strings.HasPrefix(listen, ":") {
		return "http://127.0.0.1" + listen
	}
	return "http://" + listen
}

func runServe(cmd *cobra.Command, args []string) error {
	c, err := getContextOrDefault()
	if err != nil {
		return err
	}
	f := cmd.Flags()
	listen, _ := f.GetString("listen")
	noBridge, _ := f.GetBool("no-bridge")
	voice, _ := f.GetString("voice")

	apiKey, _ := f.GetString("api-key")
	if apiKey == "" {
		apiKey = c.APIKey
	}
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	if apiKey != "" {
		var opts []tokenserver.MinterOption
		if c.BaseURL != "" {
			opts = append(opts, tokenserver.WithBaseURL(c.BaseURL))
		}
		if c.Model != "" {
			opts = append(opts, tokenserver.WithModel(c.Model))
		}
		mux.Handle(tokenserver.Path, tokenserver.NewHandler(tokenserver.NewOpenAIMinter(apiKey, opts...)))
		slog.Info("token endpoint enabled", "path", tokenserver.Path)
	} else {
		slog.Warn("no OpenAI API key; token endpoint disabled")
	}

	if !noBridge {
		bc := *c
		if bc.TokenEndpoint == "" {
			if apiKey == "" {
				return fmt.Errorf("the bridge needs a token endpoint or an API key")
			}
			bc.TokenEndpoint = localURL(listen) + tokenserver.Path
		}
		s, parts, err := buildSession(&bc, voicesession.Config{Voice: voice}, sourceFromFlags(cmd), "")
		if err != nil {
			return err
		}
		defer parts.close()
		mux.Handle("/ws", uibridge.NewServer(s, uibridge.WithContext(ctx)))
		slog.Info("session bridge enabled", "path", "/ws", "tokens", bc.TokenEndpoint)
	}

	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
