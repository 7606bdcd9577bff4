package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haivivi/lifeline/pkg/capture"
	"github.com/haivivi/lifeline/pkg/cli"
	"github.com/haivivi/lifeline/pkg/exam"
	openairealtime "github.com/haivivi/lifeline/pkg/openai-realtime"
	"github.com/haivivi/lifeline/pkg/tools"
	"github.com/haivivi/lifeline/pkg/voicesession"
)

var talkCmd = &cobra.Command{
	Use:   "talk",
	Short: "Run a realtime voice session in the terminal",
	Long: `Start a realtime voice session and print the transcript as it happens.

Audio is streamed from an Ogg/Opus file (--ogg) or is silence. Lines typed
on stdin are sent as text messages. Commands:

  /stop    stop the session
  /start   start it again
  /quit    exit

Session settings can be loaded from a YAML or JSON file with -f:

  voice: verse
  instructions: You guide the user through a health examination.
  seed_prompt: Hello, let's begin.
  tool_timeout: 10s

Examples:
  lifeline talk --voice verse
  lifeline talk --exam <id> --ogg mic.ogg --loop
  lifeline talk -f session.yaml`,
	Args: cobra.NoArgs,
	RunE: runTalk,
}

func init() {
	f := talkCmd.Flags()
	f.StringP("file", "f", "", "session settings file (YAML or JSON)")
	f.String("voice", "", "assistant voice (overrides context)")
	f.String("model", "", "realtime model (overrides context)")
	f.String("instructions", "", "system instructions")
	f.String("seed", "", "first user message sent when the session opens")
	f.String("ogg", "", "Ogg/Opus file streamed as microphone input")
	f.Bool("loop", false, "loop the --ogg file")
	f.String("exam", "", "exam id to record the conversation into")
	f.String("tools", "", "YAML file of extra tool declarations (overrides context)")
}

// sessionParts holds what buildSession opened besides the session.
type sessionParts struct {
	store    exam.Store
	recorder *exam.Recorder
	close    func()
}

// buildSession wires a session for the context c: token client, SDP
// signaling, tools and exam persistence.
func buildSession(c *cli.Context, cfg voicesession.Config, src capture.Source, toolsFile string) (*voicesession.Session, *sessionParts, error) {
	if c.TokenEndpoint == "" {
		return nil, nil, fmt.Errorf("context %q has no token endpoint; set it with 'lifeline config add-context --token-endpoint'", c.Name)
	}
	if cfg.Voice == "" {
		cfg.Voice = c.Voice
	}
	if cfg.Model == "" {
		cfg.Model = c.Model
	}

	tokens, err := openairealtime.NewTokenClient(c.TokenEndpoint, c.CredentialPath)
	if err != nil {
		return nil, nil, err
	}

	registry := tools.NewRegistry()
	tools.RegisterBuiltins(registry)
	if toolsFile == "" {
		toolsFile = c.ToolsFile
	}
	if toolsFile != "" {
		decls, err := tools.LoadDeclarationsFile(toolsFile)
		if err != nil {
			return nil, nil, err
		}
		registry.Declare(decls...)
	}

	store, closeStore, err := openStore(c)
	if err != nil {
		return nil, nil, err
	}
	recorder := exam.NewRecorder(store)

	s := voicesession.New(cfg,
		voicesession.WithTokenFetcher(tokens),
		voicesession.WithSignaler(&openairealtime.HTTPSignaler{URL: c.RealtimeURL}),
		voicesession.WithSource(src),
		voicesession.WithRegistry(registry),
		voicesession.WithPersistence(recorder),
	)
	registry.Add(exam.StepTool(store, s.ExamID))

	parts := &sessionParts{store: store, recorder: recorder}
	parts.close = func() {
		s.Close()
		recorder.Close()
		closeStore()
	}
	return s, parts, nil
}

func sourceFromFlags(cmd *cobra.Command) capture.Source {
	path, _ := cmd.Flags().GetString("ogg")
	if path == "" {
		return capture.Silence{}
	}
	loop, _ := cmd.Flags().GetBool("loop")
	return capture.OggFile{Path: path, Loop: loop}
}

func runTalk(cmd *cobra.Command, args []string) error {
	c, err := getContext()
	if err != nil {
		return err
	}
	f := cmd.Flags()
	str := func(name string) string {
		v, _ := f.GetString(name)
		return v
	}

	var cfg voicesession.Config
	if path := str("file"); path != "" {
		if err := cli.LoadRequest(path, &cfg); err != nil {
			return err
		}
	}
	if v := str("voice"); v != "" {
		cfg.Voice = v
	}
	if v := str("model"); v != "" {
		cfg.Model = v
	}
	if v := str("instructions"); v != "" {
		cfg.Instructions = v
	}
	if v := str("seed"); v != "" {
		cfg.SeedPrompt = v
	}

	s, parts, err := buildSession(c, cfg, sourceFromFlags(cmd), str("tools"))
	if err != nil {
		return err
	}
	defer parts.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if id := str("exam"); id != "" {
		if err := s.Associate(ctx, id); err != nil {
			return err
		}
	}

	styles := cli.NewStyles(cli.DefaultTheme)
	printer := cli.NewTranscriptPrinter(os.Stdout, styles)
	var (
		lastStatus string
		lastErr    *voicesession.Error
	)
	cancel := s.Subscribe(func(st voicesession.State) {
		printer.Update(st.Transcript)
		if st.Status != lastStatus {
			lastStatus = st.Status
			fmt.Fprintln(os.Stderr, styles.Status(st.Status, st.Volume))
		}
		if st.Err != nil && st.Err != lastErr {
			fmt.Fprintln(os.Stderr, styles.Error.Render(st.Err.Error()))
		}
		lastErr = st.Err
	})
	defer cancel()

	if err := s.Start(ctx); err != nil {
		return err
	}

	// The reader may stay blocked in Scan after ctx is done; the process
	// exits anyway.
	go readCommands(ctx, s, printer, stop)

	<-ctx.Done()
	s.Stop()
	return nil
}

// readCommands reads stdin lines until EOF or /quit. EOF leaves the
// session running.
func readCommands(ctx context.Context, s *voicesession.Session, printer *cli.TranscriptPrinter, quit func()) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit":
			quit()
			return
		case "/stop":
			s.Stop()
			printer.Reset()
			continue
		case "/start":
			if err := s.Toggle(ctx); err != nil {
				cli.PrintError("%v", err)
			}
			continue
		}
		if err := s.SendText(line); err != nil {
			cli.PrintError("%v", err)
		}
	}
}
