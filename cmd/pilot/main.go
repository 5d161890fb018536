// Command pilot runs the autonomous agent: interactively on a terminal, or
// as a websocket gateway.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/pilot-go-sdk/command"
	"github.com/becomeliminal/pilot-go-sdk/core"
	"github.com/becomeliminal/pilot-go-sdk/engine"
	"github.com/becomeliminal/pilot-go-sdk/llm"
	"github.com/becomeliminal/pilot-go-sdk/memory"
	"github.com/becomeliminal/pilot-go-sdk/memory/embedder/mock"
	"github.com/becomeliminal/pilot-go-sdk/memory/embedder/ollama"
	chromemstore "github.com/becomeliminal/pilot-go-sdk/memory/store/chromem"
	"github.com/becomeliminal/pilot-go-sdk/server"
	"github.com/becomeliminal/pilot-go-sdk/workspace"
)

type options struct {
	identityPath  string
	workspaceDir  string
	model         string
	maxIterations int
	destructive   bool
	embedderKind  string
	ollamaURL     string
	addr          string
}

func main() {
	opts := &options{}

	root := &cobra.Command{
		Use:           "pilot",
		Short:         "Autonomous goal-driven agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.identityPath, "identity", "i", "identity.yaml", "identity YAML file (name, role, goals)")
	root.PersistentFlags().StringVarP(&opts.workspaceDir, "workspace", "w", "workspace", "directory the agent may read and write")
	root.PersistentFlags().StringVar(&opts.model, "model", "", "chat model identifier")
	root.PersistentFlags().IntVar(&opts.maxIterations, "max-iterations", 0, "step cap per session (0 = engine default)")
	root.PersistentFlags().BoolVar(&opts.destructive, "allow-destructive", false, "authorize destructive commands (file deletion)")
	root.PersistentFlags().StringVar(&opts.embedderKind, "embedder", "ollama", "memory embedder: ollama, mock, or none")
	root.PersistentFlags().StringVar(&opts.ollamaURL, "ollama-url", "", "Ollama base URL for the embedder")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run an interactive session on this terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInteractive(cmd.Context(), opts)
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve sessions over a websocket gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGateway(cmd.Context(), opts)
		},
	}
	serveCmd.Flags().StringVar(&opts.addr, "addr", ":8080", "listen address")

	root.AddCommand(runCmd, serveCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func buildEngine(opts *options) (*engine.Engine, *core.Identity, error) {
	id, err := core.LoadIdentity(opts.identityPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load identity: %w", err)
	}
	identity := &id

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, nil, fmt.Errorf("ANTHROPIC_API_KEY is not set")
	}

	store, err := workspace.NewLocalStore(opts.workspaceDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open workspace: %w", err)
	}

	registry := command.NewRegistry()
	if err := registry.Register(command.FileOps()...); err != nil {
		return nil, nil, err
	}

	cfg := engine.DefaultConfig()
	if opts.model != "" {
		cfg.Model = opts.model
	}
	if opts.maxIterations > 0 {
		cfg.MaxIterations = opts.maxIterations
	}

	engOpts := []engine.Option{
		engine.WithWorkspace(store),
		engine.WithDestructive(opts.destructive),
	}

	memStore, err := buildMemory(opts)
	if err != nil {
		return nil, nil, err
	}
	if memStore != nil {
		engOpts = append(engOpts, engine.WithMemory(memStore))
	}

	eng := engine.New(llm.NewAnthropic(apiKey), registry, cfg, engOpts...)
	return eng, identity, nil
}

func buildMemory(opts *options) (*memory.Store, error) {
	var embedder memory.Embedder
	switch opts.embedderKind {
	case "none":
		return nil, nil
	case "mock":
		embedder = mock.New()
	case "ollama":
		embedder = ollama.New(ollama.Config{BaseURL: opts.ollamaURL})
	default:
		return nil, fmt.Errorf("unknown embedder %q (want ollama, mock, or none)", opts.embedderKind)
	}

	backend, err := chromemstore.New()
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	return memory.NewStore(backend, embedder, nil)
}

func runInteractive(ctx context.Context, opts *options) error {
	eng, identity, err := buildEngine(opts)
	if err != nil {
		return err
	}

	sess, err := eng.StartSession(ctx, identity)
	if err != nil {
		return err
	}
	defer sess.Stop()

	fmt.Printf("Welcome back, %s. Press Enter to authorize each step, type feedback to\nredirect, or 'exit' to quit.\n\n", identity.Name)

	stdin := bufio.NewScanner(os.Stdin)
	input := command.Start
	for {
		res, err := sess.Step(ctx, input)
		if err != nil {
			return err
		}

		fmt.Println(res.Log)
		fmt.Println("SYSTEM:", res.Result.Feedback())

		if res.State == engine.StateCompleted {
			fmt.Println("Session completed.")
			return nil
		}

		fmt.Print("Input: ")
		if !stdin.Scan() {
			return nil
		}
		input = strings.TrimSpace(stdin.Text())
		if input == "exit" {
			return nil
		}
	}
}

func runGateway(ctx context.Context, opts *options) error {
	eng, identity, err := buildEngine(opts)
	if err != nil {
		return err
	}
	log.Printf("[WS] Serving sessions for %s", identity.Name)
	return server.New(eng, identity, &server.Config{Addr: opts.addr}).ListenAndServe(ctx)
}
