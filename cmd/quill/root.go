package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quill-labs/quill/internal/agent"
	"github.com/quill-labs/quill/internal/config"
	"github.com/quill-labs/quill/internal/llm"
	"github.com/quill-labs/quill/internal/session"
	"github.com/quill-labs/quill/internal/tool"
)

var (
	flagConfig        string
	flagProvider      string
	flagModel         string
	flagSystem        string
	flagMaxIterations int
	flagInteractive   bool
	flagResume        string
	flagNoSave        bool
	flagStream        bool
	flagVerbose       bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "quill [message]",
	Short: "LLM agent with shell, file, and search tools",
	Long: `quill drives an LLM in a loop: the model answers, requests tool
executions, sees their results, and continues until it is done.

Examples:
  quill "what is using port 8080?"
  quill --it
  quill --resume <session-id> "and what about 8081?"
  quill tools
  quill sessions list`,
	Args: cobra.ArbitraryArgs,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(flagConfig)
		if err != nil {
			return err
		}
		setupLogging(cfg.LogLevel, flagVerbose)
		return nil
	},

	RunE: func(cmd *cobra.Command, args []string) error {
		if flagInteractive {
			return runInteractive(cmd.Context())
		}
		if len(args) == 0 {
			return cmd.Help()
		}
		return runOneShot(cmd.Context(), strings.Join(args, " "))
	},
}

// Execute runs the CLI.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "config file (default ~/.quill/config.json)")
	rootCmd.PersistentFlags().StringVarP(&flagProvider, "provider", "p", "", "provider name from config")
	rootCmd.PersistentFlags().StringVarP(&flagModel, "model", "m", "", "model id override")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	rootCmd.Flags().StringVar(&flagSystem, "system", "", "system prompt override")
	rootCmd.Flags().IntVar(&flagMaxIterations, "max-iterations", 0, "loop iteration cap override")
	rootCmd.Flags().BoolVar(&flagInteractive, "it", false, "interactive mode")
	rootCmd.Flags().StringVar(&flagResume, "resume", "", "resume a stored session by id")
	rootCmd.Flags().BoolVar(&flagNoSave, "no-save", false, "do not persist this conversation")
	rootCmd.Flags().BoolVar(&flagStream, "stream", false, "print model text as it arrives")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func setupLogging(level string, verbose bool) {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// buildProvider constructs the configured provider, with retry wrapping
// when the config asks for it.
func buildProvider() (llm.Provider, error) {
	pc, err := cfg.Provider(flagProvider)
	if err != nil {
		return nil, err
	}
	model := pc.Model
	if flagModel != "" {
		model = flagModel
	}
	if pc.APIKey == "" || strings.HasPrefix(pc.APIKey, "$") {
		return nil, fmt.Errorf("no API key configured for provider (set api_key or the referenced env var)")
	}

	var p llm.Provider
	switch pc.Kind {
	case "anthropic":
		p = llm.NewAnthropic(llm.AnthropicConfig{
			APIKey:      pc.APIKey,
			Model:       model,
			BaseURL:     pc.BaseURL,
			MaxTokens:   pc.MaxTokens,
			Temperature: pc.Temperature,
		})
	case "openai":
		p = llm.NewOpenAI(llm.OpenAIConfig{
			APIKey:      pc.APIKey,
			Model:       model,
			BaseURL:     pc.BaseURL,
			MaxTokens:   pc.MaxTokens,
			Temperature: pc.Temperature,
		})
	default:
		return nil, fmt.Errorf("unknown provider kind %q", pc.Kind)
	}

	if pc.MaxRetries > 1 {
		policy := llm.DefaultRetryPolicy()
		policy.MaxAttempts = pc.MaxRetries
		p = llm.WithRetry(p, policy, slog.Default())
	}
	return p, nil
}

func buildRegistry() (*tool.Registry, error) {
	registry := tool.NewRegistry(slog.Default())
	workDir := cfg.Agent.WorkDir
	if workDir == "" {
		workDir, _ = os.Getwd()
	}

	var tools []tool.Tool
	if !cfg.Tools.DisableShell {
		tools = append(tools, tool.NewShell(workDir))
	}
	if !cfg.Tools.DisableFiles {
		tools = append(tools, tool.NewReadFile(), tool.NewWriteFile())
	}
	if !cfg.Tools.DisableSearch {
		tools = append(tools, tool.NewSearch(slog.Default()))
	}
	if err := registry.RegisterAll(tools...); err != nil {
		return nil, err
	}
	return registry, nil
}

func buildAgent() (*agent.Agent, error) {
	provider, err := buildProvider()
	if err != nil {
		return nil, err
	}
	registry, err := buildRegistry()
	if err != nil {
		return nil, err
	}

	systemPrompt := cfg.Agent.SystemPrompt
	if flagSystem != "" {
		systemPrompt = flagSystem
	}
	if systemPrompt == "" {
		systemPrompt = "You are quill, a capable assistant with shell, file, and search tools. Use them when they help, and answer concisely."
	}
	maxIter := cfg.Agent.MaxIterations
	if flagMaxIterations > 0 {
		maxIter = flagMaxIterations
	}

	workDir := cfg.Agent.WorkDir
	if workDir == "" {
		workDir, _ = os.Getwd()
	}

	return agent.New(provider, registry, agent.Config{
		SystemPrompt:  systemPrompt,
		MaxIterations: maxIter,
		WorkDir:       workDir,
		Stream:        flagStream,
	}, slog.Default()), nil
}

// openSession opens the store and resolves the session to write into.
// Returns a nil store when persistence is off.
func openSession(ctx context.Context, a *agent.Agent, firstMessage string) (*session.Store, string, error) {
	if flagNoSave {
		return nil, "", nil
	}
	store, err := session.Open(cfg.SessionDB)
	if err != nil {
		return nil, "", err
	}

	if flagResume != "" {
		history, err := store.History(ctx, flagResume)
		if err != nil {
			store.Close()
			return nil, "", err
		}
		if len(history) == 0 {
			store.Close()
			return nil, "", fmt.Errorf("session %s not found or empty", flagResume)
		}
		a.LoadHistory(history)
		return store, flagResume, nil
	}

	id, err := store.Create(ctx, firstMessage)
	if err != nil {
		store.Close()
		return nil, "", err
	}
	return store, id, nil
}

func runOneShot(ctx context.Context, message string) error {
	a, err := buildAgent()
	if err != nil {
		return err
	}
	store, sessionID, err := openSession(ctx, a, message)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	if err := runTurn(ctx, a, store, sessionID, message); err != nil {
		return err
	}
	if store != nil {
		fmt.Fprintf(os.Stderr, "session: %s\n", sessionID)
	}
	return nil
}

func runInteractive(ctx context.Context) error {
	a, err := buildAgent()
	if err != nil {
		return err
	}
	store, sessionID, err := openSession(ctx, a, "interactive session")
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		fmt.Printf("session: %s\n", sessionID)
	}
	fmt.Println(`type a message, "/reset" to clear the conversation, "/quit" to leave`)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			a.Reset()
			fmt.Println("conversation cleared")
			continue
		case "/usage":
			u := a.TokenUsage()
			fmt.Printf("tokens: %d in, %d out, %d total\n", u.InputTokens, u.OutputTokens, u.Total())
			continue
		}

		if err := runTurn(ctx, a, store, sessionID, line); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
	return scanner.Err()
}

// runTurn drives one run, renders its events, and persists the
// messages the turn added.
func runTurn(ctx context.Context, a *agent.Agent, store *session.Store, sessionID, message string) error {
	before := len(a.Messages())

	var runErr error
	streamed := false
	for e := range a.Run(ctx, message) {
		renderEvent(e, &streamed)
		if e.Type == agent.EventError {
			runErr = fmt.Errorf("%s", e.Error)
		}
	}

	if store != nil {
		for _, m := range a.Messages()[before:] {
			if err := store.Append(ctx, sessionID, m); err != nil {
				slog.Warn("persist message failed", "session", sessionID, "error", err)
				break
			}
		}
	}
	return runErr
}

func renderEvent(e agent.Event, streamed *bool) {
	switch e.Type {
	case agent.EventIteration:
		slog.Debug("iteration", "n", e.Iteration)
	case agent.EventLLMStart:
		slog.Debug("calling model", "iteration", e.Iteration)
	case agent.EventLLMChunk:
		fmt.Print(e.Content)
		*streamed = true
	case agent.EventLLMResponse:
		// Streamed text was already printed fragment by fragment.
		if *streamed {
			fmt.Println()
			*streamed = false
			return
		}
		fmt.Println(e.Content)
	case agent.EventToolStart:
		fmt.Fprintf(os.Stderr, "⚙ %s...\n", e.ToolName)
	case agent.EventToolResult:
		if e.Result != nil && !e.Result.Success {
			fmt.Fprintf(os.Stderr, "⚙ %s failed: %s\n", e.ToolName, e.Result.Error)
		}
	case agent.EventDone:
		// Content already printed via llm_response.
	case agent.EventError:
		fmt.Fprintf(os.Stderr, "✗ %s\n", e.Error)
	case agent.EventMaxIterations:
		fmt.Fprintf(os.Stderr, "stopped after %d iterations\n", e.Iteration)
	}
}
