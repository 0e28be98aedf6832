package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/comigor/herald-go/internal/agent"
	"github.com/comigor/herald-go/internal/config"
	"github.com/comigor/herald-go/internal/llm"
	"github.com/comigor/herald-go/internal/logger"
	"github.com/comigor/herald-go/internal/reflection"
	"github.com/comigor/herald-go/internal/server"
	"github.com/comigor/herald-go/internal/store"
	"github.com/comigor/herald-go/pkg/tools"
)

// newSearcher is swapped in tests.
var newSearcher = tools.NewSearcher

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

// run is the whole program; it returns the exit code so deferred cleanup
// (search backends, MCP child processes, the draft store) always runs.
func run(args []string, stdout io.Writer) int {
	flags := flag.NewFlagSet("herald", flag.ContinueOnError)
	graph := flags.Bool("graph", false, "print the reflection state machine in DOT format and exit")
	prompt := flags.String("prompt", "", "run a single reflection loop for this prompt and exit")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.L.Error("failed to load configuration", "error", err)
		return 1
	}
	logger.SetLevel(cfg.Log.Level)
	logger.L.Debug("configuration loaded", "log_level", logger.Level().String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize LLM client
	llmClient, err := llm.NewClient(cfg.LLM)
	if err != nil && !*graph {
		logger.L.Error("failed to create LLM client", "error", err)
		return 1
	}

	searcher, closeSearch, err := newSearcher(ctx, cfg.Search, cfg.MCPServers)
	if err != nil {
		logger.L.Error("failed to set up search; continuing without it", "error", err)
		searcher = tools.NoSearch{}
	}
	defer func() {
		if closeSearch == nil {
			return
		}
		if err := closeSearch(); err != nil {
			logger.L.Warn("failed to close search backend", "error", err)
		}
	}()
	toolbox := tools.NewToolbox(searcher, time.Now)

	loop, err := reflection.New(
		agent.NewGenerator(llmClient, cfg.LLM, cfg.Reflection, toolbox),
		agent.NewCritic(llmClient, cfg.LLM, cfg.Reflection),
		reflection.WithMaxRounds(cfg.Reflection.MaxRounds),
		reflection.WithFirstInstruction(cfg.Reflection.FirstInstruction),
	)
	if err != nil {
		logger.L.Error("failed to build reflection loop", "error", err)
		return 1
	}

	if *graph {
		fmt.Fprintln(stdout, loop.Graph())
		return 0
	}
	if *prompt != "" {
		return runOnce(ctx, stdout, loop, *prompt)
	}

	drafts, err := store.Open(cfg.Store.Path)
	if err != nil {
		logger.L.Error("failed to open draft store", "error", err)
		return 1
	}
	defer drafts.Close()

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler: server.New(loop, drafts, cfg.Server.RequestTimeout).Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.L.Warn("server shutdown error", "error", err)
		}
	}()

	// Start server
	logger.L.Info("starting server", "address", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.L.Error("failed to start server", "error", err)
		return 1
	}
	return 0
}

func runOnce(ctx context.Context, out io.Writer, loop *reflection.Loop, prompt string) int {
	res, err := loop.Run(ctx, prompt)
	if err != nil {
		logger.L.Error("reflection loop failed", "error", err)
		return 1
	}

	fmt.Fprintf(out, "Final post:\n%s\n\nConversation history:\n", res.FinalText)
	for i, e := range res.Transcript {
		kind := "Generation"
		if e.IsFeedback {
			kind = "Feedback"
		}
		fmt.Fprintf(out, "%d. %s: %s\n", i+1, kind, e.Text)
	}
	return 0
}
