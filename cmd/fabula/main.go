package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fabula/internal/agent"
	"fabula/internal/config"
	"fabula/internal/determine"
	"fabula/internal/embedding"
	"fabula/internal/logging"
	"fabula/internal/reasoning"
	"fabula/internal/repository"
)

var (
	// Global flags
	cfgPath string
	verbose bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "fabula",
	Short: "fabula - narrative repository agent",
	Long: `fabula is an autonomous agent over a hierarchical narrative repository.

It indexes narrative elements (premises, outlines, entities) for similarity
search and pursues natural-language goals against them: each pursuit step
runs a bounded determination loop that gathers context, filters it, and
decides whether to invoke a repository tool or finalize with an answer.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.Configure(verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

var indexCmd = &cobra.Command{
	Use:   "index [content-dir]",
	Short: "Load and embed a content directory into the repository",
	Long: `Reads every aspect file (*.yaml) in the content directory, embeds each
narrative element, and indexes it for similarity search. Re-running updates
existing elements in place.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

var pursueCmd = &cobra.Command{
	Use:   "pursue [request]",
	Short: "Pursue a natural-language goal against the repository",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPursue,
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Similarity search over indexed narrative elements",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the content directory and re-index changed files",
	RunE:  runWatch,
}

var searchAspect string

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "fabula.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	searchCmd.Flags().StringVar(&searchAspect, "aspect", "", "restrict search to one aspect")

	rootCmd.AddCommand(indexCmd, pursueCmd, searchCmd, watchCmd)
}

func openStore() (*repository.Store, error) {
	engine, err := embedding.NewEngine(cfg.Embedding)
	if err != nil {
		return nil, err
	}
	return repository.NewStore(cfg.Repository.DatabasePath, engine)
}

func contentDir(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return cfg.Repository.ContentDir
}

func runIndex(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	dir := contentDir(args)
	indexer := repository.NewIndexer(store)
	count, err := indexer.IndexDir(cmd.Context(), dir)
	if err != nil {
		return err
	}
	fmt.Printf("Indexed %d elements from %s\n", count, dir)
	if !store.VecEnabled() {
		fmt.Println("Note: sqlite-vec unavailable, falling back to in-process ranking.")
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	query := strings.Join(args, " ")
	hits, err := store.Search(cmd.Context(), query, searchAspect, repository.DefaultSearchLimit)
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		fmt.Println("No matching elements.")
		return nil
	}
	for i, hit := range hits {
		fmt.Printf("%d. %s (distance %.3f)\n", i+1, hit.URI, hit.Distance)
	}
	return nil
}

func runPursue(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	timeout, err := time.ParseDuration(cfg.LLM.Timeout)
	if err != nil {
		timeout = 2 * time.Minute
	}
	svc := reasoning.NewGeminiService(reasoning.GeminiConfig{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: timeout,
	})

	runtime := agent.NewRuntime(store)
	controller := agent.NewController(
		store,
		runtime,
		determine.NewLLMPhases(svc),
		agent.NewLLMTranslator(svc),
		agent.NewLLMAssessor(svc),
		agent.Config{
			Determine: determine.Config{
				MaxIterations:       cfg.Determine.MaxIterations,
				MinIterations:       cfg.Determine.MinIterations,
				MaxRefinementRounds: cfg.Determine.MaxRefinementRounds,
			},
		},
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	request := strings.Join(args, " ")
	outcome, err := controller.Pursue(ctx, request)
	if err != nil {
		return err
	}

	fmt.Printf("Pursuit %s resolved: %s\n\n", outcome.ID, outcome.Resolution.Status)
	fmt.Println(outcome.Resolution.Response)
	if len(outcome.ExecutedSteps) > 0 {
		fmt.Printf("\nExecuted %d steps:\n", len(outcome.ExecutedSteps))
		for i, s := range outcome.ExecutedSteps {
			fmt.Printf("  %d. %s\n", i+1, s.Summarize(120))
		}
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	indexer := repository.NewIndexer(store)
	watcher, err := repository.NewContentWatcher(cfg.Repository.ContentDir, indexer)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := watcher.Start(ctx); err != nil {
		return err
	}
	fmt.Printf("Watching %s for changes. Ctrl-C to stop.\n", cfg.Repository.ContentDir)
	<-ctx.Done()
	watcher.Stop()
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
