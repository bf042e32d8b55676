package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillkom/kt-search/internal/bootstrap"
	"github.com/kirillkom/kt-search/internal/config"
	"github.com/kirillkom/kt-search/internal/core/domain"
	"github.com/kirillkom/kt-search/internal/core/usecase"
	"github.com/kirillkom/kt-search/internal/observability/logging"
)

var errSearchFailed = errors.New("search failed")

type rootOptions struct {
	timeout time.Duration
	verbose bool
}

// pipeline is the part of the search graph the commands use.
type pipeline interface {
	Search(ctx context.Context, query string) *domain.SearchResponse
	Explain(ctx context.Context, query string) (*domain.EnrichmentResult, domain.ClassificationResult)
}

type clientLister interface {
	Clients(ctx context.Context) ([]domain.ClientInfo, error)
}

type env struct {
	pipeline pipeline
	clients  clientLister
	close    func()
}

type envFactory func(ctx context.Context) (*env, error)

func newRootCmd() *cobra.Command {
	return newRootCmdWith(offlineEnv)
}

func newRootCmdWith(factory envFactory) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "kt-search",
		Short:         "Query meeting transcriptions from the terminal",
		SilenceUsage: true,
	}
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "overall deadline for one command")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "include enrichment and classification in the output")

	root.AddCommand(
		newSearchCmd(opts, factory),
		newExplainCmd(opts, factory),
		newClientsCmd(opts, factory),
	)
	return root
}

func newSearchCmd(opts *rootOptions, factory envFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Run the full search pipeline and print the response as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd.Context(), opts.timeout)
			defer cancel()

			e, err := factory(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			query := strings.Join(args, " ")
			resp := e.pipeline.Search(ctx, query)

			var out any = resp
			if opts.verbose {
				enriched, classification := e.pipeline.Explain(ctx, query)
				out = map[string]any{
					"enrichment":     enriched,
					"classification": classification,
					"response":       resp,
				}
			}
			if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if !resp.Success {
				return fmt.Errorf("%w: %s", errSearchFailed, resp.Error)
			}
			return nil
		},
	}
}

func newExplainCmd(opts *rootOptions, factory envFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "explain <query>",
		Short: "Show how a query is enriched and classified without retrieval",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd.Context(), opts.timeout)
			defer cancel()

			e, err := factory(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			enriched, classification := e.pipeline.Explain(ctx, strings.Join(args, " "))
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"enrichment":     enriched,
				"classification": classification,
			})
		},
	}
}

func newClientsCmd(opts *rootOptions, factory envFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "clients",
		Short: "List clients discovered in the vector store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := commandContext(cmd.Context(), opts.timeout)
			defer cancel()

			e, err := factory(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			clients, err := e.clients.Clients(ctx)
			if err != nil {
				return fmt.Errorf("list clients: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), clients)
		},
	}
}

func commandContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// offlineEnv builds only the synchronous pipeline. Logs go to stderr so
// stdout stays machine-readable.
func offlineEnv(ctx context.Context) (*env, error) {
	cfg := config.Load()
	slog.SetDefault(logging.NewLogger(os.Stderr, "text", "cli", cfg.LogLevel))

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Service: "cli", Offline: true})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return &env{pipeline: app.Pipeline, clients: app.Registry, close: app.Close}, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var _ pipeline = (*usecase.SearchPipeline)(nil)
