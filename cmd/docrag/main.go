// Package main is the docrag CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/docrag/internal/cli"
	"github.com/hyperjump/docrag/internal/extract"
	"github.com/hyperjump/docrag/internal/fileid"
	"github.com/hyperjump/docrag/internal/indexer"
	"github.com/hyperjump/docrag/internal/mcptool"
	"github.com/hyperjump/docrag/internal/models"
	"github.com/hyperjump/docrag/internal/server"
	"github.com/hyperjump/docrag/internal/watcher"
	"github.com/hyperjump/docrag/pkg/utils"
)

var version = "dev"

const excerptLen = 300

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	debug      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "docrag",
		Short:         "Document ingestion and retrieval for agents",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "config file path (default ./config.yaml or $DOCRAG_CONFIG)")
	root.PersistentFlags().BoolVar(&g.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newServeCmd(g),
		newIngestCmd(g),
		newDeleteCmd(g),
		newQueryCmd(g),
		newWatchCmd(g),
		newMCPCmd(g),
		newStatusCmd(g),
		newVersionCmd(),
	)
	return root
}

// setup loads config, creates the logger and initializes components. The returned
// cleanup must be called when the command ends.
func setup(ctx context.Context, g *globalFlags, stderrOnly bool) (*components, func(), error) {
	cfg, resolved, err := loadConfig(g.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	debug := cfg.Debug || g.debug
	newLogger := utils.NewLogger
	if stderrOnly {
		newLogger = utils.NewStderrLogger
	}
	logger, err := newLogger(debug)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debug))

	c, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	return c, func() {
		c.Close()
		_ = logger.Sync()
	}, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newServeCmd(g *globalFlags) *cobra.Command {
	var noWatch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (with MCP at /mcp and the spool watcher when configured)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			c, cleanup, err := setup(ctx, g, false)
			if err != nil {
				return err
			}
			defer cleanup()

			mcpServer := mcptool.NewServer(c.Retriever, version, c.Logger)
			srv := server.NewServer(c.Indexer, c.Retriever, c.Index, c.Config, c.Logger,
				server.WithLedger(c.Ledger),
				server.WithMCPHandler(mcpServer.HTTPHandler()))

			if c.Config.Watch.Directory != "" && !noWatch {
				w, err := watcher.New(c.Config.Watch, c.Indexer, watcher.WithLogger(c.Logger))
				if err != nil {
					return err
				}
				go func() {
					if err := w.Run(ctx); err != nil {
						c.Logger.Error("spool watcher stopped", zap.Error(err))
					}
				}()
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()
			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}
			c.Logger.Info("Shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Stop(shutdownCtx)
		},
	}
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not start the spool directory watcher")
	return cmd
}

func newIngestCmd(g *globalFlags) *cobra.Command {
	var (
		owner    string
		sourceID string
		mimeType string
		format   string
	)
	cmd := &cobra.Command{
		Use:   "ingest <file|directory>...",
		Short: "Ingest files or directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outFmt, err := cli.ParseOutputFormat(format)
			if err != nil {
				return err
			}
			if sourceID != "" && len(args) != 1 {
				return errors.New("--source can only be used with a single file")
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			c, cleanup, err := setup(ctx, g, false)
			if err != nil {
				return err
			}
			defer cleanup()

			meta := map[string]any{}
			if mimeType != "" {
				meta[indexer.MetaMimeType] = mimeType
			}
			out := cmd.OutOrStdout()
			for _, path := range args {
				info, err := os.Stat(path)
				if err != nil {
					return err
				}
				if info.IsDir() {
					n, err := c.Indexer.IngestDirectory(ctx, path, owner, c.Config.Watch.Extensions)
					fmt.Fprintf(out, "%s: %d files ingested\n", path, n)
					if err != nil {
						return err
					}
					continue
				}
				var res *models.IngestResult
				if sourceID != "" {
					res, err = ingestAs(ctx, c, path, sourceID, owner, meta)
				} else {
					res, err = c.Indexer.IngestFile(ctx, path, owner, meta)
				}
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				if err := cli.WriteIngest(out, path, res, outFmt); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner id of the ingested sources (required)")
	cmd.Flags().StringVar(&sourceID, "source", "", "source id for a single file (default derived from the path)")
	cmd.Flags().StringVar(&mimeType, "mime", "", "MIME type (default from the file extension)")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text or json")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

// ingestAs ingests the file at path under an explicit source id.
func ingestAs(ctx context.Context, c *components, path, sourceID, owner string, meta map[string]any) (*models.IngestResult, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if indexer.MimeTypeFromMetadata(meta) == extract.MimeUnknown {
		meta[indexer.MetaMimeType] = extract.MimeTypeForPath(path)
	}
	return c.Indexer.Ingest(ctx, sourceID, owner, content, meta)
}

func newDeleteCmd(g *globalFlags) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "delete <source-id|file>",
		Short: "Delete every record of a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			c, cleanup, err := setup(ctx, g, false)
			if err != nil {
				return err
			}
			defer cleanup()

			target := args[0]
			if isFilePath(target) {
				err = c.Indexer.DeleteFile(ctx, target, owner)
			} else {
				err = c.Indexer.Delete(ctx, target, owner)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", target)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner id of the source (required)")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

// isFilePath reports whether target names a file on disk rather than a source id.
func isFilePath(target string) bool {
	if fileid.IsFileSourceID(target) {
		return false
	}
	if strings.ContainsRune(target, os.PathSeparator) {
		return true
	}
	_, err := os.Stat(target)
	return err == nil
}

func newQueryCmd(g *globalFlags) *cobra.Command {
	var (
		allowed   []string
		topK      int
		format    string
		serverURL string
	)
	cmd := &cobra.Command{
		Use:   "query <text>...",
		Short: "Retrieve the passages most relevant to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outFmt, err := cli.ParseOutputFormat(format)
			if err != nil {
				return err
			}
			q := &models.RetrievalQuery{
				Query:            strings.Join(args, " "),
				AllowedSourceIDs: allowed,
				TopK:             topK,
			}
			if serverURL != "" {
				resp, err := retrieveViaHTTP(cmd.Context(), serverURL, q)
				if err != nil {
					return err
				}
				return cli.WriteRetrieval(cmd.OutOrStdout(), resp, outFmt, excerptLen)
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			c, cleanup, err := setup(ctx, g, false)
			if err != nil {
				return err
			}
			defer cleanup()
			resp, err := c.Retriever.Retrieve(ctx, q.Query, q.AllowedSourceIDs, q.TopK)
			if err != nil {
				return err
			}
			return cli.WriteRetrieval(cmd.OutOrStdout(), resp, outFmt, excerptLen)
		},
	}
	cmd.Flags().StringSliceVar(&allowed, "allow", nil, "restrict results to these source ids")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of passages (default from config)")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text or json")
	cmd.Flags().StringVar(&serverURL, "server", "", "query a running docrag server instead of the local index")
	return cmd
}

func retrieveViaHTTP(ctx context.Context, serverURL string, query *models.RetrievalQuery) (*models.RetrievalResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	var response models.RetrievalResponse
	if err := doHTTP(ctx, http.MethodPost, strings.TrimRight(serverURL, "/")+"/api/v1/retrieve", body, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

func doHTTP(ctx context.Context, method, url string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func newWatchCmd(g *globalFlags) *cobra.Command {
	var dir, owner string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Ingest files dropped into a spool directory until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			c, cleanup, err := setup(ctx, g, false)
			if err != nil {
				return err
			}
			defer cleanup()

			wcfg := c.Config.Watch
			if dir != "" {
				wcfg.Directory = dir
			}
			if owner != "" {
				wcfg.OwnerID = owner
			}
			w, err := watcher.New(wcfg, c.Indexer, watcher.WithLogger(c.Logger))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "watching %s (Ctrl+C to stop)\n", w.Root())
			return w.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "spool directory (default watch.directory)")
	cmd.Flags().StringVar(&owner, "owner", "", "owner id for spooled files (default watch.owner_id)")
	return cmd
}

func newMCPCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the search_documents tool over MCP stdio",
		Long: `Serve the search_documents tool to an MCP client over stdio.

Logs go to stderr; stdout carries the protocol. The HTTP transport is available
at /mcp under "docrag serve".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			c, cleanup, err := setup(ctx, g, true)
			if err != nil {
				return err
			}
			defer cleanup()
			return mcptool.NewServer(c.Retriever, version, c.Logger).Run(ctx)
		},
	}
}

func newStatusCmd(g *globalFlags) *cobra.Command {
	var format, serverURL string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show record and source counts and the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			outFmt, err := cli.ParseOutputFormat(format)
			if err != nil {
				return err
			}
			var status map[string]any
			if serverURL != "" {
				err = doHTTP(cmd.Context(), http.MethodGet, strings.TrimRight(serverURL, "/")+"/api/v1/status", nil, &status)
			} else {
				var c *components
				var cleanup func()
				c, cleanup, err = setup(cmd.Context(), g, false)
				if err != nil {
					return err
				}
				defer cleanup()
				status, err = server.Status(cmd.Context(), c.Index, c.Indexer.IndexName(), c.Ledger, c.Config)
			}
			if err != nil {
				return err
			}
			return cli.WriteStatus(cmd.OutOrStdout(), status, outFmt)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text or json")
	cmd.Flags().StringVar(&serverURL, "server", "", "read status from a running docrag server")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "docrag version %s\n", version)
		},
	}
}
