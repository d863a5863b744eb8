// Package main provides the batch ingestion CLI, for building memory from
// files and web pages outside the server process.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dma/backend/internal/graph"
	"dma/backend/internal/ingest"
	"dma/backend/internal/pipeline"
	"dma/backend/pkg/config"
	"dma/backend/pkg/logger"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dma-ingest",
		Short: "Batch loader for the dynamic memory graph",
		Long: `Builds memory outside the server process: fetches pages or reads
files, chunks them, and runs the standard ingestion path (deduplication and
contradiction checks included) against the configured Neo4j instance.`,
		SilenceUsage: true,
	}

	urlCmd := &cobra.Command{
		Use:   "url <url>...",
		Short: "Fetch web pages and ingest their paragraphs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, engine *pipeline.Pipeline, log *zap.Logger) error {
				for _, pageURL := range args {
					title, results, err := engine.IngestURL(ctx, pageURL)
					if err != nil {
						return fmt.Errorf("ingest %s: %w", pageURL, err)
					}
					created, deduped := tally(results)
					fmt.Printf("%s (%s): %d chunks, %d new, %d duplicates\n",
						pageURL, title, len(results), created, deduped)
				}
				return nil
			})
		},
	}

	fileCmd := &cobra.Command{
		Use:   "file <path>...",
		Short: "Ingest text files, one paragraph per chunk",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, engine *pipeline.Pipeline, log *zap.Logger) error {
				for _, path := range args {
					chunks, err := chunksFromFile(path)
					if err != nil {
						return err
					}
					results, err := engine.Ingest(ctx, chunks)
					if err != nil {
						return fmt.Errorf("ingest %s: %w", path, err)
					}
					created, deduped := tally(results)
					fmt.Printf("%s: %d chunks, %d new, %d duplicates\n",
						path, len(results), created, deduped)
				}
				return nil
			})
		},
	}

	var reencodeLimit int
	reencodeCmd := &cobra.Command{
		Use:   "reencode",
		Short: "Re-embed nodes left behind by an encoder upgrade",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, engine *pipeline.Pipeline, log *zap.Logger) error {
				updated, err := engine.ReencodeOutdated(ctx, reencodeLimit)
				if err != nil {
					return err
				}
				fmt.Printf("re-encoded %d nodes\n", updated)
				return nil
			})
		},
	}
	reencodeCmd.Flags().IntVar(&reencodeLimit, "limit", 500, "max nodes to re-encode in one run")

	rootCmd.AddCommand(urlCmd, fileCmd, reencodeCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// withEngine wires config, logger, Neo4j and the pipeline around a command
// body. The pruner is not started; batch runs leave cap enforcement to the
// server.
func withEngine(run func(ctx context.Context, engine *pipeline.Pipeline, log *zap.Logger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if err := logger.Init(cfg.Env); err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer logger.Sync()
	log := logger.Get()

	driver, err := neo4j.NewDriverWithContext(
		cfg.Neo4jURI,
		neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
	)
	if err != nil {
		return fmt.Errorf("create Neo4j driver: %w", err)
	}
	ctx := context.Background()
	defer driver.Close(ctx)

	if err := driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("verify Neo4j connectivity: %w", err)
	}

	repo := graph.NewRepository(driver, cfg.Neo4jDatabase, cfg.EmbeddingDim, cfg.EncoderVersion)
	if err := repo.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure graph schema: %w", err)
	}

	return run(ctx, pipeline.New(repo, cfg), log)
}

// chunksFromFile splits a text file on blank lines, one chunk per paragraph
func chunksFromFile(path string) ([]ingest.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	source := "file:" + filepath.Base(path)
	var chunks []ingest.Chunk
	var paragraph []string

	flush := func() {
		text := strings.TrimSpace(strings.Join(paragraph, " "))
		paragraph = paragraph[:0]
		if text == "" {
			return
		}
		chunks = append(chunks, ingest.Chunk{Content: text, Source: source, Method: "file"})
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			flush()
			continue
		}
		paragraph = append(paragraph, line)
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return chunks, nil
}

func tally(results []*ingest.Result) (created, deduped int) {
	for _, r := range results {
		if r.Deduplicated {
			deduped++
		} else {
			created++
		}
	}
	return created, deduped
}
