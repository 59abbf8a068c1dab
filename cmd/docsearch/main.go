// Copyright 2026 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/poiesic/docsearch"
	"github.com/poiesic/docsearch/ai"
	"github.com/poiesic/docsearch/core"
	"github.com/poiesic/docsearch/ingestion"
	"github.com/poiesic/docsearch/reprocess"
	"github.com/poiesic/docsearch/search"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "docsearch",
		Usage: "Hybrid document retrieval with department-level access control",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Ingest a document from a file (or stdin with -)",
				ArgsUsage: "<file>",
				Action:    ingestCommand,
				Flags: append(commonFlags(),
					&cli.StringFlag{
						Name:     "department",
						Usage:    "Owning department of the document",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "visibility",
						Usage: "Document visibility (all, restricted)",
						Value: "restricted",
					},
					&cli.StringSliceFlag{
						Name:  "allow",
						Usage: "Additional department granted read access (repeatable)",
					},
					&cli.StringFlag{
						Name:  "title",
						Usage: "Document title",
					},
					&cli.StringFlag{
						Name:  "language",
						Usage: "Document language tag",
					},
				),
			},
			{
				Name:      "search",
				Usage:     "Retrieve chunks matching a query",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: append(commonFlags(),
					&cli.StringFlag{
						Name:     "department",
						Usage:    "Department of the requester",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "superuser",
						Usage: "Bypass access control",
					},
					&cli.StringFlag{
						Name:  "mode",
						Usage: "Retrieval mode (hybrid, vector, keyword, blend)",
						Value: "hybrid",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of results",
						Value: 10,
					},
					&cli.IntFlag{
						Name:  "offset",
						Usage: "Number of ranked results to skip",
					},
				),
			},
			{
				Name:   "reprocess",
				Usage:  "Re-chunk and re-embed all stored documents",
				Action: reprocessCommand,
				Flags: append(commonFlags(),
					&cli.IntFlag{
						Name:  "target-words",
						Usage: "Chunk window size in words",
						Value: 512,
					},
					&cli.IntFlag{
						Name:  "overlap-words",
						Usage: "Chunk window overlap in words",
						Value: 50,
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of documents to process in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N documents",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// commonFlags returns the flags every subcommand needs: the database path
// and the embedding service coordinates.
func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "db",
			Aliases:  []string{"d"},
			Usage:    "Path to BadgerDB database directory",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "embedding-host",
			Usage: "Embedding service host URL",
			Value: "http://localhost:11434/v1",
		},
		&cli.StringFlag{
			Name:  "embedding-model",
			Usage: "Embedding model name",
			Value: "embeddinggemma",
		},
		&cli.IntFlag{
			Name:  "dimensions",
			Usage: "Embedding vector length",
			Value: 768,
		},
	}
}

func openDatabase(c *cli.Context) (*docsearch.Database, *ai.Config, error) {
	aiConfig := ai.NewConfig(
		ai.WithEmbeddingHost(c.String("embedding-host")),
		ai.WithEmbeddingModel(c.String("embedding-model")),
		ai.WithDimensions(c.Int("dimensions")),
	)
	if err := aiConfig.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid AI configuration: %w", err)
	}

	db, err := docsearch.NewDatabase(c.String("db"), docsearch.WithAIConfig(aiConfig))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, aiConfig, nil
}

func ingestCommand(c *cli.Context) error {
	ctx := context.Background()

	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one file argument")
	}

	text, err := readInput(c.Args().First())
	if err != nil {
		return err
	}

	visibility, err := core.ParseVisibility(c.String("visibility"))
	if err != nil {
		return err
	}

	db, _, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	pipeline, err := db.NewIngestionPipeline()
	if err != nil {
		return fmt.Errorf("failed to create ingestion pipeline: %w", err)
	}
	defer pipeline.Release()

	result, err := pipeline.Ingest(ctx, c.String("department"), visibility, text, &ingestion.IngestOptions{
		Title:              c.String("title"),
		Language:           c.String("language"),
		AllowedDepartments: c.StringSlice("allow"),
	})
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	// Let the embedding job finish before closing the database
	pipeline.Wait()

	if result.Duplicate {
		fmt.Printf("Duplicate content, existing document %d (%d chunks)\n", result.DocumentId, result.ChunkCount)
		return nil
	}
	fmt.Printf("Ingested document %d (%d chunks)\n", result.DocumentId, result.ChunkCount)
	return nil
}

func searchCommand(c *cli.Context) error {
	ctx := context.Background()

	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one query argument")
	}

	mode, err := search.ParseMode(c.String("mode"))
	if err != nil {
		return err
	}

	db, _, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	retriever, err := db.NewRetriever()
	if err != nil {
		return fmt.Errorf("failed to create retriever: %w", err)
	}

	requester := &core.Requester{
		Department:  c.String("department"),
		IsSuperuser: c.Bool("superuser"),
	}

	results, err := retriever.Retrieve(ctx, requester, search.Request{
		Query:  c.Args().First(),
		Mode:   mode,
		Limit:  c.Int("limit"),
		Offset: c.Int("offset"),
	})
	if err != nil {
		return fmt.Errorf("retrieval failed: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}

	for i, result := range results {
		title := result.DocumentTitle
		if title == "" {
			title = fmt.Sprintf("document %d", result.DocumentId)
		}
		fmt.Printf("%2d. [%.4f] %s (chunk %d, %s)\n    %s\n",
			i+1, result.Score, title, result.ChunkId, result.Source, result.Snippet)
	}
	return nil
}

func reprocessCommand(c *cli.Context) error {
	ctx := context.Background()

	reprocessConfig := &reprocess.Config{
		TargetWords:    c.Int("target-words"),
		OverlapWords:   c.Int("overlap-words"),
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}

	// Validate config
	if reprocessConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reprocessConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reprocessConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	db, aiConfig, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	reprocessor, err := db.NewReprocessor(reprocessConfig, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create reprocessor: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Database: %s\n", c.String("db"))
	fmt.Fprintf(os.Stderr, "Embedding host: %s\n", aiConfig.EmbeddingHost)
	fmt.Fprintf(os.Stderr, "Embedding model: %s\n", aiConfig.EmbeddingModel)
	fmt.Fprintln(os.Stderr)

	summary, err := reprocessor.Run(ctx)
	if err != nil {
		return fmt.Errorf("reprocessing failed: %w", err)
	}

	fmt.Printf("Reprocessed %d documents, %d failed, %d chunks created\n",
		summary.Documents, summary.Failed, summary.ChunksCreated)
	return nil
}

// readInput reads the document text from a file, or stdin when path is "-".
func readInput(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	// Configure slog with the specified level
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
