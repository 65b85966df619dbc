// Copyright 2025 Poiesic Systems
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
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/docquery"
	"github.com/poiesic/docquery/ai"
	"github.com/poiesic/docquery/server"
	"github.com/poiesic/docquery/session"
	"github.com/urfave/cli/v2"
)

func main() {
	// Local development convenience; a missing .env file is fine.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "docquery",
		Usage: "Ask questions about your documents",
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
				Name:   "serve",
				Usage:  "Run the HTTP API server",
				Action: serveCommand,
				Flags: append(aiFlags(),
					&cli.StringFlag{
						Name:    "addr",
						Aliases: []string{"a"},
						Usage:   "Listen address",
						Value:   ":8000",
					},
					&cli.DurationFlag{
						Name:  "session-ttl",
						Usage: "Evict sessions idle for longer than this (0 disables expiry)",
					},
					&cli.StringFlag{
						Name:  "cache-dir",
						Usage: "Directory for the persistent embedding cache (empty disables caching)",
					},
				),
			},
			{
				Name:      "ask",
				Usage:     "Upload a document and answer one question about it",
				ArgsUsage: "QUESTION",
				Action:    askCommand,
				Flags: append(aiFlags(),
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Path to the document",
						Required: true,
					},
				),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// aiFlags are shared by every command that talks to the AI service.
func aiFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "host",
			Usage: "OpenAI-compatible API host URL",
			Value: "https://api.openai.com/v1",
		},
		&cli.StringFlag{
			Name:    "api-key",
			Usage:   "API credential (may be empty for local services)",
			EnvVars: []string{"OPENAI_API_KEY"},
		},
		&cli.StringFlag{
			Name:  "embedding-model",
			Usage: "Embedding model name",
			Value: "text-embedding-3-small",
		},
		&cli.StringFlag{
			Name:  "chat-model",
			Usage: "Chat model name",
			Value: "gpt-4.1-mini",
		},
		&cli.IntFlag{
			Name:  "chunk-size",
			Usage: "Segment size in bytes",
			Value: 1000,
		},
		&cli.IntFlag{
			Name:  "overlap",
			Usage: "Overlap between consecutive segments in bytes",
			Value: 200,
		},
		&cli.IntFlag{
			Name:  "top-k",
			Usage: "Number of segments retrieved per question",
			Value: 4,
		},
		&cli.IntFlag{
			Name:  "pool-size",
			Usage: "Worker pool size for embedding calls (0 uses the default)",
		},
	}
}

func aiConfig(c *cli.Context) *ai.Config {
	return ai.NewConfig(
		ai.WithHost(c.String("host")),
		ai.WithToken(c.String("api-key")),
		ai.WithEmbeddingModel(c.String("embedding-model")),
		ai.WithChatModel(c.String("chat-model")),
	)
}

func serviceOptions(c *cli.Context) []docquery.ServiceOption {
	opts := []docquery.ServiceOption{
		docquery.WithChunking(c.Int("chunk-size"), c.Int("overlap")),
		docquery.WithTopK(c.Int("top-k")),
	}
	if size := c.Int("pool-size"); size > 0 {
		opts = append(opts, docquery.WithPoolSize(size))
	}
	return opts
}

func serveCommand(c *cli.Context) error {
	baseCfg := aiConfig(c)
	if err := baseCfg.Validate(); err != nil {
		return err
	}
	cacheDir := c.String("cache-dir")

	var registryOpts []session.Option
	if ttl := c.Duration("session-ttl"); ttl > 0 {
		registryOpts = append(registryOpts, session.WithTTL(ttl))
	}
	registry := session.NewRegistry(registryOpts...)
	defer registry.Close()

	// One service per credential pair, all sharing the registry so every
	// request can reach every session.
	factory := func(apiKey, chatModel string) (*docquery.Service, error) {
		var overrides []ai.ConfigOption
		if apiKey != "" {
			overrides = append(overrides, ai.WithToken(apiKey))
		}
		if chatModel != "" {
			overrides = append(overrides, ai.WithChatModel(chatModel))
		}
		cfg := baseCfg.Clone(overrides...)

		opts := append(serviceOptions(c), docquery.WithRegistry(registry))
		if cacheDir != "" {
			// The store takes an exclusive directory lock, so only the
			// default-credential service persists; override services cache
			// in memory.
			path := ""
			if apiKey == "" && chatModel == "" {
				path = cacheDir
			}
			opts = append(opts, docquery.WithEmbeddingCache(cfg.EmbeddingModel, path))
		}
		return docquery.New(cfg, opts...)
	}

	srv, err := server.New(factory)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(c.String("addr"))
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func askCommand(c *cli.Context) error {
	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		return fmt.Errorf("a question is required")
	}

	cfg := aiConfig(c)
	if err := cfg.Validate(); err != nil {
		return err
	}

	svc, err := docquery.New(cfg, serviceOptions(c)...)
	if err != nil {
		return err
	}
	defer svc.Close()

	file, err := os.Open(c.String("file"))
	if err != nil {
		return err
	}
	defer file.Close()

	ctx := c.Context
	token, err := svc.Upload(ctx, file)
	if err != nil {
		return err
	}

	err = svc.AskStream(ctx, token, question, 0, func(_ context.Context, chunk []byte) error {
		_, writeErr := os.Stdout.Write(chunk)
		return writeErr
	})
	if err != nil {
		return err
	}
	fmt.Println()
	return nil
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
