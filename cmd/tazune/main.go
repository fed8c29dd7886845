// Package main is the Tazune CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/shiokaze/tazune/internal/answer"
	"github.com/shiokaze/tazune/internal/cache"
	"github.com/shiokaze/tazune/internal/cli"
	"github.com/shiokaze/tazune/internal/config"
	"github.com/shiokaze/tazune/internal/interpret"
	"github.com/shiokaze/tazune/internal/llm"
	"github.com/shiokaze/tazune/internal/models"
	"github.com/shiokaze/tazune/internal/ranking"
	"github.com/shiokaze/tazune/internal/retrieval"
	"github.com/shiokaze/tazune/internal/server"
	"github.com/shiokaze/tazune/internal/storage"
	"github.com/shiokaze/tazune/internal/watcher"
	"github.com/shiokaze/tazune/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/tazune/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used, so that "tazune server" from the project dir uses the project's
// config (including debug). Returns the config and the path actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// A .env in the working directory supplies the API key during
	// development; absence is not an error.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ask":
		runAsk()
	case "search":
		runSearch()
	case "history":
		runHistory()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("tazune version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if cfg.Storage.WatchDatabase {
		dbWatcher := watcher.NewWatcher(cfg.Storage.DatabasePath, func() {
			logger.Info("archive database changed externally, refreshing caches")
			components.Corpus.Invalidate()
			components.Vectors.Invalidate()
		}, logger)
		if err := dbWatcher.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start database watcher", zap.Error(err))
		}
		defer dbWatcher.Stop()
	}

	srv := server.NewServer(
		components.Streamer,
		components.Interpreter,
		components.Pipeline,
		components.Store,
		&cfg.Server,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// buildQuestion joins all positional args with spaces so multi-word questions
// work the same with or without shell quoting.
func buildQuestion(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: tazune ask [flags] <question>\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[2:])

	question := buildQuestion(fs.Args())
	if question == "" {
		fs.Usage()
		os.Exit(1)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var final *models.Answer
	for ev := range components.Streamer.Ask(ctx, question) {
		switch ev.Type {
		case answer.EventChunk:
			fmt.Print(ev.Chunk)
		case answer.EventDone:
			final = ev.Answer
		case answer.EventError:
			fmt.Fprintf(os.Stderr, "\n%s\n", ev.Err)
			os.Exit(1)
		}
	}
	fmt.Println()
	if final != nil {
		cli.WriteAnswer(os.Stdout, final)
	}
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = direct database access)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: tazune search [flags] <question>\n\n")
		fmt.Fprintf(fs.Output(), "Question is all remaining arguments joined by spaces.\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[2:])

	question := buildQuestion(fs.Args())
	if question == "" {
		fs.Usage()
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *serverURL != "" {
		items, err := searchViaHTTP(*serverURL, question)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteItems(os.Stdout, items, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()

	ctx := context.Background()
	params := components.Interpreter.Parse(ctx, question)
	items, err := components.Pipeline.Search(ctx, params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteItems(os.Stdout, items, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func searchViaHTTP(serverURL, question string) ([]*models.Item, error) {
	body, err := json.Marshal(map[string]string{"question": question})
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response struct {
		Items []*models.Item `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return response.Items, nil
}

func runHistory() {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	limit := fs.Int("limit", 20, "number of turns to show")
	clear := fs.Bool("clear", false, "clear conversation history")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	store, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	if *clear {
		if err := store.ClearTurns(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Clear failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("History cleared")
		return
	}

	turns, err := store.ListTurns(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
		os.Exit(1)
	}
	// ListTurns returns newest first; show oldest first for reading.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	if err := cli.WriteTurns(os.Stdout, turns, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	store, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	itemCount, err := store.CountItems(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Count failed: %v\n", err)
		os.Exit(1)
	}
	embeddings, err := store.ListEmbeddings(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "List embeddings failed: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(map[string]interface{}{
			"items":         itemCount,
			"embeddings":    len(embeddings),
			"database_path": cfg.Storage.DatabasePath,
		})
	case "text":
		fmt.Printf("items:          %d\n", itemCount)
		fmt.Printf("embeddings:     %d\n", len(embeddings))
		fmt.Printf("database_path:  %s\n", cfg.Storage.DatabasePath)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

// Components holds initialized services.
type Components struct {
	Store       storage.Store
	Client      *llm.Client
	Corpus      *cache.CorpusCache
	Vectors     *cache.VectorCache
	Interpreter *interpret.Interpreter
	Pipeline    *retrieval.Pipeline
	Streamer    *answer.Streamer
}

func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	client, err := llm.NewClient(&cfg.LLM)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize llm client: %w", err)
	}

	corpus := cache.NewCorpusCache(store, cfg.Cache.TTL())
	vectors := cache.NewVectorCache(store, cfg.Cache.TTL())
	scorer := ranking.NewScorer(&cfg.Scoring)
	interpreter := interpret.New(client, logger)
	pipeline := retrieval.NewPipeline(corpus, vectors, client, scorer, &cfg.Retrieval, logger)
	streamer := answer.NewStreamer(interpreter, pipeline, client, store, &cfg.Retrieval, cfg.LLM.MaxTokens, logger)

	return &Components{
		Store:       store,
		Client:      client,
		Corpus:      corpus,
		Vectors:     vectors,
		Interpreter: interpreter,
		Pipeline:    pipeline,
		Streamer:    streamer,
	}, nil
}

func printUsage() {
	fmt.Println(`tazune - Ask questions about your personal bookmark archive

Usage:
  tazune server [flags]            Start the HTTP server
  tazune ask [flags] <question>    Ask a question, streaming the answer
  tazune search [flags] <question> Retrieve matching items without generating
  tazune history [flags]           Show or clear conversation history
  tazune status [flags]            Show archive statistics
  tazune version                   Show version
  tazune help                      Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/tazune/config.yaml)
  --debug            Enable debug logging

Ask Flags:
  --config string    Config file path

Search Flags:
  --config string    Config file path (for direct database mode)
  --server string    Server URL (empty = direct database access)
  --output string    Output format: text or json (default: text)

History Flags:
  --config string    Config file path
  --limit int        Number of turns to show (default: 20)
  --clear            Clear conversation history
  --output string    Output format: text or json (default: text)

Examples:
  tazune server
  tazune ask what did alice say about typescript?
  tazune search anime tweets from the last 3 months
  tazune search --server http://localhost:8321 "gophers"
  tazune history --limit 10
  tazune history --clear
  tazune status --output json`)
}
