// Package main is the semdex CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/semdex/internal/cli"
	"github.com/hyperjump/semdex/internal/config"
	"github.com/hyperjump/semdex/internal/embedding"
	"github.com/hyperjump/semdex/internal/extract"
	"github.com/hyperjump/semdex/internal/indexer"
	"github.com/hyperjump/semdex/internal/keyword"
	"github.com/hyperjump/semdex/internal/semantic"
	"github.com/hyperjump/semdex/internal/server"
	"github.com/hyperjump/semdex/internal/storage"
	"github.com/hyperjump/semdex/internal/watcher"
	"github.com/hyperjump/semdex/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/semdex/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, config.yaml in the
// current directory wins if it exists; when neither exists the built-in defaults are
// used. It returns the config and the path that was actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				cfg, err := config.Load(fallback)
				if err != nil {
					return nil, "", err
				}
				return cfg, fallback, nil
			}
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			cfg, err := config.Default()
			return cfg, "", err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	args := os.Args[2:]
	switch command {
	case "server":
		runServer(args)
	case "build":
		runBuild(args)
	case "search":
		runSearch(args)
	case "similar":
		runSimilar(args)
	case "cluster":
		runCluster(args)
	case "status":
		runStatus(args)
	case "version", "--version", "-v":
		fmt.Printf("semdex version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func fatalf(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}

func runServer(args []string) {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
		zap.String("embedding_provider", cfg.Embedding.Provider),
	)

	c, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize components", zap.Error(err))
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Indexer.Restore(ctx); err != nil {
		logger.Fatal("failed to restore index", zap.Error(err))
	}
	logger.Info("index restored", zap.Int("documents", c.Indexer.Index().Stats().Documents))

	var watch *watcher.Watcher
	if len(cfg.Watch.Directories) > 0 {
		watch = watcher.New(c.Indexer, cfg.Watch.Directories, cfg.Watch.Extensions,
			watcher.WithRecursive(cfg.Watch.RecursiveOrDefault()),
			watcher.WithLogger(logger),
		)
		if err := watch.Start(ctx); err != nil {
			logger.Fatal("failed to start watcher", zap.Error(err))
		}
		defer watch.Stop()
		go func() {
			n := watch.Sync(ctx)
			logger.Info("initial sync finished", zap.Int("files", n))
		}()
	}

	var lister server.DirectoryLister
	if watch != nil {
		lister = watch
	}
	srv := server.NewServer(c.Indexer, cfg, logger, lister)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
}

// runBuild indexes a directory straight into the configured storage. The server must
// not be running, since it holds the keyword index lock.
func runBuild(args []string) {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: semdex build [flags] <directory>\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	logger, err := utils.NewLogger(cfg.Debug || *debug)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	c, err := initializeComponents(cfg, logger)
	if err != nil {
		fatalf("Failed to initialize components: %v", err)
	}
	defer c.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := c.Indexer.Restore(ctx); err != nil {
		fatalf("Failed to restore index: %v", err)
	}
	start := time.Now()
	n, err := c.Indexer.IndexDirectory(ctx, fs.Arg(0), cfg.Watch.Extensions)
	if err != nil {
		fatalf("Build failed after %d files: %v", n, err)
	}
	fmt.Printf("Indexed %d files in %s (%d documents total)\n",
		n, time.Since(start).Round(time.Millisecond), c.Indexer.Index().Stats().Documents)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse sees them. The flag package stops at
// the first non-flag argument, so "semdex search reset password -k 3" would otherwise
// leave -k unparsed.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

type clientFlags struct {
	server *string
	output *string
}

func addClientFlags(fs *flag.FlagSet) clientFlags {
	return clientFlags{
		server: fs.String("server", defaultServerURL, "server URL"),
		output: fs.String("output", "text", "output format: text, compact, or json"),
	}
}

func (f clientFlags) resolve() (*cli.Client, cli.OutputFormat) {
	format, err := cli.ParseOutputFormat(*f.output)
	if err != nil {
		fatalf("%v", err)
	}
	return cli.NewClient(*f.server), format
}

func runSearch(args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	k := fs.Int("k", 0, "number of results (0 = server default)")
	cf := addClientFlags(fs)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: semdex search [flags] <query>\n\n")
		fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces.\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(searchArgsReorder(args))

	query := buildSearchQuery(fs.Args())
	if query == "" {
		fs.Usage()
		os.Exit(1)
	}
	client, format := cf.resolve()
	resp, err := client.Search(context.Background(), query, *k)
	if err != nil {
		fatalf("Search failed: %v", err)
	}
	if err := cli.WriteSearchResults(os.Stdout, resp, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runSimilar(args []string) {
	fs := flag.NewFlagSet("similar", flag.ExitOnError)
	k := fs.Int("k", 0, "number of results (0 = server default)")
	cf := addClientFlags(fs)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: semdex similar [flags] <document-id>\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(searchArgsReorder(args))
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}
	client, format := cf.resolve()
	resp, err := client.Similar(context.Background(), fs.Arg(0), *k)
	if err != nil {
		fatalf("Similar failed: %v", err)
	}
	if err := cli.WriteSearchResults(os.Stdout, resp, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runCluster(args []string) {
	fs := flag.NewFlagSet("cluster", flag.ExitOnError)
	cf := addClientFlags(fs)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: semdex cluster [flags] <n>\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(searchArgsReorder(args))
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}
	n, err := strconv.Atoi(fs.Arg(0))
	if err != nil || n < 1 {
		fatalf("Number of clusters must be a positive integer, got %q", fs.Arg(0))
	}
	client, format := cf.resolve()
	resp, err := client.Cluster(context.Background(), n)
	if err != nil {
		fatalf("Cluster failed: %v", err)
	}
	if err := cli.WriteClusters(os.Stdout, resp, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	cf := addClientFlags(fs)
	_ = fs.Parse(args)
	client, format := cf.resolve()
	status, err := client.Status(context.Background())
	if err != nil {
		fatalf("Status failed: %v", err)
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

// Components holds the long-lived pieces a server or build run needs.
type Components struct {
	Store    *storage.SQLiteStore
	Embedder embedding.Embedder
	Keyword  *keyword.BleveIndex
	Index    *semantic.Index
	Indexer  *indexer.Indexer
}

// Close releases every component that was opened.
func (c *Components) Close() {
	if c.Keyword != nil {
		_ = c.Keyword.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	var err error
	if c.Store, err = storage.NewSQLiteStore(cfg.Storage.DatabasePath); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if c.Embedder, err = embedding.New(&cfg.Embedding); err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	policy, err := semantic.ParseRemovalPolicy(cfg.Index.RemovalPolicy)
	if err != nil {
		return nil, err
	}
	c.Index = semantic.New(c.Embedder,
		semantic.WithLogger(logger),
		semantic.WithStore(c.Store),
		semantic.WithRemovalPolicy(policy),
		semantic.WithCompactionThreshold(cfg.Index.CompactionThreshold),
		semantic.WithClusterIterations(cfg.Index.ClusterIterations),
		semantic.WithSeed(cfg.Index.ClusterSeed),
	)
	if c.Keyword, err = keyword.NewBleveIndex(cfg.Storage.KeywordIndexPath); err != nil {
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}
	c.Indexer = indexer.New(c.Index, extract.NewExtractor(),
		indexer.WithLogger(logger),
		indexer.WithKeywordIndex(c.Keyword),
	)
	ok = true
	return c, nil
}

func printUsage() {
	fmt.Println(`semdex - Semantic document index

Usage:
  semdex server [flags]              Start the HTTP server
  semdex build [flags] <directory>   Index a directory into storage (server must be stopped)
  semdex search [flags] <query>      Semantic search
  semdex similar [flags] <id>        Documents similar to a stored document
  semdex cluster [flags] <n>         Group the catalog into n clusters
  semdex status [flags]              Show index and storage status
  semdex version                     Show version
  semdex help                        Show this help

Server and Build Flags:
  --config string    Config file path (default: /usr/local/etc/semdex/config.yaml)
  --debug            Enable debug logging

Client Flags (search, similar, cluster, status):
  --server string    Server URL (default: http://localhost:8080)
  --output string    Output format: text, compact, or json (default: text)
  -k int             Number of results for search and similar (default: server setting)

Examples:
  semdex server
  semdex build ~/notes
  semdex search how do I reset my password
  semdex search -k 3 --output json "reset password"
  semdex similar faq-12
  semdex cluster 4
  semdex status --output json`)
}
