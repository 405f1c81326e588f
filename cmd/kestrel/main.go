// Command kestrel runs the conversational agent daemon: an HTTP chat
// endpoint in front of a tool-using reasoning loop with browser,
// search, memory, and knowledge tools.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/kestrelworks/kestrel/examples"
	"github.com/kestrelworks/kestrel/internal/agent"
	"github.com/kestrelworks/kestrel/internal/api"
	"github.com/kestrelworks/kestrel/internal/browser"
	"github.com/kestrelworks/kestrel/internal/buildinfo"
	"github.com/kestrelworks/kestrel/internal/config"
	"github.com/kestrelworks/kestrel/internal/conversation"
	"github.com/kestrelworks/kestrel/internal/email"
	"github.com/kestrelworks/kestrel/internal/embeddings"
	"github.com/kestrelworks/kestrel/internal/fetch"
	"github.com/kestrelworks/kestrel/internal/knowledge"
	"github.com/kestrelworks/kestrel/internal/llm"
	"github.com/kestrelworks/kestrel/internal/memory"
	"github.com/kestrelworks/kestrel/internal/search"
	"github.com/kestrelworks/kestrel/internal/tools"
	"github.com/kestrelworks/kestrel/internal/userctx"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	ingestPath := flag.String("ingest", "", "ingest a text/markdown file into the knowledge base and exit")
	ingestSource := flag.String("source", "", "source label for -ingest (default: file name)")
	initConfig := flag.Bool("init", false, "write an example config.yaml to the current directory and exit")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(buildinfo.String())
		return
	}

	if *initConfig {
		if err := writeExampleConfig("config.yaml"); err != nil {
			slog.Error("init", "error", err)
			os.Exit(1)
		}
		fmt.Println("wrote config.yaml")
		return
	}

	// .env values feed the ${VAR} references in config.yaml
	_ = godotenv.Load()

	if err := run(*configPath, *ingestPath, *ingestSource); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// writeExampleConfig writes the embedded example config, refusing to
// clobber an existing file.
func writeExampleConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	return os.WriteFile(path, examples.ConfigYAML, 0o644)
}

func run(configPath, ingestPath, ingestSource string) error {
	cfgFile, err := config.FindConfig(configPath)
	var cfg *config.Config
	if err != nil {
		// No file anywhere: run on defaults, env vars still apply.
		cfg = config.Default()
	} else {
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config %s: %w", cfgFile, err)
		}
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("KESTREL_API_KEY")
	}
	if cfg.Embeddings.APIKey == "" {
		cfg.Embeddings.APIKey = cfg.LLM.APIKey
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := setupLogging(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.Info("kestrel starting",
		"version", buildinfo.Version,
		"model", cfg.LLM.Model,
		"data_dir", cfg.DataDir,
	)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(cfg.DataDir, "kestrel.db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent turns.
	db.SetMaxOpenConns(1)

	embedder := embeddings.New(embeddings.Config{
		BaseURL:   cfg.Embeddings.BaseURL,
		APIKey:    cfg.Embeddings.APIKey,
		Model:     cfg.Embeddings.Model,
		Dimension: cfg.Embeddings.Dimension,
	})

	knowledgeStore, err := knowledge.NewStore(db, embedder)
	if err != nil {
		return err
	}

	if ingestPath != "" {
		return runIngest(logger, knowledgeStore, ingestPath, ingestSource)
	}

	memoryStore, err := memory.NewStore(db, embedder)
	if err != nil {
		return err
	}
	convStore, err := conversation.NewStore(db)
	if err != nil {
		return err
	}
	userStore, err := userctx.NewStore(db)
	if err != nil {
		return err
	}

	client := llm.NewOpenAIClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Temperature)

	reg := tools.NewRegistry()
	memory.RegisterTools(reg, memoryStore)
	knowledge.RegisterTool(reg, knowledgeStore)
	userctx.RegisterTool(reg, userStore)
	fetch.RegisterTool(reg, fetch.New())

	searchMgr := search.NewManager(cfg.Search.Provider)
	searchMgr.Register(search.NewDuckDuckGo())
	if cfg.Search.Brave.APIKey != "" {
		searchMgr.Register(search.NewBrave(cfg.Search.Brave.APIKey))
	}
	search.RegisterTool(reg, searchMgr)

	var browserMgr *browser.Manager
	if cfg.Browser.Enabled {
		browserMgr = browser.NewManager(logger, browser.Config{
			Headless:    cfg.Browser.Headless,
			UserAgent:   cfg.Browser.UserAgent,
			UserDataDir: cfg.Browser.UserDataDir,
		})
		browser.RegisterTools(reg, browserMgr, filepath.Join(cfg.DataDir, "screenshots"))
		defer browserMgr.CloseAll()
	}

	if cfg.Email.Enabled {
		email.RegisterTools(reg, logger, email.SMTPConfig{
			Host:     cfg.Email.SMTP.Host,
			Port:     cfg.Email.SMTP.Port,
			Username: cfg.Email.SMTP.Username,
			Password: cfg.Email.SMTP.Password,
			StartTLS: cfg.Email.SMTP.StartTLS,
		}, cfg.Email.From, nil)
	}

	logger.Info("tools registered", "count", len(reg.Names()), "tools", reg.Names())

	extractionModel := cfg.LLM.ExtractionModel
	if extractionModel == "" {
		extractionModel = cfg.LLM.Model
	}
	extractor := memory.NewExtractor(logger, client, memoryStore, extractionModel)
	extract := func(ctx context.Context, userID, userMessage, reply string) {
		if _, err := extractor.ExtractAndPersist(ctx, userMessage, reply, userID); err != nil {
			logger.Warn("memory extraction failed", "error", err)
		}
	}

	loop := agent.NewLoop(logger, client, reg, cfg.LLM.Model, cfg.Agent.MaxTurns)
	runtime := agent.NewRuntime(logger, loop, convStore, extract, cfg.Agent.HistoryWindow)

	addr := net.JoinHostPort(cfg.Listen.Address, strconv.Itoa(cfg.Listen.Port))
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      api.NewServer(logger, runtime),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // a turn can run many tool cycles
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return runtime.RunExtractionWorker(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func setupLogging(level string) (*slog.Logger, error) {
	lvl := slog.LevelInfo
	if level != "" {
		parsed, err := config.ParseLogLevel(level)
		if err != nil {
			return nil, err
		}
		lvl = parsed
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:       lvl,
		ReplaceAttr: config.ReplaceLogLevelNames,
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}
