package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"shopassist/internal/cart"
	"shopassist/internal/composer"
	"shopassist/internal/config"
	"shopassist/internal/discount"
	"shopassist/internal/domain"
	"shopassist/internal/embedding/hashing"
	"shopassist/internal/embedding/openai"
	"shopassist/internal/history"
	"shopassist/internal/httpapi"
	"shopassist/internal/llm"
	"shopassist/internal/notify"
	"shopassist/internal/obs"
	"shopassist/internal/payment"
	"shopassist/internal/service"
	"shopassist/internal/speech"
	"shopassist/internal/summarizer"
	"shopassist/internal/vectorstore"
	"shopassist/internal/vectorstore/memory"
	"shopassist/internal/vectorstore/qdrant"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	flag.StringVar(&cfgPath, "config", os.Getenv("CONFIG_PATH"), "Path to YAML config file (optional; uses ./config.yaml or ~/.config/shopassist/config.yaml if not provided)")
	flag.Parse()

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	config.ApplyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	obs.InitLogger(cfg.Server.LogLevel)

	// Assemble components
	var emb domain.Embedder
	switch cfg.Embedder.Type {
	case "hashing", "":
		emb = hashing.NewEmbedder(cfg.Embedder.Dimension)
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			log.Fatalf("openai embedder config missing")
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:   cfg.Embedder.OpenAI.BaseURL,
			APIKeyEnv: cfg.Embedder.OpenAI.APIKeyEnv,
			Model:     cfg.Embedder.OpenAI.Model,
			Timeout:   time.Duration(cfg.Embedder.OpenAI.TimeoutSecs) * time.Second,
		})
		if err != nil {
			log.Fatalf("openai embedder init failed: %v", err)
		}
		emb = client
	default:
		log.Fatalf("unknown embedder: %s", cfg.Embedder.Type)
	}

	var st vectorstore.Storage
	switch cfg.VectorStore.Type {
	case "memory", "":
		st = memory.NewStorage()
	case "qdrant":
		st = qdrant.NewStorage(qdrant.Config{
			URL:        cfg.VectorStore.Qdrant.URL,
			APIKey:     cfg.VectorStore.Qdrant.APIKey,
			Collection: cfg.VectorStore.Qdrant.Collection,
			Timeout:    time.Duration(cfg.VectorStore.Qdrant.TimeoutSecs) * time.Second,
		})
	default:
		log.Fatalf("unknown vector store: %s", cfg.VectorStore.Type)
	}

	gen, err := llm.NewGenerator(cfg.LLM)
	if err != nil {
		log.Fatalf("llm init failed: %v", err)
	}

	var transcriber domain.Transcriber
	switch cfg.Speech.Type {
	case "google", "":
		transcriber = speech.NewGoogle(speech.Config{
			BaseURL:  cfg.Speech.BaseURL,
			APIKey:   os.Getenv(cfg.Speech.APIKeyEnv),
			Language: cfg.Speech.Language,
			Timeout:  time.Duration(cfg.Speech.TimeoutSecs) * time.Second,
		})
	case "none":
	default:
		log.Fatalf("unknown speech recognizer: %s", cfg.Speech.Type)
	}

	gateway := payment.NewEsewa(payment.Config{
		MerchantCode: cfg.Payment.MerchantCode,
		PaymentURL:   cfg.Payment.PaymentURL,
		VerifyURL:    cfg.Payment.VerifyURL,
		SuccessURL:   cfg.Payment.SuccessURL,
		FailureURL:   cfg.Payment.FailureURL,
		Timeout:      time.Duration(cfg.Payment.TimeoutSecs) * time.Second,
	})
	var ledger service.Ledger
	if cfg.Payment.LedgerPath != "" {
		l, err := payment.OpenLedger(cfg.Payment.LedgerPath)
		if err != nil {
			log.Fatalf("open payment ledger: %v", err)
		}
		defer l.Close()
		ledger = l
	}

	hist := history.NewStore(cfg.History.Path, history.Options{
		MaxTurns:  cfg.History.MaxTurns,
		MaxTokens: cfg.History.MaxTokens,
		Counter:   history.NewCounter(cfg.History.Tokenizer),
	})
	if err := hist.Load(); err != nil {
		obs.Logger.Warn("history_load_failed", "path", cfg.History.Path, "error", err)
	}

	hub := notify.NewHub(cfg.Notify.Buffer)
	comp := composer.New(gen, hist, summarizer.NewFrequencySummarizer(), composer.Options{
		MaxSummarySentences: cfg.History.MaxSummary,
		Autosave:            cfg.History.Autosave,
	})
	assistant := service.NewAssistant(service.Deps{
		Embedder:   emb,
		Store:      st,
		Composer:   comp,
		Hub:        hub,
		Gateway:    gateway,
		Ledger:     ledger,
		Cart:       cart.New(),
		Negotiator: discount.NewNegotiator(cfg.Discount.Baseline, cfg.Discount.Max, cfg.Discount.Step),
		ImageDir:   cfg.Catalog.ImageDir,
		TopK:       cfg.VectorStore.TopK,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var limiter *httpapi.RateLimiter
	if cfg.Server.RateRPS > 0 {
		limiter = httpapi.NewRateLimiter(cfg.Server.RateRPS, cfg.Server.RateBurst)
		go limiter.Run(ctx)
	}

	app := httpapi.NewApp(httpapi.App{
		Assistant:      assistant,
		History:        hist,
		Hub:            hub,
		Transcriber:    transcriber,
		Limiter:        limiter,
		ImageDir:       cfg.Catalog.ImageDir,
		CORSOrigins:    cfg.Server.CORSOrigins,
		MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
	})
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           httpapi.NewRouter(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		obs.Logger.Info("server_started", "addr", cfg.Server.Addr, "embedder", emb.Name(), "vector_store", cfg.VectorStore.Type, "llm", cfg.LLM.Provider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			obs.Logger.Error("server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSecs)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		obs.Logger.Error("shutdown_failed", "error", err)
	}
	if err := hist.Save(); err != nil {
		obs.Logger.Error("history_save_failed", "error", err)
	}
	obs.Logger.Info("server_stopped")
}
