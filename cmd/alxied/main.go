package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/valee-art/ALXIE/pkg/adminlock"
	"github.com/valee-art/ALXIE/pkg/ai"
	"github.com/valee-art/ALXIE/pkg/api"
	"github.com/valee-art/ALXIE/pkg/broker"
	"github.com/valee-art/ALXIE/pkg/config"
	"github.com/valee-art/ALXIE/pkg/logger"
	"github.com/valee-art/ALXIE/pkg/ops"
	"github.com/valee-art/ALXIE/pkg/shutdown"
	"github.com/valee-art/ALXIE/pkg/store"
)

func main() {
	_ = godotenv.Load(".env")
	addrVal, backendVal, dbVal, redisVal, cfgVal, setFlags := config.ParseCommandFlags()

	cfgPath := config.ResolveConfigPath(cfgVal, setFlags["config"])
	cfg, envUsed, err := config.LoadEffective(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.InitWithLevel(cfg.Logging.Level)

	// Flags win over config and env when explicitly set.
	addr := cfg.Addr()
	if setFlags["addr"] {
		addr = addrVal
	}
	backend := cfg.Storage.Backend
	if setFlags["backend"] || backend == "" {
		backend = backendVal
	}
	dbPath := cfg.Storage.DBPath
	if setFlags["db"] || dbPath == "" {
		dbPath = dbVal
	}
	redisURL := cfg.Storage.RedisURL
	if setFlags["redis"] {
		redisURL = redisVal
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	adapter, err := store.Open(ctx, backend, dbPath, redisURL)
	if err != nil {
		log.Fatalf("failed to open %s store: %v", backend, err)
	}

	var responder ai.Responder = ai.Static{}
	if cfg.AI.APIKey != "" {
		g, err := ai.NewGoogleAI(ctx, cfg.AI.APIKey, cfg.AI.Model)
		if err != nil {
			logger.Warn("ai_init_failed_using_static", "error", err)
		} else {
			responder = g
		}
	}

	cronExpr := cfg.AI.AffirmationCron
	if cronExpr == "" {
		cronExpr = "0 6 * * *"
	}
	affirm := ai.NewAffirmationCache(responder, cronExpr)
	affirm.Start(ctx)

	var tts ai.Synthesizer = ai.NoopSynthesizer{}
	if cfg.AI.TTS && cfg.AI.APIKey != "" {
		tts = ai.NewGeminiTTS(cfg.AI.APIKey)
	}

	srv := &api.Server{
		Ops:            ops.New(adapter, responder),
		Broker:         broker.New(adapter),
		Affirm:         affirm,
		TTS:            tts,
		Gate:           adminlock.New(),
		AdminKeys:      cfg.Security.AdminKeys,
		AllowedOrigins: cfg.Security.CORS.AllowedOrigins,
		RateRPS:        cfg.Security.RateLimit.RPS,
		RateBurst:      cfg.Security.RateLimit.Burst,
	}

	router := srv.Router()
	router.Handle("/metrics", promhttp.Handler())

	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  60 * time.Second,
		WriteTimeout: 0, // SSE streams stay open indefinitely
	}

	logger.Info("server_starting", "addr", addr, "backend", backend, "env_config", envUsed)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	shutdown.Wait(httpSrv, adapter)
}
