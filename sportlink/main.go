package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sportlink/sportlink/config"
	"sportlink/sportlink/controllers"
	"sportlink/sportlink/middlewares"
	"sportlink/sportlink/reconciler"
	"sportlink/sportlink/routes"
	"sportlink/sportlink/services/hub"
	"sportlink/sportlink/services/sessions"
	"sportlink/sportlink/sources"
	"sportlink/sportlink/sources/storage"
	"sportlink/sportlink/utils/logging"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	logging.InitLogger(cfg.LogDir)
	defer logging.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, closeStore, err := sources.OpenChatStore(ctx, cfg)
	if err != nil {
		logging.ErrorLogger.Error("chat store error", zap.Error(err))
		os.Exit(1)
	}
	defer closeStore()

	loc := cfg.Location()
	events := hub.New()
	defer events.Close()
	backend := reconciler.NewBackendClient(cfg.BackendURL, cfg.BackendTimeout)
	rec := reconciler.New(backend, reconciler.WithLocation(loc))
	svc := sessions.NewService(backend, rec, store, events, loc)

	// attachments are optional; without MinIO only text messages work
	var blobs controllers.AttachmentStore
	if cfg.MinIOEndpoint != "" {
		minioClient, err := storage.NewMinIOClient(ctx, cfg)
		if err != nil {
			logging.ErrorLogger.Error("minio connection error", zap.Error(err))
			os.Exit(1)
		}
		blobs = minioClient
	}

	chatCtrl := controllers.NewChatController(store, svc, events, blobs, int64(cfg.MaxAttachmentMB)<<20)
	sessionsCtrl := controllers.NewSessionsController(svc, loc)
	healthCtrl := controllers.NewHealthController(cfg.ChatBackend)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewares.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Mount("/health", routes.HealthRoutes(healthCtrl))
	// websockets outlive the request timeout, so /chat is mounted outside it
	r.Mount("/chat", routes.ChatRoutes(chatCtrl, cfg))
	r.With(middleware.Timeout(60*time.Second)).Mount("/sessions", routes.SessionsRoutes(sessionsCtrl, cfg))

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}
	go func() {
		logging.AppLogger.Info("server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.ErrorLogger.Error("server listen error", zap.Error(err))
		}
	}()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.ErrorLogger.Error("server shutdown error", zap.Error(err))
	}
	logging.AppLogger.Info("server shutdown complete")
}
