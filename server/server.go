package server

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"WaveFM/cache"
	"WaveFM/config"
	"WaveFM/core/audio"
	"WaveFM/core/auth"
	"WaveFM/core/play"
	"WaveFM/db"
	"WaveFM/logger"
	"WaveFM/model"
	"WaveFM/repository"
	"WaveFM/storage"

	"github.com/gorilla/mux"
)

// newStorageProvider selects the storage backend from configuration.
func newStorageProvider(cfg *config.Config) (storage.Provider, error) {
	if cfg.StorageBackend == "minio" {
		return storage.NewMinioProvider(cfg)
	}
	return storage.NewLocalProvider(cfg.UploadDir)
}

// newDebouncer selects the debounce backend from configuration.
func newDebouncer(cfg *config.Config) play.Debouncer {
	window := time.Duration(cfg.PlayDebounceWindow) * time.Second
	if cfg.PlayDebounceBackend == "redis" {
		return play.NewRedisDebouncer(cache.RedisClient, window)
	}
	return play.NewMemoryDebouncer(window, cfg.PlayDebounceMaxSize,
		time.Duration(cfg.PlayDebouncePruneAge)*time.Second)
}

// Start initializes dependencies and runs the HTTP server until SIGTERM.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.InfoLevel,
		OutputPath: "logs/wavefm.log",
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})

	auth.SetSecret(cfg.JWTSecret)

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if err := db.ConnectDB(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.DB.Close()

	if err := db.InitDB(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	if err := db.ConnectGormDB(cfg); err != nil {
		log.Fatalf("Failed to connect to database with GORM: %v", err)
	}
	defer db.CloseGormDB()

	if err := db.AutoMigrateModels(&model.PlayHistory{}); err != nil {
		log.Fatalf("Failed to migrate models: %v", err)
	}

	if err := cache.ConnectRedis(cfg); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer cache.CloseRedis()
	log.Println("Successfully connected to Redis")

	store, err := newStorageProvider(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage backend: %v", err)
	}

	trackRepo := repository.NewMySQLTrackRepository()
	userRepo := repository.NewMySQLUserRepository(db.DB)
	historyRepo := repository.NewGormPlayHistoryRepository(db.GormDB)

	trackCache := cache.NewTrackCache(cache.RedisClient, time.Duration(cfg.TrackCacheTTL)*time.Second)

	prober := audio.NewProber(cfg.FFmpegPath)
	waveform := audio.NewWaveformGenerator(cfg.FFmpegPath, cfg.WaveformPoints)
	transcoder := audio.NewTranscoder(cfg)
	ingestor := audio.NewIngestor(prober, waveform, transcoder, store, trackRepo, trackCache)

	recorder := play.NewRecorder(newDebouncer(cfg), trackRepo, historyRepo)

	apiHandler := NewAPIHandler(trackRepo, userRepo, historyRepo, ingestor, recorder, store, trackCache, cfg)

	router := mux.NewRouter()

	// CORS middleware. Range and the range response headers must be exposed
	// for browser players to seek.
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
			w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, Accept-Ranges, X-Content-Duration")
			w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// Auth endpoints
	router.HandleFunc("/api/auth/register", apiHandler.RegisterHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/login", apiHandler.LoginHandler).Methods(http.MethodPost)

	// Track endpoints
	router.HandleFunc("/api/tracks", apiHandler.AuthMiddleware(apiHandler.GetTracksHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/{track_id}", apiHandler.OptionalAuthMiddleware(apiHandler.GetTrackHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/{track_id}", apiHandler.AuthMiddleware(apiHandler.DeleteTrackHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/upload", apiHandler.AuthMiddleware(apiHandler.UploadTrackHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/history", apiHandler.AuthMiddleware(apiHandler.GetHistoryHandler)).Methods(http.MethodGet)

	// Streaming endpoints. Anonymous listening is allowed for public tracks.
	router.HandleFunc("/stream/{track_id}", apiHandler.OptionalAuthMiddleware(apiHandler.StreamTrackHandler)).Methods(http.MethodGet)
	router.HandleFunc("/stream/{track_id}/complete", apiHandler.OptionalAuthMiddleware(apiHandler.CompletePlayHandler)).Methods(http.MethodPost)
	router.HandleFunc("/stream/{track_id}/waveform", apiHandler.OptionalAuthMiddleware(apiHandler.WaveformHandler)).Methods(http.MethodGet)

	server.Handler = router

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on %s...", cfg.ServerAddr)
		log.Println("Upload tracks via POST to /api/upload")
		log.Println("Stream tracks via GET from /stream/{track_id}?quality={low|medium|high|lossless}")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
