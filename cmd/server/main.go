package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"homelab/internal/chat"
	"homelab/internal/db"
	"homelab/internal/games"
	myMiddleware "homelab/internal/middleware"
	"homelab/internal/reminder"
	"homelab/internal/requestlog"
	"homelab/internal/store/badgerstore"
	"homelab/internal/store/memory"
	"homelab/internal/store/postgres"
	"homelab/internal/store/redisstore"
	"homelab/internal/user"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Config & Flags
	addr := flag.String("addr", "", "http service address (overrides HTTP_ADDR)")
	flag.Parse()

	_ = godotenv.Load()
	config, err := loadConfig()
	if err != nil {
		return err
	}
	if *addr != "" {
		config.HTTPAddr = *addr
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Connect to Database (Platform Layer)
	database, err := db.NewDatabase(config.DBDSN)
	if err != nil {
		return fmt.Errorf("failed to connect to DB: %w", err)
	}
	defer func() { _ = database.Close() }()
	log.Info("✅ Connected to PostgreSQL")

	if err := database.AutoMigrate(); err != nil {
		return err
	}
	log.Info("✅ Database Schema Initialized")

	// 3. Chat storage
	store, closeStore, err := openChatStore(config, database, log)
	if err != nil {
		return err
	}
	defer closeStore()
	log.Info("✅ Chat store ready", "backend", config.ChatStore)

	// 4. Initialize User Feature
	userRepo := user.NewRepository(database.Conn)
	userService := user.NewService(userRepo, config.JWTSecret, config.JWTTTL)
	userHandler := user.NewHandler(userService, log)

	// 5. Initialize Chat Feature
	hub := chat.NewHub(chat.NewRegistry(), store, log, config.Chat())
	chatHandler := chat.NewHandler(hub, log)

	// 6. Initialize Reminders, Games & Request Logs
	reminderHandler := reminder.NewHandler(reminder.NewService(reminder.NewRepository(database.Conn)), log)
	gamesHandler := games.NewHandler(games.NewService(games.NewRepository(database.Conn)), log)

	requestLogs := requestlog.NewRepository(database.Conn)
	recorder := requestlog.NewRecorder(requestLogs, log, config.RequestLog())
	requestLogHandler := requestlog.NewHandler(requestLogs, log)

	authMiddleware := myMiddleware.NewAuthMiddleware(userService)

	// 7. Define Routes
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Public Routes
	r.Group(func(r chi.Router) {
		r.Use(recorder.Middleware)
		r.Post("/register", userHandler.Register)
		r.Post("/login", userHandler.Login)
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := database.Conn.PingContext(ctx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})

	// Protected Routes (Require JWT)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)
		r.Use(recorder.Middleware)
		r.Get("/api/users/search", userHandler.SearchUsers)
		r.Get("/api/users/me", userHandler.Me)

		// WebSocket (Real-time)
		r.Get("/chat/ws", chatHandler.ServeWs)

		r.Route("/chat/channels", func(r chi.Router) {
			r.Post("/", chatHandler.CreateChannel)
			r.Get("/", chatHandler.ListChannels)
			r.Put("/subscribe", chatHandler.Subscribe)
			r.Put("/unsubscribe", chatHandler.Unsubscribe)
		})

		r.Route("/api/reminders", reminderHandler.Routes)
		r.Route("/api/games/connections", gamesHandler.Routes)
		r.Route("/api/logs", requestLogHandler.Routes)
	})

	// 8. Serve until signalled
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The recorder outlives the server so requests drained by Shutdown are
	// still flushed.
	recorderCtx, stopRecorder := context.WithCancel(context.Background())
	recorderDone := make(chan struct{})
	go func() {
		defer close(recorderDone)
		_ = recorder.Run(recorderCtx)
	}()
	defer func() {
		stopRecorder()
		<-recorderDone
	}()

	srv := &http.Server{
		Addr:              config.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// Hijacked sockets never see Shutdown; tying requests to ctx ends them.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("🚀 Server starting", "addr", config.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return fmt.Errorf("http server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("Server stopped cleanly")
	return nil
}

// openChatStore builds the backend named by CHAT_STORE. The returned func
// releases whatever the backend opened.
func openChatStore(config Config, database *db.Database, log *slog.Logger) (chat.Store, func(), error) {
	switch config.ChatStore {
	case storeRedis:
		rdb := redis.NewClient(&redis.Options{Addr: config.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		return redisstore.New(rdb), func() { _ = rdb.Close() }, nil

	case storeBadger:
		bdb, err := badger.Open(badger.DefaultOptions(config.BadgerPath).WithLoggingLevel(badger.WARNING))
		if err != nil {
			return nil, nil, fmt.Errorf("database opening failed: %w", err)
		}
		return badgerstore.New(bdb, log), func() {
			log.Info("Closing BadgerDB...")
			_ = bdb.Close()
		}, nil

	case storeMemory:
		log.Warn("Chat history is kept in memory and lost on restart")
		return memory.New(), func() {}, nil

	default:
		return postgres.New(database.Conn), func() {}, nil
	}
}
