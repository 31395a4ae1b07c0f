package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/superkart/internal/auth"
	"github.com/hitoshi/superkart/internal/catalog"
	"github.com/hitoshi/superkart/internal/config"
	"github.com/hitoshi/superkart/internal/database"
	"github.com/hitoshi/superkart/internal/handler"
	"github.com/hitoshi/superkart/internal/logger"
	"github.com/hitoshi/superkart/internal/metrics"
	"github.com/hitoshi/superkart/internal/middleware"
	"github.com/hitoshi/superkart/internal/repository"
	"github.com/hitoshi/superkart/internal/security"
	"github.com/hitoshi/superkart/internal/storeapi"
	"github.com/hitoshi/superkart/internal/storefront"
	"github.com/hitoshi/superkart/internal/worker/cleanup"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	var action MigrateAction
	if cmd == CommandMigrate {
		a, err := ParseMigrateAction(args)
		if err != nil {
			return err
		}
		action = a
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	if err := cmd.checkSessionStore(cfg); err != nil {
		return err
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("session_store", cfg.SessionStore),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg, action)
	default:
		return runServe(cfg)
	}
}

// sessionBackend はSESSION_STOREで選択したセッションストアとその疎通確認。
type sessionBackend struct {
	repo   repository.SessionRepository
	health handler.HealthChecker // メモリストアではnil
	close  func() error
}

// sqlPinger は*sql.DBをhandler.HealthCheckerに適合させる。
type sqlPinger struct {
	db *sql.DB
}

func (p sqlPinger) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// redisPinger は*redis.Clientをhandler.HealthCheckerに適合させる。
type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// openSessionStore は設定に応じたセッションストアを開き、疎通を確認する。
func openSessionStore(ctx context.Context, cfg *config.Config) (*sessionBackend, error) {
	switch cfg.SessionStore {
	case config.SessionStorePostgres:
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("database connection established")
		return &sessionBackend{
			repo:   repository.NewPostgresSessionRepo(db),
			health: sqlPinger{db: db},
			close:  db.Close,
		}, nil

	case config.SessionStoreRedis:
		client, err := database.OpenRedis(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open redis: %w", err)
		}
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		slog.Info("redis connection established")
		return &sessionBackend{
			repo:   repository.NewRedisSessionRepo(client),
			health: redisPinger{client: client},
			close:  client.Close,
		}, nil

	default:
		return &sessionBackend{
			repo:  repository.NewMemorySessionRepo(),
			close: func() error { return nil },
		}, nil
	}
}

// newStoreHTTPClient は外部API呼び出し用のHTTPクライアントを生成する。
// トランスポートはOpenTelemetryで計装する。
func newStoreHTTPClient(cfg *config.Config) *http.Client {
	var client *http.Client
	if cfg.StoreAPISafeClient {
		client = security.NewOutboundGuard().NewSafeClient(cfg.StoreAPITimeout)
	} else {
		client = &http.Client{Timeout: cfg.StoreAPITimeout}
	}

	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	client.Transport = otelhttp.NewTransport(base)
	return client
}

// server はserveモードで組み立てた依存関係。
type server struct {
	handler  http.Handler
	registry *storefront.Registry
	limiter  *middleware.RateLimiter
	// cleanup はメモリストアの場合のみ設定される。共有ストアの掃除はworkerが担う。
	cleanup *cleanup.CleanupJob
}

// newServer は全依存関係をワイヤリングしてHTTPハンドラーを構築する。
func newServer(cfg *config.Config, store *sessionBackend, reg *prometheus.Registry) *server {
	log := slog.Default()
	collector := metrics.NewCollector(reg)

	// 1. 外部APIクライアント
	api := storeapi.NewClient(newStoreHTTPClient(cfg), log, cfg.StoreAPIURL, collector)

	// 2. ドメインサービスの初期化
	authService := auth.NewService(store.repo, auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge})
	catalogService := catalog.NewService(api, security.NewDescriptionSanitizer(), log)
	registry := storefront.NewRegistry(api, store.repo, security.NewOutboundGuard(), collector, log, storefront.Config{
		IdleTTL:           cfg.SessionIdleTTL,
		ShippingFee:       cfg.ShippingFee,
		CheckoutReturnURL: cfg.CheckoutReturnURL,
	})

	// 3. ルーターの構築
	limiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAuth))
	deps := &handler.RouterDeps{
		Logger:            log,
		SessionProvider:   authService,
		Containers:        registry,
		SessionTerminator: authService,
		SessionReleaser:   registry,
		SessionConfig: middleware.SessionConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
			MaxAge:       cfg.SessionMaxAge,
		},
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure:   cfg.CookieSecure,
			CookieDomain:   cfg.CookieDomain,
			TrustedOrigins: append(middleware.ParseOrigins(cfg.CORSAllowedOrigin), cfg.BaseURL),
		},
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       limiter,
		StatusRecorder:    collector,
		Catalog:           catalogService,
		HealthChecker:     store.health,
		MetricsHandler:    metrics.Handler(reg),
	}

	srv := &server{
		handler:  otelhttp.NewHandler(handler.NewRouter(deps), "superkart"),
		registry: registry,
		limiter:  limiter,
	}
	if cfg.SessionStore == config.SessionStoreMemory {
		srv.cleanup = cleanup.NewCleanupJob(store.repo, collector, log)
	}
	return srv
}

// start はバックグラウンド処理（アイドルセッションの破棄、メモリストアの掃除）を起動する。
func (s *server) start(ctx context.Context, cleanupInterval time.Duration) {
	go s.registry.Run(ctx)
	if s.cleanup != nil {
		go s.cleanup.Start(ctx, cleanupInterval)
	}
}

// stop はレートリミッターを停止し、メモリ上のセッションを閉じる。
func (s *server) stop() {
	s.limiter.Stop()
	s.registry.Close()
}

// newMetricsRegistry はアプリケーションとランタイムのメトリクスを登録するレジストリを生成する。
func newMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// runServe はAPIサーバーモードで起動する。
// セッションストアを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. セッションストア
	store, err := openSessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.close()

	// 2. 依存関係のワイヤリング
	srv := newServer(cfg, store, newMetricsRegistry())
	srv.start(ctx, cfg.SessionCleanupInterval)
	defer srv.stop()

	// 3. HTTPサーバーの起動
	httpServer := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.StoreAPITimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	listenErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", httpServer.Addr),
			slog.String("store_api_url", cfg.StoreAPIURL),
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			listenErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-listenErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 共有セッションストアを開き、期限切れセッションのクリーンアップを定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openSessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.close()

	job := cleanup.NewCleanupJob(store.repo, nil, slog.Default())

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.SessionCleanupInterval),
	)

	// クリーンアップジョブをメインgoroutineで実行（ブロッキング）
	job.Start(ctx, cfg.SessionCleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はsessionsテーブルのマイグレーションを操作する。
func runMigrate(cfg *config.Config, action MigrateAction) error {
	slog.Info("running database migrations",
		slog.String("action", string(action)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch action {
	case MigrateDown:
		if err := database.RollbackMigration(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
	case MigrateVersion:
		version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("migration version check failed: %w", err)
		}
		slog.Info("current migration version",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
		return nil
	default:
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
