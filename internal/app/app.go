package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/feedtree/internal/collection"
	"github.com/hitoshi/feedtree/internal/config"
	"github.com/hitoshi/feedtree/internal/database"
	"github.com/hitoshi/feedtree/internal/fetch"
	"github.com/hitoshi/feedtree/internal/handler"
	"github.com/hitoshi/feedtree/internal/item"
	"github.com/hitoshi/feedtree/internal/logger"
	"github.com/hitoshi/feedtree/internal/metrics"
	"github.com/hitoshi/feedtree/internal/middleware"
	"github.com/hitoshi/feedtree/internal/refresh"
	"github.com/hitoshi/feedtree/internal/repository"
	"github.com/hitoshi/feedtree/internal/security"
	"github.com/hitoshi/feedtree/internal/tree"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

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

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// services はワイヤリング済みのサービス層一式。serveとworkerで共有する。
type services struct {
	treeStore     *tree.Store
	collectionSvc *collection.Service
	prober        *fetch.Prober
	refreshSvc    *refresh.Service
	registry      *prometheus.Registry
}

// wire はリポジトリからサービス層までをワイヤリングする。
func wire(cfg *config.Config, collectionRepo *repository.PostgresCollectionRepo, itemRepo *repository.PostgresItemRepo) *services {
	treeStore := tree.NewStore(collectionRepo)
	collectionSvc := collection.NewService(collectionRepo, itemRepo, slog.Default())

	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()
	fetcher := fetch.NewFetcher(ssrfGuard, sanitizer, slog.Default(), cfg.FetchTimeout, cfg.FetchMaxSize)
	prober := fetch.NewProber(fetcher, collectionRepo, slog.Default())

	reconciler := item.NewReconciler(itemRepo, slog.Default())

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	refreshSvc := refresh.NewService(
		collectionRepo, treeStore, fetcher, reconciler, collector,
		slog.Default(), cfg.FetchMaxConcurrent,
	)

	return &services{
		treeStore:     treeStore,
		collectionSvc: collectionSvc,
		prober:        prober,
		refreshSvc:    refreshSvc,
		registry:      registry,
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. サービス層のワイヤリング
	svcs := wire(cfg,
		repository.NewPostgresCollectionRepo(db),
		repository.NewPostgresItemRepo(db),
	)

	// 3. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral))
	defer rateLimiter.Stop()

	router := handler.NewRouter(handler.RouterDeps{
		Tree:              svcs.treeStore,
		Collections:       svcs.collectionSvc,
		Refresh:           svcs.refreshSvc,
		Probe:             svcs.prober,
		Logger:            slog.Default(),
		RateLimiter:       rateLimiter,
		MetricsHandler:    metrics.Handler(svcs.registry),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
	})

	// 4. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、更新スケジューラを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. サービス層のワイヤリング
	svcs := wire(cfg,
		repository.NewPostgresCollectionRepo(db),
		repository.NewPostgresItemRepo(db),
	)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("refresh_tick", cfg.RefreshTick),
		slog.Int("max_concurrent", cfg.FetchMaxConcurrent),
	)

	// 更新スケジューラをメインgoroutineで実行（ブロッキング）
	svcs.refreshSvc.Start(ctx, cfg.RefreshTick)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
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
