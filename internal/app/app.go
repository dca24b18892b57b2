// Package app はコマンドの起動処理と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/projvault/internal/auth"
	"github.com/hitoshi/projvault/internal/config"
	"github.com/hitoshi/projvault/internal/database"
	"github.com/hitoshi/projvault/internal/handler"
	"github.com/hitoshi/projvault/internal/identity"
	"github.com/hitoshi/projvault/internal/logger"
	"github.com/hitoshi/projvault/internal/metrics"
	"github.com/hitoshi/projvault/internal/middleware"
	"github.com/hitoshi/projvault/internal/passcode"
	"github.com/hitoshi/projvault/internal/profile"
	"github.com/hitoshi/projvault/internal/repository"
	"github.com/hitoshi/projvault/internal/worker/janitor"
)

const dbPingTimeout = 5 * time.Second

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

	// 3. ログレベルを反映
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
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
		slog.String("env", cfg.AppEnv),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandPurge:
		return runPurge(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Ping(ctx, db, dbPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーとジャニターを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. DB接続
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. Redis（セッションまたはレート制限で使う場合のみ）
	var rdb *redis.Client
	if cfg.UsesRedis() {
		rdb, err = newRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer rdb.Close()
		slog.Info("redis connection established", slog.String("addr", cfg.RedisAddr))
	}

	// 3. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 4. 保存先の初期化
	passcodeRepo := repository.NewPostgresPasscodeRepo(db)
	profileRepo := repository.NewPostgresProfileRepo(db)

	sessions, err := buildSessionBackend(cfg, db, rdb)
	if err != nil {
		return err
	}

	limiter, stopLimiter, err := buildLimiter(cfg, rdb)
	if err != nil {
		return err
	}
	defer stopLimiter()

	notifier, err := buildNotifier(cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to configure mail delivery: %w", err)
	}

	// 5. ドメインサービスの初期化
	policy := identity.NewPolicy(cfg.StudentEmailDomain, cfg.StudentEmailTag,
		identity.WithMinAdmissionYear(cfg.MinAdmissionYear),
	)
	profileService := profile.NewService(profileRepo, time.Now)

	authService := auth.NewService(auth.Deps{
		Policy:    policy,
		Limiter:   limiter,
		Passcodes: passcodeRepo,
		Generator: passcode.NewRandomGenerator(),
		Notifier:  notifier,
		Profiles:  profileService,
		Sessions:  sessions.store,
		Metrics:   collector,
	}, auth.ServiceConfig{
		PasscodeTTL:     cfg.PasscodeTTL,
		Cooldown:        cfg.PasscodeCooldown,
		SendMaxAttempts: cfg.SendCodeMaxAttempts,
		SendWindow:      cfg.SendCodeWindow,
		SessionMaxAge:   time.Duration(cfg.SessionMaxAge) * time.Second,
	})

	// 6. ルーターの構築
	clientLimiter := middleware.NewClientRateLimiter(middleware.PerMinuteConfig(cfg.RateLimitAuth))
	defer clientLimiter.Stop()

	healthChecks := []handler.HealthCheck{
		{Name: "database", Check: db.PingContext},
	}
	if rdb != nil {
		healthChecks = append(healthChecks, handler.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}

	router := handler.NewRouter(&handler.RouterDeps{
		SessionFinder:     sessions.store,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		ClientRateLimiter: clientLimiter,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
		Logger:            slog.Default(),
		Metrics:           collector,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
			DevEchoCode:   cfg.DevEchoCode,
		},

		HealthChecks:   healthChecks,
		MetricsHandler: metrics.Handler(registry),
	})

	// 7. ジャニターの起動
	opts := []janitor.Option{
		janitor.WithLogger(slog.Default()),
		janitor.WithMetrics(collector),
	}
	if sessions.sweeper != nil {
		opts = append(opts, janitor.WithSessionSweeper(sessions.sweeper))
	}
	jan := janitor.New(passcodeRepo, cfg.JanitorInterval, opts...)
	jan.Start(ctx)
	defer jan.Stop()

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.String("session_backend", cfg.SessionBackend),
			slog.String("rate_limit_backend", cfg.RateLimitBackend),
			slog.String("mail_backend", cfg.MailBackend),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runPurge は期限切れ・使用済みパスコードの削除を1回だけ実行する。
// セッションの保存先がPostgreSQLの場合は期限切れセッションも削除する。
func runPurge(cfg *config.Config) error {
	ctx := context.Background()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	opts := []janitor.Option{janitor.WithLogger(slog.Default())}
	if cfg.SessionBackend == config.BackendPostgres {
		opts = append(opts, janitor.WithSessionSweeper(repository.NewPostgresSessionRepo(db)))
	}
	jan := janitor.New(repository.NewPostgresPasscodeRepo(db), cfg.JanitorInterval, opts...)

	if _, err := jan.RunOnce(ctx); err != nil {
		return fmt.Errorf("purge failed: %w", err)
	}
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.MigrateUp(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
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
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
