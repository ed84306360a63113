// Package app はbookmanのコンポジションルート。
// 設定の読み込み、依存関係のワイヤリング、各サブコマンドの実行を担う。
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

	"github.com/hitoshi/bookman/internal/auth"
	"github.com/hitoshi/bookman/internal/catalog"
	"github.com/hitoshi/bookman/internal/checkout"
	"github.com/hitoshi/bookman/internal/config"
	"github.com/hitoshi/bookman/internal/database"
	"github.com/hitoshi/bookman/internal/handler"
	"github.com/hitoshi/bookman/internal/logger"
	"github.com/hitoshi/bookman/internal/metrics"
	"github.com/hitoshi/bookman/internal/middleware"
	"github.com/hitoshi/bookman/internal/model"
	"github.com/hitoshi/bookman/internal/repository"
	"github.com/hitoshi/bookman/internal/tokenstore"
	"github.com/hitoshi/bookman/internal/user"
	"github.com/hitoshi/bookman/internal/worker/overdue"
)

// dbPingTimeout は起動時のDB疎通確認のタイムアウト。
const dbPingTimeout = 5 * time.Second

// shutdownTimeout はグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、設定ファイルと環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer, configPath string) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 設定を読み込む
	var opts []config.Option
	if configPath != "" {
		opts = append(opts, config.WithConfigFile(configPath))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルを反映する
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("failed to set log level: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return NewCLI(w).RunContext(ctx, append([]string{"bookman"}, args...))
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := database.Ping(ctx, db, dbPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)
	return db, nil
}

// newRegistry はGo/プロセスのメトリクスを登録済みのレジストリを生成する。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// serverComponents はAPIサーバーの構成要素。
type serverComponents struct {
	Router      http.Handler
	RateLimiter *middleware.RateLimiter
}

// buildServer はDB接続とトークンストアから全依存関係をワイヤリングし、ルーターを構築する。
func buildServer(cfg *config.Config, db *sql.DB, kv tokenstore.KV, reg *prometheus.Registry) *serverComponents {
	collector := metrics.NewCollector(reg)

	// 1. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	bookRepo := repository.NewPostgresBookRepo(db)
	checkoutRepo := repository.NewPostgresCheckoutRepo(db)

	// 2. 認証の初期化
	credentials := auth.NewCredentialStore(userRepo, cfg.BcryptCost)
	tokens := tokenstore.NewStore(kv, cfg.TokenTTL)
	authService := auth.NewService(credentials, tokens, userRepo, collector)

	// 3. ドメインサービスの初期化
	userService := user.NewService(userRepo, credentials)
	ledger := checkout.NewLedger(bookRepo, checkoutRepo, collector)

	// 4. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitLogin),
	)

	router := handler.NewRouter(&handler.RouterDeps{
		Authenticator:     authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		TrustedProxies:    cfg.TrustedProxies,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),
		HTTPRecorder:      collector,
		MetricsHandler:    metrics.Handler(reg),

		HealthChecker: db,

		AuthService: authService,
		BookService: bookRepo,
		Ledger:      ledger,
		UserService: userService,
	})

	return &serverComponents{Router: router, RateLimiter: rateLimiter}
}

// runServe はAPIサーバーモードで起動する。
// DB接続とトークンストアを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// コンテキストがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, w io.Writer, configPath string) error {
	cfg, err := Init(w, configPath)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(CommandServe)),
		slog.String("port", cfg.ServerPort),
	)

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	kv, err := tokenstore.OpenBadgerKV(cfg.TokenStoreDir, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to open token store: %w", err)
	}
	defer kv.Close()

	components := buildServer(cfg, db, kv, newRegistry())
	defer components.RateLimiter.Stop()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      components.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return serveUntilDone(ctx, server)
}

// serveUntilDone はHTTPサーバーを起動し、コンテキストのキャンセルでシャットダウンする。
func serveUntilDone(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down HTTP server...", slog.String("addr", server.Addr))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("HTTP server stopped gracefully", slog.String("addr", server.Addr))
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、延滞チェックスケジューラを起動する。
// metricsPortが空でなければ延滞メトリクスを/metricsで公開する。
func runWorker(ctx context.Context, w io.Writer, configPath, metricsPort string) error {
	cfg, err := Init(w, configPath)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(CommandWorker)),
		slog.Duration("overdue_interval", cfg.OverdueInterval),
		slog.Duration("loan_period", cfg.LoanPeriod),
	)

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	ledger := checkout.NewLedger(
		repository.NewPostgresBookRepo(db),
		repository.NewPostgresCheckoutRepo(db),
		nil,
	)
	job := overdue.NewJob(ledger, collector, slog.Default(), cfg.LoanPeriod)
	scheduler := overdue.NewScheduler(job, slog.Default())

	if metricsPort != "" {
		metricsServer := &http.Server{
			Addr:              ":" + metricsPort,
			Handler:           metrics.SetupMetricsRoute(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := serveUntilDone(ctx, metricsServer); err != nil {
				slog.Error("worker metrics server failed", slog.String("error", err.Error()))
			}
		}()
	}

	// スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.OverdueInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// rollbackが正の場合はその数だけ巻き戻し、それ以外はすべての未適用マイグレーションを適用する。
func runMigrate(w io.Writer, configPath string, rollback int) error {
	cfg, err := Init(w, configPath)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	if rollback > 0 {
		slog.Info("rolling back database migrations",
			slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
			slog.Int("steps", rollback),
		)
		if err := database.RollbackMigrations(cfg.DatabaseURL, rollback); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
		slog.Info("database migrations rolled back successfully")
		return nil
	}

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

// adminInput はcreate-adminコマンドの入力。
type adminInput struct {
	Email    string
	Name     string
	Password string
}

// runCreateAdmin は管理者ユーザーを作成する。
// 最初の管理者はAPIから登録できないため、このコマンドで作成する。
func runCreateAdmin(ctx context.Context, w io.Writer, configPath string, input adminInput) error {
	cfg, err := Init(w, configPath)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	userRepo := repository.NewPostgresUserRepo(db)
	service := user.NewService(userRepo, auth.NewCredentialStore(userRepo, cfg.BcryptCost))

	return createAdmin(ctx, service, input)
}

// AdminProvisioner は権限チェックなしでユーザーを作成するインターフェース。
type AdminProvisioner interface {
	Provision(ctx context.Context, input user.RegisterInput) (*model.User, error)
}

func createAdmin(ctx context.Context, provisioner AdminProvisioner, input adminInput) error {
	created, err := provisioner.Provision(ctx, user.RegisterInput{
		Name:     input.Name,
		Email:    input.Email,
		Password: input.Password,
		Role:     string(model.RoleAdmin),
	})
	if err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	slog.Info("admin user created",
		slog.String("user_id", created.ID),
		slog.String("email", created.Email),
	)
	return nil
}

// runImportBooks はCSVファイルから蔵書を一括登録する。
func runImportBooks(ctx context.Context, w io.Writer, configPath, path string) error {
	cfg, err := Init(w, configPath)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer f.Close()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	importer := catalog.NewImporter(repository.NewPostgresBookRepo(db), slog.Default())
	result, err := importer.ImportCSV(ctx, f)
	if err != nil {
		return fmt.Errorf("book import failed: %w", err)
	}

	slog.Info("book import finished",
		slog.String("file", path),
		slog.Int("imported", result.Imported),
		slog.Int("skipped", len(result.Skipped)),
	)
	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	u.RawQuery = ""
	return u.Redacted()
}
