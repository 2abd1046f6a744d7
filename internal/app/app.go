package app

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/rollcall/internal/attendance"
	"github.com/hitoshi/rollcall/internal/checkin"
	"github.com/hitoshi/rollcall/internal/config"
	"github.com/hitoshi/rollcall/internal/course"
	"github.com/hitoshi/rollcall/internal/credential"
	"github.com/hitoshi/rollcall/internal/database"
	"github.com/hitoshi/rollcall/internal/handler"
	"github.com/hitoshi/rollcall/internal/identity"
	"github.com/hitoshi/rollcall/internal/logger"
	"github.com/hitoshi/rollcall/internal/metrics"
	"github.com/hitoshi/rollcall/internal/middleware"
	"github.com/hitoshi/rollcall/internal/qrcode"
	"github.com/hitoshi/rollcall/internal/repository"
	"github.com/hitoshi/rollcall/internal/security"
)

// dbPingTimeout は起動時のDB疎通確認のタイムアウト。
const dbPingTimeout = 5 * time.Second

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
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
	return run(os.Stdin, w, args)
}

func run(stdin io.Reader, w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// 軽量サブコマンドはフル初期化をスキップする
	switch cmd {
	case CommandHealthcheck:
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	case CommandHashPassword:
		return runHashPassword(stdin, w)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("store", string(cfg.StoreDriver)),
	)

	switch cmd {
	case CommandMigrate:
		var rest []string
		if len(args) > 1 {
			rest = args[1:]
		}
		return runMigrate(cfg, rest, w)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", ":"+cfg.ServerPort)
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", cfg.ServerPort, err)
	}

	return serve(ctx, cfg, ln)
}

// serve は依存関係をワイヤリングし、ctxがキャンセルされるまでlnでHTTPを提供する。
func serve(ctx context.Context, cfg *config.Config, ln net.Listener) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 1. 永続化層
	st, err := openStore(ctx, cfg)
	if err != nil {
		ln.Close()
		return err
	}
	defer st.close()

	// 2. ドメインサービスの初期化
	hasher := security.NewPasswordHasher(security.DefaultArgon2Params)
	signer, err := identity.NewSigner([]byte(cfg.AssertionSecret), cfg.AssertionIssuer, cfg.AssertionTTL)
	if err != nil {
		ln.Close()
		return fmt.Errorf("failed to create assertion signer: %w", err)
	}
	identityService, err := identity.NewService(st.identities, hasher, signer, collector)
	if err != nil {
		ln.Close()
		return fmt.Errorf("failed to create identity service: %w", err)
	}

	issuer := credential.NewIssuer(st.lectures, st.credentials, cfg.CredentialMaxValidity)
	validator := attendance.NewValidator(st.transactor)
	checkinService := checkin.NewService(
		issuer, validator, qrcode.NewRenderer(cfg.QRImageSize), collector, cfg.CredentialDefaultValidity,
	)
	courseService := course.NewService(st.courses, st.lectures, st.enrollments)

	// 3. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.PerMinuteRateLimiterConfig(
		cfg.RateLimitGeneral, cfg.RateLimitLogin, cfg.RateLimitCheckIn,
	))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Verifier:          identityService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),
		StatusRecorder:    collector,
		HealthCheck:       st.healthCheck,
		MetricsHandler:    metrics.Handler(registry),

		AuthService:       handler.NewIdentityServiceAdapter(identityService),
		AttendanceService: handler.NewCheckInServiceAdapter(checkinService),
		CourseService:     handler.NewCourseServiceAdapter(courseService),
	})

	// 4. HTTPサーバーの起動
	server := &http.Server{
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", ln.Addr().String()))
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// store は起動したストア実装のリポジトリ群。
type store struct {
	identities  repository.IdentityRepository
	courses     repository.CourseRepository
	lectures    repository.LectureRepository
	enrollments repository.EnrollmentRepository
	credentials repository.CredentialRepository
	transactor  repository.Transactor
	healthCheck func(ctx context.Context) error
	close       func()
}

// openStore はSTORE_DRIVERに応じてストアを開く。
func openStore(ctx context.Context, cfg *config.Config) (*store, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		slog.Warn("using in-memory store; data is lost on restart")
		mem := repository.NewMemoryStore()
		return &store{
			identities:  mem.Identities(),
			courses:     mem.Courses(),
			lectures:    mem.Lectures(),
			enrollments: mem.Enrollments(),
			credentials: mem.Credentials(),
			transactor:  mem,
			close:       func() {},
		}, nil
	}

	db, err := database.Open(cfg.DatabaseURL, database.PoolOptions{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := database.PingWithRetry(ctx, db, dbPingTimeout, cfg.DBConnectAttempts); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")

	if cfg.AutoMigrate {
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			db.Close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}
		slog.Info("database migrations applied")
	}

	return postgresStore(db), nil
}

func postgresStore(db *sql.DB) *store {
	return &store{
		identities:  repository.NewPostgresIdentityRepo(db),
		courses:     repository.NewPostgresCourseRepo(db),
		lectures:    repository.NewPostgresLectureRepo(db),
		enrollments: repository.NewPostgresEnrollmentRepo(db),
		credentials: repository.NewPostgresCredentialRepo(db),
		transactor:  repository.NewPostgresTransactor(db),
		healthCheck: db.PingContext,
		close: func() {
			if err := db.Close(); err != nil {
				slog.Error("failed to close database", slog.String("error", err.Error()))
			}
		},
	}
}

// runMigrate はデータベースマイグレーションを実行する。
func runMigrate(cfg *config.Config, args []string, w io.Writer) error {
	if cfg.StoreDriver != config.StoreDriverPostgres {
		return fmt.Errorf("migrate requires STORE_DRIVER=%s", config.StoreDriverPostgres)
	}

	margs, err := ParseMigrateArgs(args)
	if err != nil {
		return err
	}

	slog.Info("running database migrations",
		slog.String("action", string(margs.Action)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch margs.Action {
	case MigrateDown:
		if err := database.RollbackMigrations(cfg.DatabaseURL, margs.Steps); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
	case MigrateVersion:
		version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to read migration version: %w", err)
		}
		fmt.Fprintf(w, "version=%d dirty=%t\n", version, dirty)
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
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// runHashPassword は標準入力の1行目をパスワードとしてargon2idハッシュを出力する。
// アカウントの手動投入用。
func runHashPassword(stdin io.Reader, w io.Writer) error {
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")

	hash, err := security.NewPasswordHasher(security.DefaultArgon2Params).Hash(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	fmt.Fprintln(w, hash)
	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	u.RawQuery = ""
	return u.String()
}
