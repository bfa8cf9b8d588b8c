package main

import (
	"context"
	crypto_rand "crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/intake/intake/internal/config"
	"github.com/intake/intake/internal/gateway"
	"github.com/intake/intake/internal/intake"
	"github.com/intake/intake/internal/llm"
	"github.com/intake/intake/internal/platform/audit"
	"github.com/intake/intake/internal/platform/auth"
	"github.com/intake/intake/internal/platform/db"
	"github.com/intake/intake/internal/platform/middleware"
	"github.com/intake/intake/internal/platform/phi"
	"github.com/intake/intake/internal/record"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "intake-server",
		Short: "Patient intake and clinician lookup API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(staffCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the intake API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Rollback last migration (not supported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("WARNING: migrate down is destructive and not supported by the built-in runner.")
			fmt.Println("Write a forward migration instead, or restore the database from a backup.")
			return nil
		},
	})

	return cmd
}

func staffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "staff",
		Short: "Manage the staff directory",
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add a staff member to the directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			name, _ := cmd.Flags().GetString("name")
			role, _ := cmd.Flags().GetString("role")
			if subject == "" {
				return fmt.Errorf("--subject is required")
			}
			if !validRole(role) {
				return fmt.Errorf("--role must be %q or %q, got %q", auth.RoleClinician, auth.RoleAdmin, role)
			}

			ctx := context.Background()
			dir, pool, err := openDirectory(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			member := &gateway.StaffMember{
				Subject: subject,
				Name:    name,
				Role:    role,
				Active:  true,
			}
			if err := dir.Create(ctx, member); err != nil {
				return fmt.Errorf("create staff member: %w", err)
			}
			fmt.Printf("Created staff member %s (%s, role %s)\n", member.Subject, member.ID, member.Role)
			return nil
		},
	}
	addCmd.Flags().String("subject", "", "Login subject, e.g. dr.osei")
	addCmd.Flags().String("name", "", "Display name")
	addCmd.Flags().String("role", auth.RoleClinician, "Role: clinician or admin")
	cmd.AddCommand(addCmd)

	keyCmd := &cobra.Command{
		Use:   "key",
		Short: "Issue a new API key for a staff member",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			if subject == "" {
				return fmt.Errorf("--subject is required")
			}

			ctx := context.Background()
			dir, pool, err := openDirectory(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			rawKey, err := auth.GenerateKey()
			if err != nil {
				return err
			}
			if err := dir.SetAPIKeyHash(ctx, subject, auth.HashKey(rawKey)); err != nil {
				return fmt.Errorf("store key hash: %w", err)
			}

			fmt.Printf("API key for %s (shown once, only the hash is stored):\n%s\n", subject, rawKey)
			return nil
		},
	}
	keyCmd.Flags().String("subject", "", "Login subject")
	cmd.AddCommand(keyCmd)

	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed staff token",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if subject == "" {
				return fmt.Errorf("--subject is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET must be set to issue tokens")
			}

			ctx := context.Background()
			dir, pool, err := openDirectory(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			member, err := dir.FindBySubject(ctx, subject)
			if err != nil {
				return fmt.Errorf("resolve staff member: %w", err)
			}
			if !member.Active {
				return fmt.Errorf("staff member %s is deactivated", subject)
			}

			authCfg := auth.Config{
				Secret:   []byte(cfg.JWTSecret),
				Issuer:   cfg.JWTIssuer,
				Audience: cfg.JWTAudience,
			}
			token, err := auth.SignToken(authCfg, member.Subject, member.Name, member.Role, ttl)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Println(token)
			return nil
		},
	}
	tokenCmd.Flags().String("subject", "", "Login subject")
	tokenCmd.Flags().Duration("ttl", 12*time.Hour, "Token lifetime")
	cmd.AddCommand(tokenCmd)

	deactivateCmd := &cobra.Command{
		Use:   "deactivate",
		Short: "Deactivate a staff member",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			if subject == "" {
				return fmt.Errorf("--subject is required")
			}

			ctx := context.Background()
			dir, pool, err := openDirectory(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := dir.SetActive(ctx, subject, false); err != nil {
				return fmt.Errorf("deactivate staff member: %w", err)
			}
			fmt.Printf("Deactivated %s; existing tokens and keys no longer grant access.\n", subject)
			return nil
		},
	}
	deactivateCmd.Flags().String("subject", "", "Login subject")
	cmd.AddCommand(deactivateCmd)

	return cmd
}

// openDirectory connects to the staff directory for CLI commands. The
// in-memory directory lives and dies with the server process, so staff
// management only makes sense against postgres.
func openDirectory(ctx context.Context) (gateway.StaffDirectory, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if !cfg.UsesPostgres() {
		return nil, nil, fmt.Errorf("staff management requires STORE_BACKEND=postgres")
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return gateway.NewPGDirectory(pool), pool, nil
}

// validRole reports whether r is a role the directory accepts.
func validRole(r string) bool {
	return r == auth.RoleClinician || r == auth.RoleAdmin
}

// resolveJWTSecret returns the token signing secret. When JWT_SECRET is unset
// and dev auth is enabled, a random ephemeral secret is generated; the second
// return value is true in that case.
func resolveJWTSecret(cfg *config.Config) ([]byte, bool, error) {
	if cfg.JWTSecret != "" {
		return []byte(cfg.JWTSecret), false, nil
	}
	if !cfg.AuthDevMode {
		return nil, false, fmt.Errorf("JWT_SECRET is required unless AUTH_DEV_MODE is enabled")
	}
	secret := make([]byte, 32)
	if _, err := crypto_rand.Read(secret); err != nil {
		return nil, false, fmt.Errorf("failed to generate ephemeral JWT secret: %w", err)
	}
	return secret, true, nil
}

// backends bundles the storage implementations behind the two portals. pool
// is nil on the in-memory backend.
type backends struct {
	store record.Store
	staff gateway.StaffDirectory
	trail audit.Log
	pool  *pgxpool.Pool
}

func buildBackends(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*backends, error) {
	if !cfg.UsesPostgres() {
		return &backends{
			store: record.NewMemStore(),
			staff: gateway.NewMemDirectory(),
			trail: audit.NewMemLog(),
		}, nil
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	phiSvc, err := phi.NewService(cfg.PHIEncryptionKey, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init record encryption: %w", err)
	}

	return &backends{
		store: record.NewPGStoreWithEncryption(pool, phiSvc.Cipher()),
		staff: gateway.NewPGDirectory(pool),
		trail: audit.NewPGLog(pool),
		pool:  pool,
	}, nil
}

// newRouter builds the echo server: global hygiene middleware, the
// unauthenticated intake endpoint, and the authenticated lookup surface.
func newRouter(cfg *config.Config, authCfg auth.Config, logger zerolog.Logger, b *backends) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-API-Key"},
	}))
	e.Use(middleware.SanitizeWithLogger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "ok",
			"store":  cfg.StoreBackend,
		})
	})
	e.GET("/health/db", db.HealthHandler(b.pool))

	api := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	api.Use(middleware.RateLimit(rateLimitCfg))

	// Patient portal: submission needs no credentials.
	validator := intake.NewValidator()
	var structurer llm.Client
	if cfg.OpenAIAPIKey != "" {
		structurer = llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.LLMModel)
	}
	normalizer := intake.NewNormalizer(structurer, validator, cfg.LLMTimeout, logger)
	intakeSvc := intake.NewService(b.store, validator, normalizer, cfg.StoreTimeout, logger)
	intake.NewHandler(intakeSvc).RegisterRoutes(api)

	// Hospital portal: every route behind staff authentication.
	secured := api.Group("")
	if cfg.AuthDevMode {
		secured.Use(auth.DevAuthMiddleware())
	} else {
		keys := gateway.NewKeyVerifier(b.staff)
		secured.Use(auth.Middleware(authCfg, keys))
	}
	gatewaySvc := gateway.NewService(b.store, b.staff, b.trail, cfg.StoreTimeout, logger)
	gateway.NewHandler(gatewaySvc).RegisterRoutes(secured)

	return e
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && level != zerolog.NoLevel {
		logger = logger.Level(level)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	secret, generated, err := resolveJWTSecret(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to resolve JWT secret")
	}
	if generated {
		logger.Warn().Msg("JWT_SECRET not set; using an ephemeral secret, staff tokens will not survive a restart")
	}
	authCfg := auth.Config{
		Secret:   secret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	}

	// Storage backends
	ctx := context.Background()
	b, err := buildBackends(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build storage backends")
	}
	if b.pool != nil {
		defer b.pool.Close()
		logger.Info().Msg("connected to database")
	} else {
		logger.Info().Msg("using in-memory storage")
	}

	// Dev auth hands out the dev-admin identity; the gateway still checks the
	// directory, so the member has to exist.
	if cfg.AuthDevMode {
		err := b.staff.Create(ctx, &gateway.StaffMember{
			Subject: "dev-admin",
			Name:    "Dev Admin",
			Role:    auth.RoleAdmin,
			Active:  true,
		})
		if err != nil && !errors.Is(err, gateway.ErrStaffExists) {
			logger.Fatal().Err(err).Msg("failed to seed dev staff member")
		}
	}

	e := newRouter(cfg, authCfg, logger, b)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("store", cfg.StoreBackend).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
