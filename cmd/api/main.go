package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-social/internal/admin"
	"github.com/ovaphlow/pitchfork/service-social/internal/config"
	"github.com/ovaphlow/pitchfork/service-social/internal/credential"
	"github.com/ovaphlow/pitchfork/service-social/internal/middleware"
	"github.com/ovaphlow/pitchfork/service-social/internal/otp"
	otprepo "github.com/ovaphlow/pitchfork/service-social/internal/otp/repo"
	"github.com/ovaphlow/pitchfork/service-social/internal/router"
	"github.com/ovaphlow/pitchfork/service-social/internal/social"
	socialrepo "github.com/ovaphlow/pitchfork/service-social/internal/social/repo"
	"github.com/ovaphlow/pitchfork/service-social/internal/upload"
	"github.com/ovaphlow/pitchfork/service-social/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-social/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-social/pkg/cache"
	"github.com/ovaphlow/pitchfork/service-social/pkg/database"
	"github.com/ovaphlow/pitchfork/service-social/pkg/mailer"
	"github.com/ovaphlow/pitchfork/service-social/pkg/storage"
	"github.com/ovaphlow/pitchfork/service-social/pkg/utilities"
)

const readHeaderTimeout = 10 * time.Second

func main() {
	// best-effort: a missing .env just means real env / defaults
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	lg, err := utilities.Init(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()
	sugar := lg.Sugar()

	if err := run(cfg, sugar); err != nil {
		sugar.Errorw("service stopped", "err", err)
		_ = lg.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, sugar *zap.SugaredLogger) error {
	sugar.Infow("starting service-social", "addr", cfg.Addr())

	if err := utilities.SetSnowflakeNode(cfg.SnowflakeNode); err != nil {
		return fmt.Errorf("snowflake node: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	users := userrepo.NewUserRepo(db)
	challenges := otprepo.NewChallengeRepo(db)
	posts := socialrepo.NewSocialRepo(db)
	// users first: the other tables reference it
	if err := users.EnsureTable(ctx); err != nil {
		return fmt.Errorf("ensure users table: %w", err)
	}
	if err := challenges.EnsureTable(ctx); err != nil {
		return fmt.Errorf("ensure otp_challenges table: %w", err)
	}
	if err := posts.EnsureTable(ctx); err != nil {
		return fmt.Errorf("ensure social tables: %w", err)
	}

	var limiter middleware.Limiter
	if cfg.RedisURL != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		limiter = middleware.NewRedisLimiter(rdb, "ratelimit:", cfg.RateLimitMax, cfg.RateLimitWindow)
		sugar.Infow("rate limiting backed by redis")
	} else {
		mem := middleware.NewMemoryLimiter(cfg.RateLimitMax, cfg.RateLimitWindow)
		defer mem.Close()
		limiter = mem
		sugar.Infow("rate limiting in memory; set REDIS_URL to share limits across instances")
	}

	var mail mailer.Mailer = mailer.LogMailer{Logger: sugar}
	if cfg.MailEnabled() {
		mail = mailer.NewSMTPMailer(cfg.SMTP, sugar)
	} else {
		sugar.Warnw("SMTP_HOST not set; one-time codes are written to the log")
	}

	var store upload.Storage
	if cfg.StorageEnabled() {
		s3, err := storage.NewS3Store(ctx, cfg.S3)
		if err != nil {
			return err
		}
		store = s3
	} else {
		sugar.Warnw("S3_BUCKET not set; uploads will fail")
	}

	tokens := credential.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	codes := otp.NewService(challenges, mail, otp.Options{TTL: cfg.OTPTTL, ResetTTL: cfg.ResetTokenTTL}, sugar)
	userSvc := user.NewUserService(users, codes, credential.BcryptHasher{Cost: cfg.BcryptCost}, tokens, sugar)

	handler := router.RegisterRoutes(router.Deps{
		Logger:       sugar,
		Tokens:       tokens,
		Limiter:      limiter,
		RateLimitMax: cfg.RateLimitMax,
		Auth:         user.NewHandler(userSvc, sugar),
		Admin:        admin.NewHandler(admin.NewService(users, sugar), sugar),
		Social:       social.NewHandler(social.NewService(posts, sugar), sugar),
		Upload:       upload.NewHandler(store, cfg.UploadMaxBytes, sugar),
	})
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()
	sugar.Infow("service is running; press Ctrl+C to stop")

	select {
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	sugar.Info("shutting down")
	doneCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnw("http server shutdown failed", "err", err)
	}
	sugar.Info("goodbye")
	return nil
}

// compile-time checks that the concrete stores satisfy the service contracts
var (
	_ user.Store     = (*userrepo.UserRepo)(nil)
	_ admin.Store    = (*userrepo.UserRepo)(nil)
	_ otp.Store      = (*otprepo.ChallengeRepo)(nil)
	_ social.Store   = (*socialrepo.SocialRepo)(nil)
	_ upload.Storage = (*storage.S3Store)(nil)
)
