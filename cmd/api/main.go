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
	"github.com/jonboulle/clockwork"

	"github.com/ovaphlow/pitchfork/service-board-auth/internal/account"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/credential"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/geo"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/mail"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/ratelimit"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/repomanager"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/reset"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/router"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/secret"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/session"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/signup"
	"github.com/ovaphlow/pitchfork/service-board-auth/internal/token"
	"github.com/ovaphlow/pitchfork/service-board-auth/pkg/database"
	"github.com/ovaphlow/pitchfork/service-board-auth/pkg/utilities"
)

func main() {
	// load .env file if present so os.Getenv picks values from it
	_ = godotenv.Load()

	logCfg := utilities.ConfigFromEnv()
	lg, err := utilities.Init(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting service-board-auth")

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(database.ConfigFromEnv())
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	repos := repomanager.NewPostgresManager()
	if err := repos.RunMigrations(ctx, db.DB); err != nil {
		sugar.Fatalf("migrations: %v", err)
	}

	clock := clockwork.NewRealClock()
	issuer, err := token.NewIssuer(token.ConfigFromEnv(), clock)
	if err != nil {
		sugar.Fatalf("token issuer: %v", err)
	}
	ids, err := utilities.NewIDGenerator(utilities.NodeFromEnv())
	if err != nil {
		sugar.Fatalf("id generator: %v", err)
	}

	rlCfg := ratelimit.ConfigFromEnv()
	var limiter *ratelimit.Limiter
	rdb, err := ratelimit.NewClient(rlCfg)
	if err != nil {
		sugar.Fatalf("redis: %v", err)
	}
	if rdb != nil {
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			sugar.Warnw("redis unreachable, request caps fail open until it recovers", "err", err)
		}
		cancel()
		limiter = ratelimit.New(rdb, sugar, rlCfg.TrustProxy)
	} else {
		sugar.Warn("REDIS_URL not set, request caps disabled")
	}

	hasher := credential.NewBcryptHasher(credential.CostFromEnv())
	secrets := secret.NewRandomGenerator()
	mailer := mail.New(mail.ConfigFromEnv(), logCfg.Dev, sugar)
	locator := geo.NewHTTPLocator(geo.ConfigFromEnv(), nil, sugar)

	sessions := session.NewService(session.Deps{
		DB: db, Repos: repos, Hasher: hasher, Secrets: secrets,
		Issuer: issuer, Locator: locator, Clock: clock, Logger: sugar,
	})
	signups := signup.NewService(signup.Deps{
		DB: db, Repos: repos, Hasher: hasher, Secrets: secrets, Mailer: mailer,
		Sessions: sessions, IDs: ids, Clock: clock, Logger: sugar,
	})
	resets := reset.NewService(reset.Deps{
		DB: db, Repos: repos, Hasher: hasher, Secrets: secrets, Mailer: mailer, Clock: clock, Logger: sugar,
	})
	accounts := account.NewService(account.Deps{
		DB: db, Repos: repos, Hasher: hasher, Secrets: secrets, IDs: ids, Clock: clock, Logger: sugar,
	})

	handler := router.RegisterRoutes(sugar, router.Handlers{
		Signup:  signup.NewHandler(signups, sugar, rlCfg.TrustProxy),
		Session: session.NewHandler(sessions, sugar, rlCfg.TrustProxy),
		Reset:   reset.NewHandler(resets, sugar),
		Account: account.NewHandler(accounts, sugar),
	}, router.NewAuthenticator(issuer, sessions, accounts, sugar), limiter)

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = "0.0.0.0:8431"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()
	sugar.Infow("service is running; press Ctrl+C to stop", "addr", addr, "request_caps", limiter != nil)

	<-ctx.Done()

	sugar.Info("shutting down")

	// give a short grace period for cleanup
	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}
