package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	psso "github.com/pilab-dev/partner-sso"
	pssoecho "github.com/pilab-dev/partner-sso/api/echo"
	"github.com/pilab-dev/partner-sso/cache"
	rediscache "github.com/pilab-dev/partner-sso/cache/redis"
	"github.com/pilab-dev/partner-sso/config"
	"github.com/pilab-dev/partner-sso/domain"
	"github.com/pilab-dev/partner-sso/internal/bridge"
	"github.com/pilab-dev/partner-sso/internal/lti"
	"github.com/pilab-dev/partner-sso/internal/metrics"
	"github.com/pilab-dev/partner-sso/internal/partner"
	"github.com/pilab-dev/partner-sso/internal/server"
	"github.com/pilab-dev/partner-sso/log"
	"github.com/pilab-dev/partner-sso/middleware"
	"github.com/pilab-dev/partner-sso/mongodb"
	"github.com/pilab-dev/partner-sso/services"
	"github.com/pilab-dev/partner-sso/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		stdLog := zerolog.New(os.Stderr).With().Timestamp().Logger()
		stdLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	appLogger := log.Setup(cfg.Log.Level, cfg.Log.Pretty)
	appLogger.Info(context.Background(), "Starting partner-sso server...", log.Fields{
		"environment": cfg.Environment,
		"http_addr":   cfg.HTTP.Addr,
		"mongo_db":    cfg.Mongo.Database,
		"lti":         cfg.LTI.Enabled,
		"grades":      cfg.Grades.Enabled,
		"minter":      cfg.Session.Minter,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracerProvider(cfg.Tracing.ServiceName, cfg.Tracing.SampleRatio)
		if err != nil {
			appLogger.Fatal(ctx, "Failed to initialize TracerProvider", err)
		}
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				appLogger.Error(context.Background(), "TracerProvider shutdown error", err)
			}
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.InitCustomMetrics(reg)

	// --- Storage ---
	if err := mongodb.InitMongoDB(ctx, cfg.Mongo.URI, cfg.Mongo.Database); err != nil {
		appLogger.Fatal(ctx, "Failed to initialize MongoDB connection", err)
	}
	defer mongodb.CloseMongoDB(context.Background())

	repos, err := mongodb.NewRepositories(ctx, mongodb.GetDB())
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize repositories", err)
	}

	// A configured key is registered with the Partner and must not rotate away.
	keyRotation := cfg.Keys.Rotation
	if cfg.Keys.PrivateKeyFile != "" {
		keyRotation = 0
	}
	keys, err := psso.NewJWKSService(ctx, psso.JWKSOptions{
		Rotation:       keyRotation,
		PrivateKeyFile: cfg.Keys.PrivateKeyFile,
		KeyID:          cfg.Keys.KeyID,
	})
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize signing keys", err)
	}
	signer := psso.NewTokenSigner(keys)

	// --- Partner integrations ---
	verifier := partner.NewClient(partner.Config{
		CheckURL:          cfg.Partner.CheckURL,
		ServiceCredential: cfg.Partner.ServiceCredential,
		PartnerName:       cfg.Partner.Name,
		Timeout:           cfg.Partner.Timeout,
	}, nil)

	opts := services.DefaultServiceProviderOptions{
		RepositoryProvider: repos,
		Keys:               keys,
		Verifier:           verifier,
		Issuer:             cfg.Session.Issuer,
		SessionTTL:         cfg.Session.TTL,
		GradeTargetTTL:     cfg.Grades.TargetTTL,
		Login: services.LoginServiceConfig{
			LoginURL:   cfg.Partner.LoginURL,
			AttemptTTL: cfg.Bridge.AttemptTTL,
			Bridge:     bridgeOptions(cfg),
		},
	}
	if cfg.Session.Minter == "remote" {
		opts.Minter = services.NewRemoteMinter(cfg.Session.RemoteMintURL, nil)
	}

	if cfg.LTI.Enabled {
		validator, closeStore := newLaunchValidator(ctx, cfg, appLogger)
		defer closeStore()
		opts.Launches = validator

		if cfg.Grades.Enabled {
			opts.Scores = partner.NewGradeClient(partner.GradeConfig{
				ClientID: cfg.LTI.ClientID,
				TokenURL: cfg.LTI.TokenURL,
				Timeout:  cfg.Grades.Timeout,
			}, signer, nil)
		}
	}

	provider, err := services.NewDefaultServiceProvider(opts)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize services", err)
	}
	defer provider.Stop()

	// --- HTTP ---
	var auth *middleware.Authenticator
	if cfg.Session.Minter == "local" {
		auth = middleware.NewAuthenticator(signer, repos.SessionRepository(ctx))
	}
	var frameAncestors []string
	if cfg.Partner.Origin != "" {
		frameAncestors = []string{cfg.Partner.Origin}
	}

	pa := pssoecho.NewPartnerAPI(pssoecho.Options{
		Login:            provider.LoginService(),
		Grades:           provider.GradeService(),
		Keys:             keys,
		Auth:             auth,
		FrameAncestors:   frameAncestors,
		FallbackLoginURL: cfg.HTTP.PublicOrigin + "/login",
		Gatherer:         reg,
		Ping:             mongodb.Ping,
	})

	srv := server.NewHTTPServer(cfg, appLogger, pssoecho.NewEcho(pa))
	if err := server.Serve(ctx, srv, appLogger, cfg.HTTP.ShutdownTimeout); err != nil {
		appLogger.Error(context.Background(), "HTTP server error", err)
	}

	appLogger.Info(context.Background(), "Server gracefully stopped.")
}

func bridgeOptions(cfg *config.ServerConfig) bridge.Options {
	opts := bridge.Options{
		Interval:     cfg.Bridge.Interval,
		MaxTicks:     cfg.Bridge.MaxTicks,
		PopupGrace:   cfg.Bridge.PopupGrace,
		Features:     bridge.Centered(cfg.Bridge.Width, cfg.Bridge.Height, cfg.Bridge.ScreenWidth, cfg.Bridge.ScreenHeight),
		TargetOrigin: cfg.HTTP.PublicOrigin,
	}
	if cfg.Partner.Origin != "" {
		opts.AllowedOrigins = []string{cfg.Partner.Origin, cfg.HTTP.PublicOrigin}
	}
	return opts
}

// newLaunchValidator builds the launch validator on Redis when configured,
// otherwise on an in-process store.
func newLaunchValidator(ctx context.Context, cfg *config.ServerConfig, appLogger log.Logger) (*lti.Validator, func()) {
	var (
		store     domain.LaunchStateStore
		closeFunc = func() {}
	)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			appLogger.Fatal(ctx, "Failed to connect to Redis", err)
		}
		store = rediscache.NewLaunchStateStore(client, cfg.Redis.KeyPrefix)
		closeFunc = func() { _ = client.Close() }
	} else {
		mem := cache.NewMemoryLaunchStateStore(cfg.LTI.StateTTL)
		store = mem
		closeFunc = func() { _ = mem.Close() }
	}

	validator, err := lti.New(ctx, lti.Config{
		Issuer:       cfg.LTI.Issuer,
		ClientID:     cfg.LTI.ClientID,
		DeploymentID: cfg.LTI.DeploymentID,
		AuthURL:      cfg.LTI.AuthURL,
		JWKSURL:      cfg.LTI.JWKSURL,
		RedirectURI:  cfg.LTI.RedirectURI,
		Posture:      lti.Posture(cfg.LTI.Posture),
		Environment:  cfg.Environment,
		StateTTL:     cfg.LTI.StateTTL,
	}, store, nil)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize launch validator", err)
	}
	return validator, closeFunc
}
