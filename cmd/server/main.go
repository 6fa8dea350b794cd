package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/furniture-storefront/internal/config"
	"github.com/iliyamo/furniture-storefront/internal/database"
	"github.com/iliyamo/furniture-storefront/internal/handler"
	"github.com/iliyamo/furniture-storefront/internal/jobs"
	"github.com/iliyamo/furniture-storefront/internal/logger"
	"github.com/iliyamo/furniture-storefront/internal/middleware"
	"github.com/iliyamo/furniture-storefront/internal/model"
	"github.com/iliyamo/furniture-storefront/internal/notify"
	"github.com/iliyamo/furniture-storefront/internal/otp"
	"github.com/iliyamo/furniture-storefront/internal/queue"
	"github.com/iliyamo/furniture-storefront/internal/ratelimit"
	"github.com/iliyamo/furniture-storefront/internal/repository"
	"github.com/iliyamo/furniture-storefront/internal/router"
	"github.com/iliyamo/furniture-storefront/internal/service"
	"github.com/iliyamo/furniture-storefront/internal/token"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("connect mysql")
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		log.WithError(err).Fatal("migrate schema")
	}

	// Redis backs rate limiting and the response cache.  The service still
	// starts when it is down; the limiter then follows its failure policy.
	rdb, err := config.NewRedisClient()
	switch {
	case rdb == nil:
		log.WithError(err).Fatal("redis config")
	case err != nil:
		log.WithError(err).Warn("redis unreachable at startup")
	}
	defer rdb.Close()

	codec, err := token.NewCodec(token.Config{
		AccessKey:  []byte(cfg.AccessSecret),
		RefreshKey: []byte(cfg.RefreshSecret),
		Issuer:     cfg.TokenIssuer,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
		VerifyTTL:  cfg.VerifyTTL,
		ResetTTL:   cfg.ResetTTL,
	})
	if err != nil {
		log.WithError(err).Fatal("token codec")
	}

	users := repository.NewUserRepo(db)
	sessions := repository.NewSessionRepo(db)
	challenges := repository.NewOTPRepo(db)
	coupons := repository.NewCouponRepo(db)

	mailer := notify.NewMailer(config.LoadMailConfig(), cfg.PublicBaseURL)
	senders := map[model.OTPChannel]otp.Sender{model.ChannelEmail: mailer}
	if sms := notify.NewSMS(config.LoadSMSConfig()); sms != nil {
		senders[model.ChannelPhone] = sms
	} else {
		log.Info("twilio not configured, phone codes disabled")
	}
	otpManager := otp.NewManager(challenges, senders, config.LoadOTPConfig(), log)

	var events service.EventPublisher = service.NopPublisher{}
	if cfg.AMQPURL != "" {
		events = &service.AMQPPublisher{URL: cfg.AMQPURL, Log: log}
	}

	accounts := service.NewAuthService(service.AuthDeps{
		Users:      users,
		Sessions:   sessions,
		Challenges: otpManager,
		Codec:      codec,
		Links:      mailer,
		Events:     events,
		BcryptCost: cfg.BcryptCost,
		Log:        log,
	})

	rl := config.LoadRateLimitConfig()
	limiter := ratelimit.New(rdb, rl.KeyPrefix,
		ratelimit.WithFailOpen(rl.FailOpen),
		ratelimit.WithLogger(log),
	)
	gate := middleware.NewGate(codec, users, middleware.GateConfig{
		AdminCookie: cfg.AdminCookie,
		Timeout:     cfg.StoreTimeout,
		FailClosed:  cfg.AuthFailClosed,
	}, log)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = handler.ErrorHandler(log)
	e.Use(echomw.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(log))

	auth := handler.NewAuthHandler(accounts, cfg.StoreTimeout)
	router.Register(e, router.Deps{
		Auth:      auth,
		Admin:     &handler.AdminHandler{Auth: auth},
		Coupons:   handler.NewCouponHandler(coupons, cfg.StoreTimeout),
		Dashboard: handler.Dashboard{},
		Health: &handler.Health{Deps: map[string]handler.Pinger{
			"mysql": db,
			"redis": handler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
		}},
		Gate:      gate,
		Limiter:   limiter,
		RateLimit: rl,
		Cache:     middleware.NewRedisCache(config.LoadCacheConfig(), rdb, log),
	})

	sweeper := &jobs.Sweeper{
		Targets:  map[string]jobs.Expirer{"sessions": sessions, "otp_challenges": challenges},
		Interval: cfg.SweepInterval,
		Log:      log,
	}
	go sweeper.Run(ctx)

	if cfg.AMQPURL != "" {
		consumer := &queue.AuditConsumer{URL: cfg.AMQPURL, Dir: "logs", Log: log}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("audit consumer stopped")
			}
		}()
	}

	go func() {
		addr := ":" + cfg.Port
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown")
	}
}
