package main

import (
	"context"
	"database/sql"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // register the /debug/pprof handlers
	"os"

	"github.com/go-playground/validator/v10"

	echoapi "github.com/admitdesk/admitdesk/apps/api/echo"
	"github.com/admitdesk/admitdesk/core"
	"github.com/admitdesk/admitdesk/core/application"
	"github.com/admitdesk/admitdesk/core/essay"
	"github.com/admitdesk/admitdesk/core/message"
	"github.com/admitdesk/admitdesk/core/recommendation"
	"github.com/admitdesk/admitdesk/core/user"
	aisvc "github.com/admitdesk/admitdesk/services/ai"
	archivesvc "github.com/admitdesk/admitdesk/services/archive"
	cachesvc "github.com/admitdesk/admitdesk/services/cache"
	emailsvc "github.com/admitdesk/admitdesk/services/email"
	eventsvc "github.com/admitdesk/admitdesk/services/events"
	logsvc "github.com/admitdesk/admitdesk/services/logger"
	"github.com/admitdesk/admitdesk/services/metrics"
	"github.com/admitdesk/admitdesk/services/ratelimit"
	"github.com/admitdesk/admitdesk/storage/database"
	boiledrepos "github.com/admitdesk/admitdesk/storage/database/sqlboiler"
)

// TODO:
// - CSRF
// - APM/Tracing
func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	// set up collaborators
	redisClient, err := cachesvc.Open(conf.Redis)
	if err != nil {
		logger.Fatal(fmt.Sprintf("connecting to redis: %v", err), err)
	}
	var cache core.Cache = core.NoopCache
	if redisClient != nil {
		defer redisClient.Close()
		cache = cachesvc.NewRedisCache(redisClient, conf.AppName)
	} else {
		logger.Warn("REDIS_ADDR not set: caching and rate limiting disabled")
	}

	events, closeEvents, err := eventsvc.Connect(conf.NATS, conf.AppName)
	if err != nil {
		logger.Fatal(fmt.Sprintf("connecting to nats: %v", err), err)
	}
	defer closeEvents()

	var archiver application.Archiver
	s3Archiver, err := archivesvc.NewS3Archiver(context.Background(), conf.S3)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up s3 archiver: %v", err), err)
	}
	if s3Archiver != nil {
		archiver = s3Archiver
	}

	rubric, err := aisvc.LoadRubric(conf.AI.RubricPath)
	if err != nil {
		logger.Fatal(fmt.Sprintf("loading rubric: %v", err), err)
	}
	aiClient := aisvc.NewClient(conf.AI, rubric, logger)

	var mailSvc core.EmailService
	if conf.Debug || conf.SendgridApiKey == "" {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	// set up services
	tx := boiledrepos.NewTransactor(db)
	usrSvc := user.NewService(boiledrepos.NewUserRepository(db), mailSvc, conf)
	draftSvc := essay.NewService(essay.Deps{
		Repo:    boiledrepos.NewEssayRepository(db),
		Tx:      tx,
		Access:  usrSvc,
		Users:   usrSvc,
		Scorer:  aiClient,
		MailSvc: mailSvc,
		Events:  events,
		Logger:  logger,
	})
	appSvc := application.NewService(application.Deps{
		Repo:     boiledrepos.NewApplicationRepository(db),
		Tx:       tx,
		Access:   usrSvc,
		Drafts:   draftSvc,
		Users:    usrSvc,
		Cache:    cache,
		CacheTTL: conf.Redis.CacheTTL,
		Events:   events,
		Archiver: archiver,
		MailSvc:  mailSvc,
		Logger:   logger,
	})
	draftSvc.SetSlotSyncer(appSvc)
	recSvc := recommendation.NewService(recommendation.Deps{
		Repo:    boiledrepos.NewRecommendationRepository(db),
		Access:  usrSvc,
		Apps:    appSvc,
		Users:   usrSvc,
		Drafter: aiClient,
		Events:  events,
		Logger:  logger,
	})
	appSvc.Recs = recSvc
	msgSvc := message.NewService(boiledrepos.NewMessageRepository(db), usrSvc, usrSvc, mailSvc, events, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	core.ParseEmailTemplates(logger, !conf.Debug)

	user.LoadCommonPasswords(logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.
	// /metrics - Prometheus collectors.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	http.Handle("/metrics", metrics.Handler())

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:       conf,
			Logger:     logger,
			Validate:   validate,
			Translator: translator,
			AILimiter:  ratelimit.NewLimiter(redisClient, conf.RateLimit.AIRequests, conf.RateLimit.AIWindow),
			UserSvc:    usrSvc,
			DraftSvc:   draftSvc,
			AppSvc:     appSvc,
			RecSvc:     recSvc,
			MessageSvc: msgSvc,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*sql.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db, "up"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
