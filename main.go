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

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"social-publisher/domain/model"
	"social-publisher/domain/repository"
	"social-publisher/infrastructure/cache"
	"social-publisher/infrastructure/clients/facebook"
	"social-publisher/infrastructure/clients/instagram"
	"social-publisher/infrastructure/clients/linkedin"
	"social-publisher/infrastructure/clients/media"
	"social-publisher/infrastructure/clients/refresh"
	"social-publisher/infrastructure/clients/tiktok"
	"social-publisher/infrastructure/clients/twitter"
	"social-publisher/infrastructure/clients/youtube"
	"social-publisher/infrastructure/configuration"
	"social-publisher/infrastructure/logger"
	"social-publisher/infrastructure/persistence"
	"social-publisher/infrastructure/pubsub"
	"social-publisher/infrastructure/realtime"
	"social-publisher/infrastructure/servicebus"
	httpHandler "social-publisher/interfaces/http"
	"social-publisher/server"
	"social-publisher/usecase"
)

const maxMediaBytes = 512 << 20

func recoverPanic() {
	if err := recover(); err != nil {
		logger.GetLogger().WithField("error", err).Error("Application panic recovered")
	}
}

func main() {
	defer recoverPanic()
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// OS env still has precedence over the files
	configuration.LoadEnvFromFile("config.env", ".env")
	cfg := configuration.C
	mode := cfg.App.Mode
	runAPI := mode == "all" || mode == "api"
	runWorker := mode == "all" || mode == "worker"
	if !runAPI && !runWorker {
		logger.GetLogger().WithField("mode", mode).Fatal("Unknown APP_MODE, expected all, api or worker")
	}
	logger.GetLogger().WithField("mode", mode).WithField("queue", cfg.Queue.Driver).Info("Starting publisher")

	psqlDb, err := persistence.NewPostgreSQLDB()
	if err != nil {
		logger.GetLogger().WithField("error", err).Fatal("Cannot connect to PostgreSQL")
	}
	defer psqlDb.Close()
	if err := persistence.EnsureSchema(psqlDb); err != nil {
		logger.GetLogger().WithField("error", err).Fatal("Failed ensuring schema")
	}

	attempts := initAttemptLog(ctx, cfg.Database.Mongo)
	redisClient := initRedis(ctx, cfg.RedisClient)

	hub := realtime.NewResultHub()
	var notifier repository.IResultNotifier = hub
	pubSubClient, err := pubsub.NewPubSub(ctx, cfg.Pubsub.ProjectID)
	if err != nil {
		logger.GetLogger().WithField("error", err).Warn("PubSub not available - results stream only within this process")
		pubSubClient = nil
	} else {
		defer pubSubClient.Close()
		notifier = pubsub.NewResultPublisher(pubSubClient, cfg.Pubsub.ResultTopic)
	}

	posts := persistence.NewPostRepository(psqlDb)
	connections := persistence.NewConnectionRepository(psqlDb)
	results := persistence.NewResultRepository(psqlDb)
	jobs := persistence.NewJobQueueRepository(psqlDb, persistence.JobQueueConfig{
		MaxRedeliveries: cfg.Queue.MaxRedeliveries,
		RetryBase:       cfg.Queue.RedeliveryDelay,
		RetryMax:        cfg.Queue.RedeliveryMaxDelay,
	})

	var queue repository.ITaskQueue = jobs
	var busQueue *servicebus.TaskQueue
	if cfg.Queue.Driver == "servicebus" {
		busQueue, err = initServiceBus(ctx, cfg.ServiceBus, cfg.Scheduler.Interval)
		if err != nil {
			logger.GetLogger().WithField("error", err).Fatal("Service Bus queue driver selected but unavailable")
		}
		defer busQueue.Close(context.Background())
		queue = busQueue
	}

	httpClient := &http.Client{}
	fetcher := media.NewFetcher(httpClient, maxMediaBytes)
	adapters := newAdapters(cfg, httpClient, fetcher)
	refreshers := newRefreshers(cfg.Platforms, httpClient)

	broker := usecase.NewTokenBroker(connections, refreshers, cache.NewLocker(redisClient, "publisher:lock:"), cfg.Publish.RefreshLockTTL)
	retry := usecase.RetryPolicy{MaxAttempts: cfg.Retry.MaxAttempts, BaseDelay: cfg.Retry.BaseDelay, MaxDelay: cfg.Retry.MaxDelay}

	g, ctx := errgroup.WithContext(ctx)

	var httpServer *http.Server
	if runAPI {
		postUsecase := usecase.NewPostUsecase(posts, results, attempts, queue)
		connectionUsecase := usecase.NewConnectionUsecase(connections, broker, adapters)
		router := server.InitiateRouter(server.Handlers{
			Post:       httpHandler.NewPostHandler(postUsecase),
			Connection: httpHandler.NewConnectionHandler(connectionUsecase),
			Health:     httpHandler.NewHealthHandler(psqlDb),
			Stream:     hub,
		}, cfg.App.SecretKey, cfg.App.AllowOrigins)

		httpServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.App.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.GetLogger().WithField("port", cfg.App.Port).WithField("tls", cfg.App.TLSEnabled).Info("Serving HTTP")
			return serve(httpServer, cfg.App)
		})

		if pubSubClient != nil {
			host, _ := os.Hostname()
			sub := pubsub.NewResultSubscriber(pubSubClient, cfg.Pubsub.ResultTopic, fmt.Sprintf("%s-stream-%s", cfg.Pubsub.ResultTopic, host))
			g.Go(func() error {
				if err := sub.Run(ctx, hub); err != nil && ctx.Err() == nil {
					logger.GetLogger().WithField("error", err).Error("Result subscriber stopped")
				}
				return nil
			})
		}
	}

	if runWorker {
		publisher := usecase.NewPublishUsecase(posts, connections, results, attempts, notifier, broker, adapters, usecase.PublishConfig{
			MaxConcurrency: cfg.Publish.MaxConcurrency,
			Timeouts: usecase.Timeouts{
				Text:  cfg.Publish.TextTimeout,
				Media: cfg.Publish.MediaTimeout,
				Video: cfg.Publish.VideoTimeout,
			},
			Retry: retry,
		})
		scheduler := usecase.NewSchedulerUsecase(posts, queue, cfg.Scheduler.Interval, cfg.Scheduler.BatchSize)
		worker := usecase.NewWorker(queue, publisher, scheduler, retry, usecase.WorkerConfig{
			Workers:      cfg.Queue.Workers,
			PollInterval: cfg.Queue.PollInterval,
			StaleAfter:   cfg.Queue.StaleAfter,
		})
		if err := scheduler.Bootstrap(ctx); err != nil {
			logger.GetLogger().WithField("error", err).Error("Error while seeding scheduler sweep")
		}
		g.Go(func() error {
			if busQueue != nil {
				return busQueue.Run(ctx, worker.Handle)
			}
			return worker.Run(ctx, jobs)
		})
	}

	<-ctx.Done()
	logger.GetLogger().Info("Application shutdown requested")
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.GetLogger().WithField("error", err).Error("Server returned an error")
		os.Exit(2)
	}
}

func serve(srv *http.Server, app configuration.App) error {
	var err error
	if app.TLSEnabled && app.TLSCertFile != "" && app.TLSKeyFile != "" {
		err = srv.ListenAndServeTLS(app.TLSCertFile, app.TLSKeyFile)
	} else {
		if app.TLSEnabled {
			logger.GetLogger().Error("TLS enabled but cert or key path empty; falling back to HTTP")
		}
		err = srv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// initAttemptLog uses MongoDB when configured and falls back to memory.
func initAttemptLog(ctx context.Context, cfg configuration.Db) repository.IAttemptLog {
	client, err := persistence.NewMongoDb(cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name)
	if err == nil {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = client.Ping(pingCtx, nil)
		cancel()
	}
	if err != nil {
		logger.GetLogger().WithField("error", err).Warn("MongoDB not available - attempt history kept in memory")
		return persistence.NewAttemptLogRepository(nil, cfg.Name)
	}
	attempts := persistence.NewAttemptLogRepository(client, cfg.Name)
	if ix, ok := attempts.(interface{ EnsureIndexes(context.Context) error }); ok {
		if err := ix.EnsureIndexes(ctx); err != nil {
			logger.GetLogger().WithField("error", err).Warn("Failed ensuring attempt log indexes")
		}
	}
	logger.GetLogger().Info("MongoDB connected successfully")
	return attempts
}

// initRedis returns nil when Redis is unreachable; locks are then process-local.
func initRedis(ctx context.Context, cfg configuration.RedisClient) *redis.Client {
	client, err := cache.NewCache(ctx, fmt.Sprintf("%s:%s", cfg.Host, cfg.Port), cfg.Username, cfg.Password, cfg.DB)
	if err != nil {
		logger.GetLogger().WithField("error", err).Warn("Redis not available - refresh locks are process-local")
		return nil
	}
	logger.GetLogger().Info("Redis client initialized successfully.")
	return client
}

func initServiceBus(ctx context.Context, cfg configuration.ServiceBus, sweepInterval time.Duration) (*servicebus.TaskQueue, error) {
	client, err := servicebus.NewServiceBus(ctx, cfg.Namespace)
	if err != nil {
		return nil, err
	}
	return servicebus.NewTaskQueue(client, cfg.Queue, servicebus.Options{
		SweepInterval: sweepInterval,
		LockRenewal:   cfg.LockRenewal,
	})
}

func newAdapters(cfg configuration.Config, httpClient *http.Client, fetcher repository.IMediaFetcher) usecase.AdapterTable {
	p := cfg.Platforms
	return usecase.AdapterTable{
		Twitter: twitter.NewClient(twitter.Config{
			ConsumerKey:    p.Twitter.ConsumerKey,
			ConsumerSecret: p.Twitter.ConsumerSecret,
			MediaTimeout:   cfg.Publish.MediaTimeout,
		}, httpClient, fetcher),
		Facebook: facebook.NewClient(facebook.Config{
			Version:      p.Facebook.GraphVersion,
			VideoTimeout: cfg.Publish.VideoTimeout,
		}, httpClient, fetcher),
		Instagram: instagram.NewClient(instagram.Config{Version: p.Instagram.GraphVersion}, httpClient),
		LinkedIn: linkedin.NewClient(linkedin.Config{
			MediaTimeout: cfg.Publish.MediaTimeout,
			VideoTimeout: cfg.Publish.VideoTimeout,
		}, httpClient, fetcher),
		TikTok: tiktok.NewClient(tiktok.Config{VideoTimeout: cfg.Publish.VideoTimeout}, httpClient, fetcher),
		YouTube: youtube.NewClient(youtube.Config{
			ChunkSize:     p.YouTube.ChunkSize,
			ResumableFrom: p.YouTube.ResumableFrom,
			VideoTimeout:  cfg.Publish.VideoTimeout,
		}, httpClient, fetcher),
	}
}

// newRefreshers wires a refresh protocol for every platform with app
// credentials configured. Twitter OAuth 1.0a tokens do not expire.
func newRefreshers(p configuration.Platforms, httpClient *http.Client) refresh.Table {
	table := refresh.Table{}
	if p.Facebook.AppID != "" {
		table[model.PlatformFacebook] = refresh.NewFacebookRefresher(model.PlatformFacebook, p.Facebook.AppID, p.Facebook.AppSecret, "", p.Facebook.GraphVersion, httpClient)
		table[model.PlatformInstagram] = refresh.NewFacebookRefresher(model.PlatformInstagram, p.Facebook.AppID, p.Facebook.AppSecret, "", p.Instagram.GraphVersion, httpClient)
	}
	if p.LinkedIn.ClientID != "" {
		table[model.PlatformLinkedIn] = refresh.NewLinkedInRefresher(p.LinkedIn.ClientID, p.LinkedIn.ClientSecret, httpClient)
	}
	if p.TikTok.ClientID != "" {
		table[model.PlatformTikTok] = refresh.NewTikTokRefresher(p.TikTok.ClientID, p.TikTok.ClientSecret, "", httpClient)
	}
	if p.YouTube.ClientID != "" {
		table[model.PlatformYouTube] = refresh.NewGoogleRefresher(p.YouTube.ClientID, p.YouTube.ClientSecret, httpClient)
	}
	return table
}
