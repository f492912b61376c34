// Command nightjar serves the streaming-catalog recommendation API over a
// single key-value table, with background jobs for reference refresh, title
// fetch and enrichment.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"go.uber.org/zap"

	"github.com/nightjar-tv/nightjar/internal/api"
	"github.com/nightjar-tv/nightjar/internal/config"
	"github.com/nightjar-tv/nightjar/internal/enrich"
	"github.com/nightjar-tv/nightjar/internal/ingest"
	"github.com/nightjar-tv/nightjar/internal/jobs"
	"github.com/nightjar-tv/nightjar/internal/logging"
	"github.com/nightjar-tv/nightjar/internal/prefs"
	"github.com/nightjar-tv/nightjar/internal/recommend"
	"github.com/nightjar-tv/nightjar/internal/refdata"
	"github.com/nightjar-tv/nightjar/internal/secrets"
	"github.com/nightjar-tv/nightjar/internal/store"
	"github.com/nightjar-tv/nightjar/internal/store/dynamo"
	"github.com/nightjar-tv/nightjar/internal/store/local"
	"github.com/nightjar-tv/nightjar/internal/stream"
	"github.com/nightjar-tv/nightjar/internal/watchmode"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}

	var gateway store.Gateway
	switch cfg.StoreBackend {
	case config.BackendLocal:
		lg, err := local.Open(local.Options{Path: cfg.LocalStorePath})
		if err != nil {
			return err
		}
		defer lg.Close()
		gateway = lg
		log.Info("using local store", zap.String("path", cfg.LocalStorePath))
	case config.BackendDynamo:
		client := dynamo.NewClient(awsCfg, cfg.AWSEndpointURL)
		gateway = dynamo.New(client, cfg.TableName, log)
		log.Info("using dynamo store", zap.String("table", cfg.TableName))
	default:
		return fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	var secretProvider secrets.Provider
	if cfg.WatchmodeAPIKey != "" {
		secretProvider = secrets.Static{cfg.WatchmodeSecretID: cfg.WatchmodeAPIKey}
	} else {
		secretProvider = secrets.NewManager(secrets.NewManagerClient(awsCfg, cfg.AWSEndpointURL))
	}

	catalog := watchmode.New(watchmode.Config{
		Hostname: cfg.WatchmodeHost,
		SecretID: cfg.WatchmodeSecretID,
		Region:   cfg.CatalogRegion,
	}, secretProvider, log)

	prefService := prefs.New(gateway, log)
	refWriter := refdata.NewWriter(gateway, log)
	refLister := refdata.NewLister(gateway, log)
	refresher := refdata.NewRefresher(catalog, refWriter, log)
	resolver := recommend.NewResolver(gateway, prefService, log)
	dedup := ingest.NewDeduplicator(gateway, log)
	reports := ingest.NewReportLog()
	enricher := enrich.New(gateway, catalog, log)

	kinesisClient := stream.NewClient(awsCfg, cfg.AWSEndpointURL)
	publisher := stream.NewPublisher(kinesisClient, cfg.KinesisStream, log)
	fetcher := ingest.NewFetcher(prefService, catalog, publisher, cfg.APIFetchLimit, log)

	if cfg.ConsumeStream {
		consumer := stream.NewConsumer(kinesisClient, cfg.KinesisStream, dedup, reports, log)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("stream consumer stopped", zap.Error(err))
			}
		}()
	}

	server := api.NewServer(api.Deps{
		Lister:        refLister,
		Refresher:     refresher,
		Prefs:         prefService,
		Resolver:      resolver,
		Fetcher:       fetcher,
		Enricher:      enricher,
		IngestReports: reports,
		Runner:        jobs.NewRunner(log),
		JWTSecret:     cfg.JWTSecret,
		CatalogRegion: cfg.CatalogRegion,
		Log:           log,
	})

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Router(),
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
