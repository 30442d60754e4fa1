package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sourceops/open-bank-mark/internal/avro"
	"github.com/sourceops/open-bank-mark/internal/config"
	"github.com/sourceops/open-bank-mark/internal/consumer"
	"github.com/sourceops/open-bank-mark/internal/db"
	"github.com/sourceops/open-bank-mark/internal/handler"
	"github.com/sourceops/open-bank-mark/internal/ledger"
	"github.com/sourceops/open-bank-mark/internal/producer"
	"github.com/sourceops/open-bank-mark/internal/tracing"
)

func main() {
	_ = godotenv.Load()

	logger, err := initLogger()
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	shutdownTracer, err := tracing.InitTracer("command-handler", cfg.JaegerEndpoint, logger)
	if err != nil {
		logger.Warn("Failed to initialize tracing", zap.Error(err))
	} else {
		defer shutdownTracer()
	}

	database, err := db.Connect(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	if err := db.Migrate(database, logger); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}

	registry := avro.NewRegistryClient(cfg.SchemaRegistryURL)
	queue := producer.NewQueue(cfg.ProducerQueueSize)
	prod := producer.NewProducer(cfg.KafkaBrokers, registry, logger)
	defer prod.Close()

	store := ledger.NewStore(database, logger, cfg.AllowExternalFrom)

	workers := []*consumer.Worker{
		consumer.NewWorker(cfg.KafkaBrokers, handler.TopicConfirmAccountCreation, cfg.ConsumerGroup, registry,
			handler.NewAccountCreationHandler(store, queue, logger), logger),
		consumer.NewWorker(cfg.KafkaBrokers, handler.TopicConfirmMoneyTransfer, cfg.ConsumerGroup, registry,
			handler.NewMoneyTransferHandler(store, queue, logger), logger),
	}

	go func() {
		r := chi.NewRouter()
		r.Handle("/metrics", promhttp.Handler())
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("OK"))
		})
		if err := http.ListenAndServe(cfg.OpsAddr, r); err != nil {
			logger.Error("Ops server error", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	producerDone := make(chan error, 1)
	go func() {
		producerDone <- prod.Run(queue)
	}()

	workerErrs := make(chan error, len(workers))
	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *consumer.Worker) {
			defer wg.Done()
			if err := w.Run(ctx); err != nil {
				workerErrs <- err
				stop()
			}
		}(w)
	}
	wg.Wait()

	for _, w := range workers {
		if err := w.Close(); err != nil {
			logger.Error("Error closing consumer", zap.Error(err))
		}
	}

	// Workers are stopped; close the queue so the producer drains what is
	// left and exits.
	queue.Close()
	if err := <-producerDone; err != nil {
		logger.Fatal("Producer failed", zap.Error(err))
	}

	select {
	case err := <-workerErrs:
		logger.Fatal("Consumer failed", zap.Error(err))
	default:
		logger.Info("Command handler stopped")
	}
}

func initLogger() (*zap.Logger, error) {
	if os.Getenv("ENV") == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
