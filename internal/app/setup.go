package app

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"savings-rate-service/internal/adapter/events"
	"savings-rate-service/internal/adapter/repository"
	"savings-rate-service/internal/adapter/store"
	"savings-rate-service/internal/config"
	"savings-rate-service/internal/domain/ports"
	"savings-rate-service/internal/service"
	"savings-rate-service/pkg/logger"
)

// Dependencies holds everything built from config, plus the closers to run
// on shutdown.
type Dependencies struct {
	Store    ports.KVStore
	Acquirer *service.RateAcquirer

	closers []io.Closer
}

func (d *Dependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func NewStore(cfg config.StoreConfig, log *logger.Logger) (ports.KVStore, io.Closer, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return store.NewMemoryStore(log), nil, nil
	case config.BackendFile:
		s, err := store.NewFileStore(cfg.Dir, log)
		return s, nil, err
	case config.BackendRedis:
		s := store.NewRedisStore(store.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			UseTLS:   cfg.RedisTLS,
			Prefix:   cfg.RedisPrefix,
		}, log)
		return s, s, nil
	case config.BackendPostgres:
		s, err := store.NewPostgresStore(cfg.PostgresDSN, log)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// Setup wires the acquirer. recorder may be nil.
func Setup(cfg *config.Config, log *logger.Logger, recorder ports.Recorder) (*Dependencies, error) {
	deps := &Dependencies{}

	kv, closer, err := NewStore(cfg.Store, log)
	if err != nil {
		return nil, fmt.Errorf("failed to init %s store: %w", cfg.Store.Backend, err)
	}
	deps.Store = kv
	if closer != nil {
		deps.closers = append(deps.closers, closer)
	}

	source := repository.NewExchangeAPI(cfg.ExchangeAPI.BaseURL, cfg.ExchangeAPI.APIKey, &http.Client{}, log)

	opts := []service.Option{
		service.WithQuota(cfg.Acquirer.MaxPerHour, cfg.Acquirer.QuotaWindow),
		service.WithCacheTTL(cfg.Acquirer.CacheTTL),
		service.WithTimeout(cfg.Acquirer.Timeout),
		service.WithBaseline(cfg.Acquirer.Baseline),
	}
	if cfg.Acquirer.SingleFlight {
		opts = append(opts, service.WithSingleFlight())
	}
	if recorder != nil {
		opts = append(opts, service.WithRecorder(recorder))
	}
	if len(cfg.Kafka.Brokers) > 0 {
		pub := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		deps.closers = append(deps.closers, pub)
		opts = append(opts, service.WithPublisher(pub))
		log.Info("Publishing rate samples to kafka", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	deps.Acquirer = service.NewRateAcquirer(kv, source, log.With("component", "acquirer"), opts...)
	return deps, nil
}
