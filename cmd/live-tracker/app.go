package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/BearBump/LiveTrace/config"
	trackingapi "github.com/BearBump/LiveTrace/internal/api/tracking_api"
	"github.com/BearBump/LiveTrace/internal/auth"
	"github.com/BearBump/LiveTrace/internal/broker/amqp"
	"github.com/BearBump/LiveTrace/internal/broker/kafka"
	"github.com/BearBump/LiveTrace/internal/cache/rediscache"
	"github.com/BearBump/LiveTrace/internal/integrations/geocoding"
	"github.com/BearBump/LiveTrace/internal/integrations/geocoding/fake"
	"github.com/BearBump/LiveTrace/internal/integrations/geocoding/nominatim"
	"github.com/BearBump/LiveTrace/internal/metrics"
	"github.com/BearBump/LiveTrace/internal/models"
	"github.com/BearBump/LiveTrace/internal/services/broadcast"
	"github.com/BearBump/LiveTrace/internal/services/generator"
	"github.com/BearBump/LiveTrace/internal/services/notifications"
	"github.com/BearBump/LiveTrace/internal/services/tracking"
	"github.com/BearBump/LiveTrace/internal/storage/pgshipments"
	"github.com/BearBump/LiveTrace/internal/transport/ws"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc/health"
)

const defaultRedisPrefix = "livetrace:"

type shipmentStore interface {
	tracking.ShipmentRepository
	Name() string
	Ping(ctx context.Context) error
	Close()
}

type ledgerProducer interface {
	tracking.LedgerPublisher
	Close() error
}

type sensorConsumer interface {
	Consume(ctx context.Context, handler func(ctx context.Context, key, value []byte) error) error
	Close() error
}

type deliveryQueue interface {
	notifications.Delivery
	Name() string
	Ping(ctx context.Context) error
	Close()
}

// appFactories builds the external adapters. A nil factory, or one that
// returns nil, leaves that integration off.
type appFactories struct {
	newShipments func(ctx context.Context, cfg *config.Config) (shipmentStore, error)
	newRedis     func(ctx context.Context, cfg *config.Config) (*redis.Client, error)
	newLedger    func(cfg *config.Config) ledgerProducer
	newConsumer  func(cfg *config.Config, logger *zap.Logger) sensorConsumer
	newDelivery  func(cfg *config.Config) (deliveryQueue, error)
	newGeocoder  func(cfg *config.Config) geocoding.Client
}

func defaultAppFactories() appFactories {
	return appFactories{
		newShipments: func(ctx context.Context, cfg *config.Config) (shipmentStore, error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := openPostgresWithRetry(ctx, connString, 60*time.Second)
			if err != nil {
				return nil, err
			}
			return st, nil
		},
		newRedis: func(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
			return rediscache.Connect(ctx, rediscache.Options{
				Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
		},
		newLedger: func(cfg *config.Config) ledgerProducer {
			if cfg.Kafka.Host == "" {
				return nil
			}
			return kafka.NewProducer([]string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)})
		},
		newConsumer: func(cfg *config.Config, logger *zap.Logger) sensorConsumer {
			if cfg.Kafka.Host == "" {
				return nil
			}
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewConsumer(brokers,
				orDefault(cfg.Kafka.SensorReadingsTopicName, "sensor.readings"),
				orDefault(cfg.Kafka.ConsumerGroup, "live-tracker"),
				logger)
		},
		newDelivery: func(cfg *config.Config) (deliveryQueue, error) {
			if cfg.RabbitMQ.URL == "" {
				return nil, nil
			}
			p, err := amqp.Dial(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
		newGeocoder: func(cfg *config.Config) geocoding.Client {
			if cfg.LiveTrack.GeocoderMode == "nominatim" && cfg.LiveTrack.GeocoderBaseURL != "" {
				return nominatim.New(cfg.LiveTrack.GeocoderBaseURL,
					orDefault(cfg.LiveTrack.GeocoderUserAgent, "live-tracker"), 5*time.Second)
			}
			return fake.New()
		},
	}
}

func openPostgresWithRetry(ctx context.Context, connString string, wait time.Duration) (*pgshipments.Storage, error) {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgshipments.New(ctx, connString)
		if err == nil {
			return st, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return nil, errors.Wrapf(lastErr, "postgres is not ready after %s", wait)
}

type app struct {
	cfg    *config.Config
	logger *zap.Logger

	svc    *tracking.Service
	notes  *notifications.Service
	health *health.Server
	routes routerOpts

	consumer sensorConsumer
	closers  []func()
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func buildApp(ctx context.Context, cfg *config.Config, f appFactories, logger *zap.Logger) (a *app, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	lt := cfg.LiveTrack
	if lt.JWTSecret == "" {
		return nil, errors.New("livetrack.jwt_secret is required")
	}

	a = &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewCollector(reg)

	dispatcher := broadcast.NewDispatcher(broadcast.NewRegistry(), logger, m)

	var pingers []tracking.Pinger

	var rdb *redis.Client
	if f.newRedis != nil {
		if rdb, err = f.newRedis(ctx, cfg); err != nil {
			return nil, err
		}
		if rdb != nil {
			a.closers = append(a.closers, func() { _ = rdb.Close() })
			pingers = append(pingers, rediscache.NewPinger(rdb))
		}
	}
	prefix := orDefault(cfg.Redis.Prefix, defaultRedisPrefix)

	limits := notifications.Limits{
		PerRecipient: lt.NotificationsPerRecipient,
		Global:       lt.NotificationsGlobal,
		TTL:          time.Duration(lt.NotificationTTLHours) * time.Hour,
	}
	var store notifications.Store
	if rdb != nil && lt.NotificationStore != "memory" {
		store = notifications.NewRedis(rdb, prefix+"notif:", limits, logger)
	} else {
		store = notifications.NewMemory(limits)
	}

	var geo geocoding.Client = fake.New()
	if f.newGeocoder != nil {
		if g := f.newGeocoder(cfg); g != nil {
			geo = g
		}
	}
	if rdb != nil {
		geo = geocoding.NewCached(geo, rediscache.New(rdb, prefix+"geo:"),
			time.Duration(lt.GeocodeCacheHours)*time.Hour, logger)
	}
	gen := generator.New(generator.DefaultConfig(), geo, nil, logger)

	var delivery notifications.Delivery
	if f.newDelivery != nil {
		q, err := f.newDelivery(cfg)
		if err != nil {
			return nil, err
		}
		if q != nil {
			delivery = q
			a.closers = append(a.closers, q.Close)
			pingers = append(pingers, q)
		}
	}
	a.notes = notifications.NewService(store, dispatcher, delivery, m, logger)

	var shipments tracking.ShipmentRepository
	if f.newShipments != nil {
		st, err := f.newShipments(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if st != nil {
			shipments = st
			a.closers = append(a.closers, st.Close)
			pingers = append(pingers, st)
		}
	}
	if shipments == nil {
		return nil, errors.New("shipment store is required")
	}

	var ledger tracking.LedgerPublisher
	if f.newLedger != nil {
		if p := f.newLedger(cfg); p != nil {
			ledger = p
			a.closers = append(a.closers, func() { _ = p.Close() })
		}
	}

	var limiter tracking.RateLimiter
	if rdb != nil {
		limiter = rediscache.NewRateLimiter(rdb, prefix+"rl:")
	}

	a.health = health.NewServer()
	a.svc = tracking.New(tracking.Config{
		DefaultInterval:      seconds(lt.DefaultIntervalSeconds),
		MinInterval:          seconds(lt.MinIntervalSeconds),
		StaleAfter:           seconds(lt.StaleAfterSeconds),
		HousekeepingInterval: seconds(lt.HousekeepingIntervalSeconds),
		HealthInterval:       seconds(lt.HealthIntervalSeconds),
		UpstreamTimeout:      seconds(lt.UpstreamTimeoutSeconds),
		ShutdownGrace:        seconds(lt.ShutdownGraceSeconds),
		RegulatoryRole:       lt.RegulatoryRole,
		PrivilegedRoles:      lt.PrivilegedRoles,
		StartLimit:           int64(lt.StartRateLimitPerMinute),
		StartWindow:          time.Minute,
		LedgerTopic:          cfg.Kafka.LedgerTopicName,
	}, tracking.Deps{
		Generator:  gen,
		Dispatcher: dispatcher,
		Notifier:   a.notes,
		Shipments:  shipments,
		Ledger:     ledger,
		Limiter:    limiter,
		Pingers:    pingers,
		HealthSink: healthSink(a.health),
		Metrics:    m,
		Logger:     logger,
	})

	authn := auth.New(lt.JWTSecret)
	a.routes = routerOpts{
		api:         trackingapi.New(a.svc, a.notes, logger),
		ws:          ws.NewHandler(dispatcher.Registry(), a.svc, a.notes, authn, ws.Options{QueueSize: lt.WSQueueSize}, m, logger),
		authn:       authn,
		metrics:     m.Handler(),
		ready:       a.ready,
		swaggerPath: orDefault(lt.SwaggerPath, os.Getenv("swaggerPath")),
	}

	if f.newConsumer != nil {
		if c := f.newConsumer(cfg, logger); c != nil {
			a.consumer = c
			a.closers = append(a.closers, func() { _ = c.Close() })
		}
	}
	return a, nil
}

func (a *app) ready(ctx context.Context) bool {
	return a.svc.Health(ctx).Status == models.HealthStatusOK
}

// Close releases adapters in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
