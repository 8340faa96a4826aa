package main

import (
	"context"
	"fmt"
	"strings"

	"sosalert/internal/config"
	"sosalert/internal/repositories/interfaces"
	"sosalert/internal/repositories/memory"
	"sosalert/internal/repositories/mongodb"
	redisrepo "sosalert/internal/repositories/redis"
	"sosalert/internal/services"
	"sosalert/pkg/cache"
	"sosalert/pkg/database"
	"sosalert/pkg/email"
	"sosalert/pkg/logger"
	"sosalert/pkg/maps"
	"sosalert/pkg/push"
	"sosalert/pkg/sms"
	objectstorage "sosalert/pkg/storage"
)

type storage struct {
	emergencies     interfaces.EmergencyRepository
	acknowledgments interfaces.AcknowledgmentRepository
	contacts        interfaces.ContactRepository
	notifications   interfaces.NotificationRepository
	batches         interfaces.BatchRepository
	escalations     interfaces.EscalationRepository

	mongo *database.MongoDB
	redis *cache.RedisCache
}

// openStorage connects MongoDB and Redis and runs the index migrations. The
// memory driver keeps everything in process and suits a single instance.
func openStorage(ctx context.Context, cfg *config.Config, log *logger.Logger) (*storage, error) {
	if cfg.Emergency.StorageDriver == config.StorageDriverMemory {
		log.Warn("Using in-memory storage; state is lost on restart")
		return &storage{
			emergencies:     memory.NewEmergencyRepository(),
			acknowledgments: memory.NewAcknowledgmentRepository(),
			contacts:        memory.NewContactRepository(),
			notifications:   memory.NewNotificationRepository(),
			batches:         memory.NewBatchRepository(),
			escalations:     memory.NewEscalationRepository(),
		}, nil
	}

	db, err := database.NewMongoDB(&database.DatabaseConfig{
		AppName:        cfg.App.Name,
		URI:            cfg.Database.URI,
		Database:       cfg.Database.Database,
		MaxPoolSize:    cfg.Database.MaxPoolSize,
		MinPoolSize:    cfg.Database.MinPoolSize,
		ConnectTimeout: cfg.Database.ConnectTimeout,
		SocketTimeout:  cfg.Database.SocketTimeout,
	})
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(db.Database, mongodb.Migrations(), log).Up(ctx); err != nil {
		_ = db.Close(context.Background())
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	redisCache, err := cache.NewRedisCache(&cache.RedisConfig{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		IdleTimeout:  cfg.Redis.IdleTimeout,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		_ = db.Close(context.Background())
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.WithField("database", cfg.Database.Database).Info("Connected to MongoDB and Redis")

	return &storage{
		emergencies:     mongodb.NewEmergencyRepository(db.Database, redisCache),
		acknowledgments: mongodb.NewAcknowledgmentRepository(db.Database),
		contacts:        mongodb.NewContactRepository(db.Database),
		notifications:   mongodb.NewNotificationRepository(db.Database),
		batches:         mongodb.NewBatchRepository(db.Database),
		escalations:     redisrepo.NewEscalationRepository(redisCache),
		mongo:           db,
		redis:           redisCache,
	}, nil
}

func (s *storage) ping(ctx context.Context) error {
	if s.mongo != nil {
		if err := s.mongo.Ping(ctx); err != nil {
			return err
		}
	}
	if s.redis != nil {
		return s.redis.Ping(ctx)
	}
	return nil
}

func (s *storage) close(ctx context.Context, log *logger.Logger) {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			log.WithError(err).Warn("Failed to close Redis")
		}
	}
	if s.mongo != nil {
		if err := s.mongo.Close(ctx); err != nil {
			log.WithError(err).Warn("Failed to close MongoDB")
		}
	}
}

// newChannelSender builds whichever providers are configured. A channel
// without a provider fails its attempts, which triggers fallback.
func newChannelSender(ctx context.Context, cfg *config.Config, log *logger.Logger) (*services.MultiChannelSender, error) {
	var fcm, apns push.PushProvider
	if cfg.Push.FCM.Enabled() {
		provider, err := push.NewFCMProvider(ctx, cfg.Push.FCM.CredentialsFile)
		if err != nil {
			return nil, err
		}
		fcm = provider
	} else {
		log.Warn("FCM credentials not set; Android push disabled")
	}

	if apnsCfg := cfg.Push.APNS; apnsCfg.Enabled() {
		provider, err := push.NewAPNSProvider(apnsCfg.KeyFile, apnsCfg.KeyID, apnsCfg.TeamID, apnsCfg.BundleID, apnsCfg.Production)
		if err != nil {
			return nil, err
		}
		apns = provider
	}

	var smsProvider sms.SMSProvider
	switch cfg.SMS.Provider {
	case config.SMSProviderTwilio:
		if tw := cfg.SMS.Twilio; tw.AccountSID != "" {
			var callback string
			if tw.StatusCallbacks {
				callback = strings.TrimRight(cfg.App.BaseURL, "/") + "/api/v1/webhooks/twilio/sms-status"
			}
			smsProvider = sms.NewTwilioProvider(tw.AccountSID, tw.AuthToken, tw.FromNumber, callback)
		}
	case config.SMSProviderSNS:
		provider, err := sms.NewAWSSNSProvider(ctx, cfg.SMS.SNS.Region, cfg.SMS.SenderID)
		if err != nil {
			return nil, err
		}
		smsProvider = provider
	}
	if smsProvider == nil {
		log.Warn("SMS provider not configured; SMS delivery disabled")
	}

	var mailer email.Mailer
	if cfg.SMTP.Enabled() {
		mailer = email.NewSMTPMailer(email.Config{
			Host:      cfg.SMTP.Host,
			Port:      cfg.SMTP.Port,
			Username:  cfg.SMTP.Username,
			Password:  cfg.SMTP.Password,
			FromEmail: cfg.SMTP.FromEmail,
			FromName:  cfg.SMTP.FromName,
			SSL:       cfg.SMTP.SSL,
		})
	}

	return services.NewMultiChannelSender(fcm, apns, smsProvider, mailer), nil
}

// newAddressResolver returns nil without an API key; alerts then carry
// coordinates only.
func newAddressResolver(cfg *config.Config, store *storage, log *logger.Logger) services.AddressResolver {
	if cfg.Maps.GoogleAPIKey == "" {
		return nil
	}

	provider, err := maps.NewGoogleMapsProvider(cfg.Maps.GoogleAPIKey)
	if err != nil {
		log.WithError(err).Warn("Reverse geocoding disabled")
		return nil
	}
	return services.NewAddressResolver(provider, store.emergencies, cfg.Maps.GeocodeTimeout, log)
}

func newIncidentArchiver(ctx context.Context, cfg *config.Config, orchestrator services.Orchestrator, log *logger.Logger) (*services.IncidentArchiver, error) {
	a := cfg.Archive
	if !a.Enabled {
		return nil, nil
	}

	var provider objectstorage.StorageProvider
	switch a.Provider {
	case config.ArchiveProviderS3:
		s3, err := objectstorage.NewAWSS3Storage(ctx, a.Region, a.Bucket)
		if err != nil {
			return nil, err
		}
		provider = s3
	case config.ArchiveProviderGCS:
		gcs, err := objectstorage.NewGCPStorage(ctx, a.Bucket, a.CredentialsFile)
		if err != nil {
			return nil, err
		}
		provider = gcs
	default:
		local, err := objectstorage.NewLocalStorage(a.LocalPath)
		if err != nil {
			return nil, err
		}
		provider = local
	}

	log.WithField("provider", a.Provider).Info("Incident archive enabled")
	return services.NewIncidentArchiver(orchestrator, provider, a.Prefix, log), nil
}
