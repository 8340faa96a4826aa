package config

import (
	"time"
)

const (
	StorageDriverMongo  = "mongodb"
	StorageDriverMemory = "memory"
)

type EmergencyConfig struct {
	DefaultCountdown     time.Duration `yaml:"default_countdown"`
	AutoTriggerCountdown time.Duration `yaml:"auto_trigger_countdown"`
	EscalationTimeout    time.Duration `yaml:"escalation_timeout"`
	FollowUpInterval     time.Duration `yaml:"follow_up_interval"`
	MaxFollowUps         int           `yaml:"max_follow_ups"`
	DispatchWorkers      int           `yaml:"dispatch_workers"`
	DispatchQueueSize    int           `yaml:"dispatch_queue_size"`
	ReconcileInterval    time.Duration `yaml:"reconcile_interval"`
	StorageDriver        string        `yaml:"storage_driver"`
	EventChannel         string        `yaml:"event_channel"`
}

func loadEmergencyConfig() *EmergencyConfig {
	return &EmergencyConfig{
		DefaultCountdown:     getEnvAsDuration("EMERGENCY_DEFAULT_COUNTDOWN", 10*time.Second),
		AutoTriggerCountdown: getEnvAsDuration("EMERGENCY_AUTO_TRIGGER_COUNTDOWN", 30*time.Second),
		EscalationTimeout:    getEnvAsDuration("EMERGENCY_ESCALATION_TIMEOUT", 2*time.Minute),
		FollowUpInterval:     getEnvAsDuration("EMERGENCY_FOLLOW_UP_INTERVAL", 30*time.Second),
		MaxFollowUps:         getEnvAsInt("EMERGENCY_MAX_FOLLOW_UPS", 10),
		DispatchWorkers:      getEnvAsInt("EMERGENCY_DISPATCH_WORKERS", 10),
		DispatchQueueSize:    getEnvAsInt("EMERGENCY_DISPATCH_QUEUE_SIZE", 1024),
		ReconcileInterval:    getEnvAsDuration("EMERGENCY_RECONCILE_INTERVAL", time.Minute),
		StorageDriver:        getEnv("EMERGENCY_STORAGE_DRIVER", StorageDriverMongo),
		EventChannel:         getEnv("EMERGENCY_EVENT_CHANNEL", "emergency:events"),
	}
}
