package config

import (
	"time"
)

type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	ClientID     string        `yaml:"client_id"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	RequiredAcks int           `yaml:"required_acks"`
}

func loadKafkaConfig() *KafkaConfig {
	return &KafkaConfig{
		Enabled:      getEnvAsBool("KAFKA_ENABLED", false),
		Brokers:      getEnvAsSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
		Topic:        getEnv("KAFKA_EMERGENCY_TOPIC", "emergency-events"),
		ClientID:     getEnv("KAFKA_CLIENT_ID", "emergency-service"),
		BatchTimeout: getEnvAsDuration("KAFKA_BATCH_TIMEOUT", 10*time.Millisecond),
		WriteTimeout: getEnvAsDuration("KAFKA_WRITE_TIMEOUT", 10*time.Second),
		RequiredAcks: getEnvAsInt("KAFKA_REQUIRED_ACKS", -1),
	}
}
