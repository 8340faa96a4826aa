package config

import (
	"time"
)

type MapsConfig struct {
	GoogleAPIKey   string        `yaml:"google_api_key"`
	GeocodeTimeout time.Duration `yaml:"geocode_timeout"`
}

func loadMapsConfig() *MapsConfig {
	return &MapsConfig{
		GoogleAPIKey:   getEnv("GOOGLE_MAPS_API_KEY", ""),
		GeocodeTimeout: getEnvAsDuration("GEOCODE_TIMEOUT", 3*time.Second),
	}
}
