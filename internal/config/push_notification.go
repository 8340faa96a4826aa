package config

import (
	"fmt"
)

// PushConfig holds both push transports. A transport without credentials
// stays off and its contacts fall back to SMS.
type PushConfig struct {
	FCM  *FCMConfig  `yaml:"fcm"`
	APNS *APNSConfig `yaml:"apns"`
}

type FCMConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
}

func (c *FCMConfig) Enabled() bool {
	return c.CredentialsFile != ""
}

// APNSConfig uses token-based auth with a .p8 signing key.
type APNSConfig struct {
	KeyFile    string `yaml:"key_file"`
	KeyID      string `yaml:"key_id"`
	TeamID     string `yaml:"team_id"`
	BundleID   string `yaml:"bundle_id"`
	Production bool   `yaml:"production"`
}

func (c *APNSConfig) Enabled() bool {
	return c.KeyFile != ""
}

func (c *APNSConfig) validate() error {
	if !c.Enabled() {
		return nil
	}
	if c.KeyID == "" || c.TeamID == "" || c.BundleID == "" {
		return fmt.Errorf("APNS_KEY_FILE requires APNS_KEY_ID, APNS_TEAM_ID and APNS_BUNDLE_ID")
	}
	return nil
}

func loadPushConfig() *PushConfig {
	return &PushConfig{
		FCM: &FCMConfig{
			CredentialsFile: getEnv("FCM_CREDENTIALS_FILE", ""),
		},
		APNS: &APNSConfig{
			KeyFile:    getEnv("APNS_KEY_FILE", ""),
			KeyID:      getEnv("APNS_KEY_ID", ""),
			TeamID:     getEnv("APNS_TEAM_ID", ""),
			BundleID:   getEnv("APNS_BUNDLE_ID", ""),
			Production: getEnvAsBool("APNS_PRODUCTION", false),
		},
	}
}
