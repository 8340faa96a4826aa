package config

import (
	"fmt"
	"strings"
)

const (
	SMSProviderTwilio = "twilio"
	SMSProviderSNS    = "sns"
)

type SMSConfig struct {
	Provider string        `yaml:"provider"`
	SenderID string        `yaml:"sender_id"`
	Twilio   *TwilioConfig `yaml:"twilio"`
	SNS      *SNSConfig    `yaml:"sns"`
}

type TwilioConfig struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	FromNumber string `yaml:"from_number"`
	// StatusCallbacks asks Twilio to report delivery states back to the
	// webhook under APP_BASE_URL.
	StatusCallbacks bool `yaml:"status_callbacks"`
}

// SNSConfig only names the region; credentials come from the default AWS
// chain.
type SNSConfig struct {
	Region string `yaml:"region"`
}

func loadSMSConfig() *SMSConfig {
	provider := strings.ToLower(getEnv("SMS_PROVIDER", SMSProviderTwilio))
	if provider == "aws" {
		provider = SMSProviderSNS
	}

	return &SMSConfig{
		Provider: provider,
		SenderID: getEnv("SMS_SENDER_ID", "SOSAlert"),
		Twilio: &TwilioConfig{
			AccountSID:      getEnv("TWILIO_ACCOUNT_SID", ""),
			AuthToken:       getEnv("TWILIO_AUTH_TOKEN", ""),
			FromNumber:      getEnv("TWILIO_FROM_NUMBER", ""),
			StatusCallbacks: getEnvAsBool("TWILIO_STATUS_CALLBACKS", true),
		},
		SNS: &SNSConfig{
			Region: getEnv("AWS_REGION", "us-east-1"),
		},
	}
}

func (c *SMSConfig) validate() error {
	switch c.Provider {
	case SMSProviderTwilio:
		if c.Twilio.AccountSID != "" && c.Twilio.FromNumber == "" {
			return fmt.Errorf("TWILIO_FROM_NUMBER is required with TWILIO_ACCOUNT_SID")
		}
	case SMSProviderSNS:
	default:
		return fmt.Errorf("unknown SMS provider %q", c.Provider)
	}
	return nil
}
