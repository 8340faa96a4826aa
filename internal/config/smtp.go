package config

// SMTPConfig is the last-resort email channel. Without a host the channel
// is off and email attempts fail as not configured.
type SMTPConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
	SSL       bool   `yaml:"ssl"`
}

func (c *SMTPConfig) Enabled() bool {
	return c.Host != ""
}

func loadSMTPConfig() *SMTPConfig {
	return &SMTPConfig{
		Host:      getEnv("SMTP_HOST", ""),
		Port:      getEnvAsInt("SMTP_PORT", 587),
		Username:  getEnv("SMTP_USERNAME", ""),
		Password:  getEnv("SMTP_PASSWORD", ""),
		FromEmail: getEnv("SMTP_FROM_EMAIL", "alerts@sosalert.app"),
		FromName:  getEnv("SMTP_FROM_NAME", "SOS Alert"),
		SSL:       getEnvAsBool("SMTP_SSL", false),
	}
}
