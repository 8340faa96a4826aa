package config

const (
	ArchiveProviderS3    = "s3"
	ArchiveProviderGCS   = "gcs"
	ArchiveProviderLocal = "local"
)

// ArchiveConfig selects where incident reports are written once an
// emergency closes.
type ArchiveConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Provider        string `yaml:"provider"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	CredentialsFile string `yaml:"credentials_file"`
	LocalPath       string `yaml:"local_path"`
	Prefix          string `yaml:"prefix"`
}

func loadArchiveConfig() *ArchiveConfig {
	return &ArchiveConfig{
		Enabled:         getEnvAsBool("ARCHIVE_ENABLED", false),
		Provider:        getEnv("ARCHIVE_PROVIDER", ArchiveProviderLocal),
		Bucket:          getEnv("ARCHIVE_BUCKET", ""),
		Region:          getEnv("ARCHIVE_REGION", getEnv("AWS_REGION", "us-east-1")),
		CredentialsFile: getEnv("ARCHIVE_CREDENTIALS_FILE", ""),
		LocalPath:       getEnv("ARCHIVE_LOCAL_PATH", "./data/incidents"),
		Prefix:          getEnv("ARCHIVE_PREFIX", "incidents"),
	}
}
