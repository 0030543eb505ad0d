package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// NVR connection defaults, overridable per command with flags.
	Host      string
	Port      int
	Username  string
	Password  string
	OutputDir string
	VerifyTLS bool

	// Archive bucket for uploaded exports.
	ApiURL     string
	AccessKey  string
	SecretKey  string
	BucketName string
	Region     string
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg(".env file not found, using environment variables only")
	}

	config := &Config{
		Host:      getEnv("NVR_HOST", ""),
		Port:      getEnvInt("NVR_PORT", 20443),
		Username:  getEnv("NVR_USERNAME", ""),
		Password:  getEnv("NVR_PASSWORD", ""),
		OutputDir: getEnv("NVR_OUTPUT_DIR", "./exports"),
		VerifyTLS: getEnvBool("NVR_TLS_VERIFY", false),

		ApiURL:     getEnv("API_URL", ""),
		AccessKey:  getEnv("ACCESS_KEY", ""),
		SecretKey:  getEnv("SECRET_KEY", ""),
		BucketName: getEnv("BUCKET_NAME", ""),
		Region:     getEnv("REGION", ""),
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
