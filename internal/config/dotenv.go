package config

import (
	"os"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads environment variables from a .env file.
// If path is empty, it loads from ".env" in the current directory.
// If the file does not exist, it silently returns nil (not an error).
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	return godotenv.Load(path)
}

// LoadConfig loads configuration from an optional .env file, environment
// variables, and an optional YAML file, in increasing precedence: values set
// in the YAML file override the environment.
func LoadConfig(filePath, envPath string) (AppConfig, error) {
	if err := LoadDotEnv(envPath); err != nil {
		return AppConfig{}, err
	}

	envCfg, err := LoadFromEnv()
	if err != nil {
		return AppConfig{}, err
	}

	cfg := envCfg.ToAppConfig()

	if filePath != "" {
		fileCfg, err := LoadFile(filePath)
		if err != nil {
			return AppConfig{}, err
		}
		cfg = fileCfg.Apply(cfg)
	}

	return cfg, nil
}
