package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type StorageConfig struct {
	UploadsDir  string `yaml:"uploads_dir"`
	AnalysisDir string `yaml:"analysis_dir"`
	MaxBytes    int64  `yaml:"max_bytes"`
}

type AnalyzerConfig struct {
	Interpreter string `yaml:"interpreter"`
	Script      string `yaml:"script"`
	MergeScript string `yaml:"merge_script"`
}

type AuthConfig struct {
	JWTSecret     string `yaml:"jwt_secret"`
	TokenTTLHours int    `yaml:"token_ttl_hours"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	Analyzer AnalyzerConfig `yaml:"analyzer"`
	Auth     AuthConfig     `yaml:"auth"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:       "127.0.0.1",
			Port:       3000,
			CORSOrigin: "http://localhost:5173",
		},
		Database: DatabaseConfig{
			Path: "vulnsuite.db",
		},
		Storage: StorageConfig{
			UploadsDir:  "./uploads",
			AnalysisDir: "./analysis_results",
			MaxBytes:    1 << 30,
		},
		Analyzer: AnalyzerConfig{
			Interpreter: "python3",
			Script:      "./scripts/analize.py",
			MergeScript: "./scripts/merge_csv.py",
		},
		Auth: AuthConfig{
			JWTSecret:     "change-me",
			TokenTTLHours: 24,
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}
