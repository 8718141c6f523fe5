// Package config содержит логику чтения конфигурации библиотечного сервиса.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации библиотечного сервиса.
type Config struct {
	RunAddress        string        `env:"RUN_ADDRESS"`
	DatabaseURI       string        `env:"DATABASE_URI"`
	AuthSecret        string        `env:"AUTH_SECRET"`
	ReceiptsDir       string        `env:"RECEIPTS_DIR"`
	PDFTimeout        time.Duration `env:"RECEIPT_PDF_TIMEOUT"`
	AssistantAddress  string        `env:"ASSISTANT_API_URL"`
	AssistantKey      string        `env:"ASSISTANT_API_KEY"`
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL"`
}

const (
	defaultRunAddress  = "localhost:8080"
	defaultReceiptsDir = "./data/receipts"
	defaultPDFTimeout  = 30 * time.Second
)

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	envCfg := &Config{}
	if err := env.Parse(envCfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg := &Config{}

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.AuthSecret, "s", "", "secret for signing auth tokens")
	flag.StringVar(&cfg.ReceiptsDir, "p", defaultReceiptsDir, "directory for receipt PDFs")
	flag.DurationVar(&cfg.PDFTimeout, "t", defaultPDFTimeout, "receipt PDF rendering timeout")
	flag.StringVar(&cfg.AssistantAddress, "g", "", "generative assistant API URL")
	flag.DurationVar(&cfg.ReconcileInterval, "i", 0, "inventory reconciliation interval, 0 disables it")

	flag.Parse()

	if envCfg.RunAddress != "" {
		cfg.RunAddress = envCfg.RunAddress
	}
	if envCfg.DatabaseURI != "" {
		cfg.DatabaseURI = envCfg.DatabaseURI
	}
	if envCfg.AuthSecret != "" {
		cfg.AuthSecret = envCfg.AuthSecret
	}
	if envCfg.ReceiptsDir != "" {
		cfg.ReceiptsDir = envCfg.ReceiptsDir
	}
	if envCfg.PDFTimeout != 0 {
		cfg.PDFTimeout = envCfg.PDFTimeout
	}
	if envCfg.AssistantAddress != "" {
		cfg.AssistantAddress = envCfg.AssistantAddress
	}
	// Ключ читается только из окружения, чтобы не попадать в список процессов.
	cfg.AssistantKey = envCfg.AssistantKey
	if envCfg.ReconcileInterval != 0 {
		cfg.ReconcileInterval = envCfg.ReconcileInterval
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.PDFTimeout <= 0 {
		cfg.PDFTimeout = defaultPDFTimeout
	}

	return cfg, nil
}
