// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config resolves service configuration from the environment and
// ships the embedded vocabulary used when the graph is unreachable.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds everything the peers service needs beyond provider
// credentials, which the LLM and store clients read themselves.
//
// Thread Safety: Config is read-only after FromEnv returns.
type Config struct {
	// ListenAddr is the API server bind address.
	ListenAddr string `validate:"required"`

	// LLMProvider selects the chat backend: openai or ollama.
	LLMProvider string `validate:"oneof=openai ollama"`

	// CacheDir is the BadgerDB directory for persisted embedding vectors.
	// Empty means in-memory only.
	CacheDir string

	// VocabOverridePath points at an optional YAML file that extends the
	// embedded vocabulary; watched for changes when set.
	VocabOverridePath string

	// SchemaTTL is how long a schema snapshot stays fresh.
	SchemaTTL time.Duration `validate:"gt=0"`

	// LLMTimeout bounds one chat round trip.
	LLMTimeout time.Duration `validate:"gt=0"`

	// StoreTimeout bounds one graph query.
	StoreTimeout time.Duration `validate:"gt=0"`

	// EmbedTimeout bounds one embedding call.
	EmbedTimeout time.Duration `validate:"gt=0"`

	// PipelineTimeout bounds a full question round trip.
	PipelineTimeout time.Duration `validate:"gt=0"`

	// HistoryLimit caps the in-memory question history.
	HistoryLimit int `validate:"gte=1,lte=500"`

	// MaxToolRounds caps LLM round trips inside the tool-calling loop.
	MaxToolRounds int `validate:"gte=1,lte=10"`
}

// Defaults returns the configuration used when no environment overrides
// are present.
func Defaults() Config {
	return Config{
		ListenAddr:      ":8086",
		LLMProvider:     "openai",
		SchemaTTL:       300 * time.Second,
		LLMTimeout:      120 * time.Second,
		StoreTimeout:    30 * time.Second,
		EmbedTimeout:    3 * time.Second,
		PipelineTimeout: 5 * time.Minute,
		HistoryLimit:    20,
		MaxToolRounds:   5,
	}
}

// FromEnv builds a Config from PEERS_* environment variables on top of
// Defaults and validates it.
//
// Outputs:
//   - *Config: The validated configuration.
//   - error: Non-nil when a variable fails to parse or a validation tag
//     is violated.
func FromEnv() (*Config, error) {
	cfg := Defaults()

	if v := os.Getenv("PEERS_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("PEERS_LLM_PROVIDER"); v != "" {
		cfg.LLMProvider = v
	}
	cfg.CacheDir = os.Getenv("PEERS_CACHE_DIR")
	cfg.VocabOverridePath = os.Getenv("PEERS_VOCAB_OVERRIDES")

	var err error
	if cfg.SchemaTTL, err = envDuration("PEERS_SCHEMA_TTL", cfg.SchemaTTL); err != nil {
		return nil, err
	}
	if cfg.LLMTimeout, err = envDuration("PEERS_LLM_TIMEOUT", cfg.LLMTimeout); err != nil {
		return nil, err
	}
	if cfg.StoreTimeout, err = envDuration("PEERS_STORE_TIMEOUT", cfg.StoreTimeout); err != nil {
		return nil, err
	}
	if cfg.EmbedTimeout, err = envDuration("PEERS_EMBED_TIMEOUT", cfg.EmbedTimeout); err != nil {
		return nil, err
	}
	if cfg.PipelineTimeout, err = envDuration("PEERS_PIPELINE_TIMEOUT", cfg.PipelineTimeout); err != nil {
		return nil, err
	}
	if cfg.HistoryLimit, err = envInt("PEERS_HISTORY_LIMIT", cfg.HistoryLimit); err != nil {
		return nil, err
	}
	if cfg.MaxToolRounds, err = envInt("PEERS_MAX_TOOL_ROUNDS", cfg.MaxToolRounds); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.Info("Configuration loaded",
		slog.String("listen_addr", cfg.ListenAddr),
		slog.String("llm_provider", cfg.LLMProvider),
		slog.Duration("schema_ttl", cfg.SchemaTTL),
		slog.Bool("vector_cache_persisted", cfg.CacheDir != ""),
	)
	return &cfg, nil
}

// Validate checks the struct tags; FromEnv calls this, and tests build
// configs directly and call it themselves.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: validation failed: %w", err)
	}
	return nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: parsing %s=%q: %w", key, v, err)
	}
	return d, nil
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: parsing %s=%q: %w", key, v, err)
	}
	return n, nil
}
