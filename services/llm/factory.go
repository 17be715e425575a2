// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// NewToolCallerFromEnv constructs the chat provider selected by
// PEERS_LLM_PROVIDER.
//
// Description:
//
//	Recognized values are "openai" (default) and "ollama". The chosen
//	client's own constructor reads its provider-specific environment
//	variables, so this function adds no configuration of its own.
//
// Outputs:
//   - ToolCaller: The configured provider client.
//   - error: Non-nil when the provider name is unknown or the provider
//     constructor fails (e.g. missing API key).
func NewToolCallerFromEnv() (ToolCaller, error) {
	provider := strings.ToLower(strings.TrimSpace(os.Getenv("PEERS_LLM_PROVIDER")))
	if provider == "" {
		provider = "openai"
	}

	slog.Info("Selecting LLM provider", slog.String("provider", provider))

	switch provider {
	case "openai":
		return NewOpenAIClient()
	case "ollama":
		return NewOllamaClient()
	default:
		return nil, fmt.Errorf("llm: unknown provider %q (want openai or ollama)", provider)
	}
}
