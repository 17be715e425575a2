// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed vocab.yaml
var vocabYAML []byte

// Vocab is the static vocabulary shipped with the binary: company aliases
// for decomposition when the schema cache is cold, and the parameter label
// pattern table used by deterministic query builders.
//
// Thread Safety: Vocab values are treated as immutable once published.
type Vocab struct {
	// CompanyAliases maps a lower-case question token to a canonical
	// company name from the graph.
	CompanyAliases map[string]string `yaml:"company_aliases"`

	// ParameterPatterns maps a canonical Parameter label to OR-combined
	// alternatives; each alternative is a conjunction of substrings that
	// must all appear in parameter_name.
	ParameterPatterns map[string][][]string `yaml:"parameter_patterns"`
}

var (
	vocabOnce   sync.Once
	vocabLoaded *Vocab
	vocabErr    error
)

// LoadVocab parses the embedded vocabulary exactly once.
//
// Outputs:
//   - *Vocab: The parsed vocabulary.
//   - error: Non-nil when the embedded YAML is malformed (a build-time
//     defect, not a runtime condition).
func LoadVocab() (*Vocab, error) {
	vocabOnce.Do(func() {
		var v Vocab
		if err := yaml.Unmarshal(vocabYAML, &v); err != nil {
			vocabErr = fmt.Errorf("config: parsing embedded vocab.yaml: %w", err)
			return
		}
		vocabLoaded = &v
		slog.Info("Vocabulary loaded",
			slog.Int("company_aliases", len(v.CompanyAliases)),
			slog.Int("parameter_patterns", len(v.ParameterPatterns)),
		)
	})
	return vocabLoaded, vocabErr
}

// MustLoadVocab returns the embedded vocabulary, or an empty one with a
// warning if parsing fails. Callers that can degrade gracefully use this.
func MustLoadVocab() *Vocab {
	v, err := LoadVocab()
	if err != nil {
		slog.Warn("Falling back to empty vocabulary", slog.String("error", err.Error()))
		return &Vocab{
			CompanyAliases:    map[string]string{},
			ParameterPatterns: map[string][][]string{},
		}
	}
	return v
}

// parseVocabFile reads and parses an operator override file.
func parseVocabFile(path string) (*Vocab, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading vocab overrides %s: %w", path, err)
	}
	var v Vocab
	if err := yaml.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("config: parsing vocab overrides %s: %w", path, err)
	}
	return &v, nil
}

// merged returns a new Vocab with override entries layered on top of base.
// Overrides add or replace entries; they never remove base entries.
func merged(base, override *Vocab) *Vocab {
	out := &Vocab{
		CompanyAliases:    make(map[string]string, len(base.CompanyAliases)),
		ParameterPatterns: make(map[string][][]string, len(base.ParameterPatterns)),
	}
	for k, v := range base.CompanyAliases {
		out.CompanyAliases[k] = v
	}
	for k, v := range base.ParameterPatterns {
		out.ParameterPatterns[k] = v
	}
	if override != nil {
		for k, v := range override.CompanyAliases {
			out.CompanyAliases[k] = v
		}
		for k, v := range override.ParameterPatterns {
			out.ParameterPatterns[k] = v
		}
	}
	return out
}
