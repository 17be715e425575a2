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
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadVocab_EmbeddedContent(t *testing.T) {
	v, err := LoadVocab()
	if err != nil {
		t.Fatalf("LoadVocab failed: %v", err)
	}

	if v.CompanyAliases["kajaria"] != "Kajaria Ceramics" {
		t.Errorf("kajaria alias = %q, want %q", v.CompanyAliases["kajaria"], "Kajaria Ceramics")
	}
	if v.CompanyAliases["bajaj"] != "Bajaj" {
		t.Errorf("bajaj alias = %q, want %q", v.CompanyAliases["bajaj"], "Bajaj")
	}

	patterns, ok := v.ParameterPatterns["Receivables, Net"]
	if !ok {
		t.Fatal("missing Receivables, Net pattern")
	}
	if len(patterns) != 3 {
		t.Errorf("Receivables, Net alternatives = %d, want 3", len(patterns))
	}
	last := patterns[len(patterns)-1]
	if len(last) != 2 || last[0] != "Accounts" || last[1] != "receivable" {
		t.Errorf("conjunction alternative = %v, want [Accounts receivable]", last)
	}
}

func TestLoadVocab_Idempotent(t *testing.T) {
	a, err := LoadVocab()
	if err != nil {
		t.Fatalf("LoadVocab failed: %v", err)
	}
	b, err := LoadVocab()
	if err != nil {
		t.Fatalf("LoadVocab failed: %v", err)
	}
	if a != b {
		t.Error("LoadVocab should return the same parsed instance")
	}
}

func TestVocabStore_ApplyOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overrides.yaml")
	content := "company_aliases:\n  acme: \"Acme Industrials\"\n  kajaria: \"Kajaria Ceramics Ltd\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing override file: %v", err)
	}

	store := NewVocabStore()
	if err := store.ApplyOverrides(path); err != nil {
		t.Fatalf("ApplyOverrides failed: %v", err)
	}

	v := store.Current()
	if v.CompanyAliases["acme"] != "Acme Industrials" {
		t.Errorf("new alias = %q, want added entry", v.CompanyAliases["acme"])
	}
	if v.CompanyAliases["kajaria"] != "Kajaria Ceramics Ltd" {
		t.Errorf("kajaria = %q, want override to replace embedded entry", v.CompanyAliases["kajaria"])
	}
	if v.CompanyAliases["bajaj"] != "Bajaj" {
		t.Error("embedded entries should survive an override")
	}
	if len(v.ParameterPatterns) == 0 {
		t.Error("parameter patterns should carry over from embedded vocab")
	}
}

func TestVocabStore_BadOverrideKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overrides.yaml")
	if err := os.WriteFile(path, []byte(":\tnot yaml"), 0o644); err != nil {
		t.Fatalf("writing override file: %v", err)
	}

	store := NewVocabStore()
	before := store.Current()

	if err := store.ApplyOverrides(path); err == nil {
		t.Fatal("expected parse error")
	}
	if store.Current() != before {
		t.Error("failed override should not replace the active vocabulary")
	}
}

func TestVocabStore_WatchPicksUpChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overrides.yaml")
	if err := os.WriteFile(path, []byte("company_aliases:\n  tata: \"Tata Motors\"\n"), 0o644); err != nil {
		t.Fatalf("writing override file: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewVocabStore()
	if err := store.Watch(ctx, path); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	if store.Current().CompanyAliases["tata"] != "Tata Motors" {
		t.Fatal("initial overrides not applied")
	}

	if err := os.WriteFile(path, []byte("company_aliases:\n  tata: \"Tata Steel\"\n"), 0o644); err != nil {
		t.Fatalf("rewriting override file: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		if store.Current().CompanyAliases["tata"] == "Tata Steel" {
			return
		}
		select {
		case <-deadline:
			t.Fatal("watcher did not apply updated overrides in time")
		case <-time.After(20 * time.Millisecond):
		}
	}
}
