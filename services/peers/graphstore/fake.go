// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graphstore

import (
	"context"
	"strings"
	"sync"
)

// Call records one Query invocation against the Fake.
type Call struct {
	Cypher string
	Params map[string]any
}

type fakeRule struct {
	substr string
	rows   []map[string]any
	err    error
}

// Fake is a scripted in-memory Querier for tests.
//
// Description:
//
//	Rules are matched in registration order by substring against the
//	query text; the first match wins. Unmatched queries return the
//	default rows (empty unless SetDefault was called). Every call is
//	recorded for assertion, including its bound parameters, which is how
//	tests verify that literals travel through params instead of being
//	spliced into query text.
//
// Thread Safety: Fake is safe for concurrent use.
type Fake struct {
	mu          sync.Mutex
	rules       []fakeRule
	defaultRows []map[string]any
	defaultErr  error
	calls       []Call
}

// NewFake returns an empty Fake. All queries succeed with no rows until
// rules are added.
func NewFake() *Fake {
	return &Fake{}
}

// Stub makes queries containing substr return rows.
func (f *Fake) Stub(substr string, rows []map[string]any) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, fakeRule{substr: substr, rows: rows})
	return f
}

// StubErr makes queries containing substr fail with err.
func (f *Fake) StubErr(substr string, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, fakeRule{substr: substr, err: err})
	return f
}

// SetDefault sets the rows returned when no rule matches.
func (f *Fake) SetDefault(rows []map[string]any) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.defaultRows = rows
	return f
}

// SetDefaultErr makes every unmatched query fail with err.
func (f *Fake) SetDefaultErr(err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.defaultErr = err
	return f
}

// Query implements Querier.
func (f *Fake) Query(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Cypher: cypher, Params: params})

	lowered := strings.ToLower(cypher)
	for _, r := range f.rules {
		if strings.Contains(lowered, strings.ToLower(r.substr)) {
			if r.err != nil {
				return nil, r.err
			}
			return cloneRows(r.rows), nil
		}
	}
	if f.defaultErr != nil {
		return nil, f.defaultErr
	}
	return cloneRows(f.defaultRows), nil
}

// Calls returns a copy of every recorded invocation in order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// LastCall returns the most recent invocation, or a zero Call when none
// happened.
func (f *Fake) LastCall() Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return Call{}
	}
	return f.calls[len(f.calls)-1]
}

func cloneRows(rows []map[string]any) []map[string]any {
	if rows == nil {
		return nil
	}
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		m := make(map[string]any, len(row))
		for k, v := range row {
			m[k] = v
		}
		out[i] = m
	}
	return out
}
