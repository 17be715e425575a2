// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rag

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryEvictsOldestAtDefaultLimit(t *testing.T) {
	h := NewHistory(0)

	for i := 0; i < 21; i++ {
		h.Append(HistoryEntry{Question: fmt.Sprintf("q%d", i)})
	}

	entries := h.List()
	require.Len(t, entries, 20)
	assert.Equal(t, "q1", entries[0].Question)
	assert.Equal(t, "q20", entries[19].Question)
}

func TestHistoryListReturnsCopy(t *testing.T) {
	h := NewHistory(5)
	h.Append(HistoryEntry{Question: "original"})

	entries := h.List()
	entries[0].Question = "mutated"

	assert.Equal(t, "original", h.List()[0].Question)
}

func TestHistoryClear(t *testing.T) {
	h := NewHistory(5)
	h.Append(HistoryEntry{Question: "q"})
	require.Equal(t, 1, h.Len())

	h.Clear()

	assert.Zero(t, h.Len())
	assert.Empty(t, h.List())
}

func TestHistoryConcurrentAppends(t *testing.T) {
	h := NewHistory(8)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h.Append(HistoryEntry{Question: fmt.Sprintf("q%d", i)})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 8, h.Len())
}
