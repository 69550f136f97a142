// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Flo License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package cache

import (
	"bytes"
	"testing"

	"github.com/nishisan-dev/flo/internal/event"
)

func newEvent(counter uint64, data string) *event.Event {
	return event.NewEvent(event.NewEventId(1, counter), "/ns", []byte(data))
}

func collectRange(c *Cache, start event.EventId, limit int) []event.EventId {
	var ids []event.EventId
	c.DoWithRange(start, limit, func(ev *event.Event) bool {
		ids = append(ids, ev.Id)
		return true
	})
	return ids
}

func TestCache_InsertAndRange(t *testing.T) {
	c := New(10, 0)
	for i := uint64(1); i <= 5; i++ {
		c.Insert(newEvent(i, "data"))
	}

	ids := collectRange(c, event.ZeroEventId, 100)
	if len(ids) != 5 || ids[0] != event.NewEventId(1, 1) || ids[4] != event.NewEventId(1, 5) {
		t.Errorf("range from zero = %v", ids)
	}

	ids = collectRange(c, event.NewEventId(1, 3), 100)
	if len(ids) != 2 || ids[0] != event.NewEventId(1, 4) {
		t.Errorf("range from (1,3) = %v", ids)
	}

	ids = collectRange(c, event.ZeroEventId, 2)
	if len(ids) != 2 || ids[1] != event.NewEventId(1, 2) {
		t.Errorf("limited range = %v", ids)
	}
}

func TestCache_EvictsByEntryCount(t *testing.T) {
	c := New(3, 0)
	for i := uint64(1); i <= 5; i++ {
		c.Insert(newEvent(i, "x"))
	}

	if got := c.Len(); got != 3 {
		t.Errorf("Len = %d, want 3", got)
	}
	if got := c.LastEvictedId(); got != event.NewEventId(1, 2) {
		t.Errorf("LastEvictedId = %v, want (1,2)", got)
	}

	ids := collectRange(c, event.ZeroEventId, 100)
	if len(ids) != 3 || ids[0] != event.NewEventId(1, 3) {
		t.Errorf("resident ids = %v", ids)
	}
}

func TestCache_EvictsByByteBudget(t *testing.T) {
	// Orçamento de 10 bytes; cada evento tem payload de 4 bytes.
	c := New(0, 10)
	c.Insert(newEvent(1, "aaaa"))
	c.Insert(newEvent(2, "bbbb"))
	if got := c.LastEvictedId(); !got.IsZero() {
		t.Fatalf("no eviction expected yet, got %v", got)
	}

	// 12 bytes > 10: evicta o mais antigo.
	c.Insert(newEvent(3, "cccc"))
	if got := c.LastEvictedId(); got != event.NewEventId(1, 1) {
		t.Errorf("LastEvictedId = %v, want (1,1)", got)
	}
	if got := c.Stats().UsedBytes; got != 8 {
		t.Errorf("UsedBytes = %d, want 8", got)
	}
}

func TestCache_OversizedEventIsEvictedImmediately(t *testing.T) {
	c := New(0, 4)
	c.Insert(newEvent(1, "way bigger than the budget"))

	if got := c.Len(); got != 0 {
		t.Errorf("Len = %d, want 0", got)
	}
	// O próprio evento vira o last_evicted: consultas caem para o disco.
	if got := c.LastEvictedId(); got != event.NewEventId(1, 1) {
		t.Errorf("LastEvictedId = %v, want (1,1)", got)
	}
}

func TestCache_LastEvictedIsMonotonic(t *testing.T) {
	c := New(2, 0)
	var prev event.EventId
	for i := uint64(1); i <= 20; i++ {
		c.Insert(newEvent(i, "data"))
		cur := c.LastEvictedId()
		if cur.Less(prev) {
			t.Fatalf("LastEvictedId went backwards: %v after %v", cur, prev)
		}
		prev = cur
	}
}

func TestCache_RangeStopsWhenFnReturnsFalse(t *testing.T) {
	c := New(10, 0)
	for i := uint64(1); i <= 5; i++ {
		c.Insert(newEvent(i, "x"))
	}

	var seen int
	c.DoWithRange(event.ZeroEventId, 100, func(*event.Event) bool {
		seen++
		return seen < 2
	})
	if seen != 2 {
		t.Errorf("visited %d events, want 2", seen)
	}
}

func TestCache_SharedReference(t *testing.T) {
	c := New(10, 0)
	ev := newEvent(1, "shared payload")
	ref := c.Insert(ev)

	if ref != ev {
		t.Error("Insert should return the same immutable reference")
	}

	var fromRange *event.Event
	c.DoWithRange(event.ZeroEventId, 1, func(e *event.Event) bool {
		fromRange = e
		return true
	})
	if fromRange != ev {
		t.Error("DoWithRange should hand out the same reference")
	}
	if !bytes.Equal(fromRange.Data, []byte("shared payload")) {
		t.Error("payload corrupted")
	}
}
