// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Flo License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package store

import (
	"sort"
	"sync"

	"github.com/nishisan-dev/flo/internal/event"
)

// IndexEntry mapeia um EventId para o offset do registro no arquivo de eventos.
type IndexEntry struct {
	Id     event.EventId
	Offset int64
}

// EventIndex é um índice ordenado e limitado: quando a capacidade é atingida,
// a entrada de menor id é descartada. As entradas chegam em ordem
// estritamente crescente de id (garantido pelo producer manager), então
// buscas são binárias.
//
// O producer segura o lock exclusivo para Add; leitores usam o modo shared e
// copiam a entrada necessária antes de soltar.
type EventIndex struct {
	mu      sync.RWMutex
	entries []IndexEntry
	head    int
	max     int
}

// NewEventIndex cria um índice com a capacidade máxima informada.
// maxEvents <= 0 significa sem limite.
func NewEventIndex(maxEvents int) *EventIndex {
	if maxEvents <= 0 {
		maxEvents = int(^uint(0) >> 1)
	}
	return &EventIndex{max: maxEvents}
}

// Add insere uma entrada. Se o índice está cheio, descarta e retorna a
// entrada de menor id.
func (idx *EventIndex) Add(id event.EventId, offset int64) (IndexEntry, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.entries = append(idx.entries, IndexEntry{Id: id, Offset: offset})

	var dropped IndexEntry
	evicted := false
	if idx.len() > idx.max {
		dropped = idx.entries[idx.head]
		idx.entries[idx.head] = IndexEntry{}
		idx.head++
		evicted = true

		if idx.head == len(idx.entries) {
			idx.entries = idx.entries[:0]
			idx.head = 0
		} else if idx.head > len(idx.entries)/2 && idx.head > 64 {
			idx.entries = append(idx.entries[:0], idx.entries[idx.head:]...)
			idx.head = 0
		}
	}

	return dropped, evicted
}

// NextEntry retorna a entrada de menor id estritamente maior que after.
// O sentinel (0,0) significa "primeira entrada".
func (idx *EventIndex) NextEntry(after event.EventId) (IndexEntry, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.len() == 0 {
		return IndexEntry{}, false
	}

	live := idx.entries[idx.head:]
	pos := sort.Search(len(live), func(i int) bool {
		return after.Less(live[i].Id)
	})
	if pos == len(live) {
		return IndexEntry{}, false
	}
	return live[pos], true
}

// GreatestEventId retorna o maior id indexado, ou (0,0) se vazio.
func (idx *EventIndex) GreatestEventId() event.EventId {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.len() == 0 {
		return event.ZeroEventId
	}
	return idx.entries[len(idx.entries)-1].Id
}

// Len retorna o número de entradas indexadas.
func (idx *EventIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.len()
}

func (idx *EventIndex) len() int {
	return len(idx.entries) - idx.head
}
