// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Flo License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package cache mantém os eventos mais recentes residentes em memória para
// fan-out e catch-up sem tocar o disco.
package cache

import (
	"sync"

	"github.com/nishisan-dev/flo/internal/event"
)

// Stats contém métricas instantâneas do cache.
type Stats struct {
	Entries       int
	UsedBytes     int64
	MaxEvents     int
	CapacityBytes int64
	TotalInserted int64
	TotalEvicted  int64
	LastEvictedId event.EventId
}

type cacheEntry struct {
	id    event.EventId
	event *event.Event
}

// Cache é um FIFO limitado por número de entradas e por orçamento de bytes
// (soma dos payloads residentes). No insert, evicta do lado mais antigo até
// os dois limites valerem.
//
// O cache guarda o id do último evento evictado: uma consulta cujo start
// seja < last_evicted_id precisa cair para o disco. Com start >=
// last_evicted_id a faixa pedida inteira é servível da memória: a eviction é
// FIFO em ordem de id, então todo id > last_evicted_id continua residente.
//
// Eventos são compartilhados como referências imutáveis: o cache segura a
// cópia canônica até a eviction; referências ainda em filas de saída mantêm
// o evento vivo até o último consumer drenar.
type Cache struct {
	mu sync.RWMutex

	entries []cacheEntry
	head    int

	maxEvents int
	maxBytes  int64
	usedBytes int64

	lastEvicted event.EventId

	totalInserted int64
	totalEvicted  int64
}

// New cria um cache com os limites informados. Valores <= 0 significam
// "sem limite" naquele eixo.
func New(maxEvents int, maxBytes int64) *Cache {
	if maxEvents <= 0 {
		maxEvents = int(^uint(0) >> 1)
	}
	if maxBytes <= 0 {
		maxBytes = int64(^uint64(0) >> 1)
	}
	return &Cache{
		maxEvents: maxEvents,
		maxBytes:  maxBytes,
	}
}

// Insert torna o evento residente e retorna a referência compartilhada usada
// no fan-out. Os inserts chegam do producer em ordem crescente de id.
func (c *Cache) Insert(ev *event.Event) *event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = append(c.entries, cacheEntry{id: ev.Id, event: ev})
	c.usedBytes += int64(len(ev.Data))
	c.totalInserted++

	for c.len() > 0 && (c.len() > c.maxEvents || c.usedBytes > c.maxBytes) {
		c.evictOldest()
	}

	return ev
}

// evictOldest descarta a entrada mais antiga. Deve ser chamada com o lock.
func (c *Cache) evictOldest() {
	entry := c.entries[c.head]
	c.entries[c.head] = cacheEntry{}
	c.head++
	c.usedBytes -= int64(len(entry.event.Data))
	c.lastEvicted = entry.id
	c.totalEvicted++

	if c.head == len(c.entries) {
		c.entries = c.entries[:0]
		c.head = 0
	} else if c.head > len(c.entries)/2 && c.head > 64 {
		c.entries = append(c.entries[:0], c.entries[c.head:]...)
		c.head = 0
	}
}

// DoWithRange chama fn para até limit eventos residentes, em ordem de id,
// cujo id seja estritamente maior que start. fn retorna false para
// interromper. Retorna quantos eventos foram visitados.
func (c *Cache) DoWithRange(start event.EventId, limit int, fn func(*event.Event) bool) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	visited := 0
	for i := c.findFirstGreater(start); i < len(c.entries) && visited < limit; i++ {
		visited++
		if !fn(c.entries[i].event) {
			break
		}
	}
	return visited
}

// findFirstGreater retorna a posição da primeira entrada com id > start.
// Deve ser chamada com o lock; as entradas são ordenadas por id.
func (c *Cache) findFirstGreater(start event.EventId) int {
	lo, hi := c.head, len(c.entries)
	for lo < hi {
		mid := (lo + hi) / 2
		if start.Less(c.entries[mid].id) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// Prime define o piso de last_evicted_id no boot: tudo que já estava em
// disco antes do processo subir conta como evictado, então catch-ups que
// começam atrás disso caem para o disco.
func (c *Cache) Prime(id event.EventId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastEvicted.Less(id) {
		c.lastEvicted = id
	}
}

// LastEvictedId retorna o id do evento evictado mais recentemente, (0,0) se
// nada foi evictado ainda. Monotônico não-decrescente.
func (c *Cache) LastEvictedId() event.EventId {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastEvicted
}

// Len retorna o número de eventos residentes.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.len()
}

func (c *Cache) len() int {
	return len(c.entries) - c.head
}

// Stats retorna um snapshot das métricas do cache.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Entries:       c.len(),
		UsedBytes:     c.usedBytes,
		MaxEvents:     c.maxEvents,
		CapacityBytes: c.maxBytes,
		TotalInserted: c.totalInserted,
		TotalEvicted:  c.totalEvicted,
		LastEvictedId: c.lastEvicted,
	}
}
