// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Flo License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/nishisan-dev/flo/internal/cache"
	"github.com/nishisan-dev/flo/internal/event"
	"github.com/nishisan-dev/flo/internal/protocol"
	"github.com/nishisan-dev/flo/internal/store"
)

// Estados de assinatura de uma conexão.
type consumeState int

const (
	stateNotConsuming consumeState = iota
	stateFromCache
	stateFromDisk
)

// consumerClient é o estado de assinatura por conexão: o marker (último id
// entregue) e de onde a entrega está vindo no momento.
type consumerClient struct {
	connect  ClientConnect
	position event.EventId
	state    consumeState

	// subscribed marca que a conexão já enviou FLO_CNS ao menos uma vez.
	// Conexões que nunca assinaram não entram no broadcast.
	subscribed bool
}

// ConsumerManager é o ator dono do cache e do estado de assinatura de todas
// as conexões. Entrega eventos do cache quando a faixa pedida é residente, ou
// dispara um disk reader em background que devolve os eventos pela própria
// inbox do manager (canal cíclico: readers seguram um clone do sender e morrem
// sozinhos quando terminam).
type ConsumerManager struct {
	reader *store.LogReader
	cache  *cache.Cache

	inbox   chan ConsumerMessage
	clients map[ConnectionId]*consumerClient
	logger  *slog.Logger

	delivered   atomic.Int64
	clientCount atomic.Int64
}

// NewConsumerManager cria o manager sobre o reader e o cache informados.
func NewConsumerManager(reader *store.LogReader, c *cache.Cache, logger *slog.Logger) *ConsumerManager {
	return &ConsumerManager{
		reader:  reader,
		cache:   c,
		inbox:   make(chan ConsumerMessage, inboxSize),
		clients: make(map[ConnectionId]*consumerClient),
		logger:  logger.With("component", "consumer"),
	}
}

// Inbox retorna o canal de entrada do manager.
func (m *ConsumerManager) Inbox() chan<- ConsumerMessage {
	return m.inbox
}

// Run drena a inbox até o context ser cancelado.
func (m *ConsumerManager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-m.inbox:
			m.process(ctx, msg)
		}
	}
}

func (m *ConsumerManager) process(ctx context.Context, msg ConsumerMessage) {
	switch msg := msg.(type) {
	case ClientConnect:
		m.clients[msg.ConnectionId] = &consumerClient{connect: msg}
		m.clientCount.Store(int64(len(m.clients)))
	case ClientDisconnect:
		delete(m.clients, msg.ConnectionId)
		m.clientCount.Store(int64(len(m.clients)))
	case StartConsuming:
		m.startConsuming(ctx, msg.ConnectionId, msg.MaxEvents)
	case ContinueConsuming:
		// O reader terminou antes do limite. Reavalia do marker atual: os
		// eventos mais novos podem agora estar no cache.
		if client, ok := m.clients[msg.ConnectionId]; ok {
			client.state = stateNotConsuming
			if msg.Remaining > 0 {
				m.startConsuming(ctx, msg.ConnectionId, msg.Remaining)
			} else {
				// Orçamento de max_events esgotado no caminho de disco.
				client.subscribed = false
			}
		}
	case EventLoaded:
		m.deliverLoaded(msg.ConnectionId, msg.Event)
	case ReaderError:
		// Política: loga e larga o client em NotConsuming no último id
		// entregue; um novo FLO_CNS tenta de novo.
		m.logger.Error("disk reader failed",
			"connection_id", msg.ConnectionId,
			"error", msg.Err,
		)
		if client, ok := m.clients[msg.ConnectionId]; ok {
			client.state = stateNotConsuming
		}
	case EventPersisted:
		m.broadcast(msg.Event)
	}
}

func (m *ConsumerManager) startConsuming(ctx context.Context, conn ConnectionId, limit uint64) {
	client, ok := m.clients[conn]
	if !ok {
		m.logger.Warn("start consuming from unknown connection", "connection_id", conn)
		return
	}
	if client.state != stateNotConsuming {
		// Já existe um catch-up em andamento para esta conexão.
		m.logger.Debug("ignoring start consuming while catch-up is in flight",
			"connection_id", conn)
		return
	}

	client.subscribed = true
	if limit == 0 {
		return
	}

	start := client.position
	if start.Less(m.cache.LastEvictedId()) {
		// Parte da faixa já saiu do cache: catch-up pelo disco.
		client.state = stateFromDisk
		m.spawnDiskReader(ctx, conn, start, limit)
		return
	}

	// Faixa inteira servível da memória.
	client.state = stateFromCache
	sent := uint64(0)
	m.cache.DoWithRange(start, clampLimit(limit), func(ev *event.Event) bool {
		if err := client.connect.Outbound.Send(&protocol.EventDelivery{Event: ev}); err != nil {
			m.drop(conn, err)
			return false
		}
		client.position = ev.Id
		m.delivered.Add(1)
		sent++
		return true
	})

	if _, alive := m.clients[conn]; alive {
		client.state = stateNotConsuming
		if sent >= limit {
			// Orçamento de max_events esgotado: a assinatura termina aqui e
			// um novo FLO_CNS recomeça do marker atual.
			client.subscribed = false
		}
		// Senão, o cache acabou antes do limite: eventos novos chegam via
		// broadcast.
	}
}

// spawnDiskReader tira o snapshot do índice e itera o log numa task própria,
// devolvendo cada evento pela inbox do manager.
func (m *ConsumerManager) spawnDiskReader(ctx context.Context, conn ConnectionId, start event.EventId, limit uint64) {
	iter := m.reader.LoadRange(start, clampLimit(limit))

	go func() {
		defer iter.Close()

		sent := uint64(0)
		lastId := start
		for {
			ev, err := iter.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				m.selfSend(ctx, ReaderError{ConnectionId: conn, Err: err})
				return
			}
			lastId = ev.Id
			if !m.selfSend(ctx, EventLoaded{ConnectionId: conn, Event: ev}) {
				return
			}
			sent++
		}

		// Sempre devolve a continuação: com Remaining 0 ela só encerra o
		// estado ConsumingFromDisk; com saldo, o manager reavalia — na hora
		// do processamento os eventos mais novos podem já estar no cache.
		m.selfSend(ctx, ContinueConsuming{
			ConnectionId: conn,
			LastId:       lastId,
			Remaining:    limit - sent,
		})
	}()
}

// clampLimit converte o limite do wire para int sem overflow.
func clampLimit(limit uint64) int {
	const maxChunk = 1 << 30
	if limit > maxChunk {
		return maxChunk
	}
	return int(limit)
}

// selfSend envia uma mensagem de continuação para a própria inbox.
func (m *ConsumerManager) selfSend(ctx context.Context, msg ConsumerMessage) bool {
	select {
	case m.inbox <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

func (m *ConsumerManager) deliverLoaded(conn ConnectionId, ev *event.Event) {
	client, ok := m.clients[conn]
	if !ok {
		return
	}
	if err := client.connect.Outbound.Send(&protocol.EventDelivery{Event: ev}); err != nil {
		m.drop(conn, err)
		return
	}
	client.position = ev.Id
	m.delivered.Add(1)
}

// broadcast insere o evento no cache e entrega a todo client parado em
// NotConsuming com marker atrás do evento. Clients no meio de um catch-up
// (cache ou disco) não recebem direto: o pipeline em voo deles alcança o
// evento naturalmente e eles voltam a NotConsuming quando emparelham.
func (m *ConsumerManager) broadcast(ev *event.Event) {
	shared := m.cache.Insert(ev)

	for conn, client := range m.clients {
		if !client.subscribed || client.state != stateNotConsuming || !client.position.Less(shared.Id) {
			continue
		}
		if err := client.connect.Outbound.Send(&protocol.EventDelivery{Event: shared}); err != nil {
			m.drop(conn, err)
			continue
		}
		client.position = shared.Id
		m.delivered.Add(1)
	}
}

func (m *ConsumerManager) drop(conn ConnectionId, err error) {
	m.logger.Debug("dropping consumer client", "connection_id", conn, "error", err)
	delete(m.clients, conn)
	m.clientCount.Store(int64(len(m.clients)))
}

// Delivered retorna o total de eventos entregues a consumers.
func (m *ConsumerManager) Delivered() int64 {
	return m.delivered.Load()
}

// Clients retorna o número de conexões registradas.
func (m *ConsumerManager) Clients() int {
	return int(m.clientCount.Load())
}
