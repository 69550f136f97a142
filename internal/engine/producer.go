// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Flo License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package engine

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/nishisan-dev/flo/internal/event"
	"github.com/nishisan-dev/flo/internal/protocol"
	"github.com/nishisan-dev/flo/internal/store"
)

// producerClient é o estado que o producer manager guarda por conexão.
type producerClient struct {
	connect   ClientConnect
	namespace string
}

// ProducerManager serializa toda mutação de escrita: atribui o counter do
// evento, persiste, e repassa ao consumer manager para fan-out. Processa as
// mensagens em ordem de chegada e nunca cede entre persistir um evento e
// publicá-lo, então dois produces bem-sucedidos sempre saem com counters
// estritamente crescentes e chegam ao consumer manager nessa ordem.
type ProducerManager struct {
	actorId        event.ActorId
	store          *store.Store
	highestCounter event.EventCounter
	defaultNs      string

	inbox      chan ProducerMessage
	consumerCh chan<- ConsumerMessage
	clients    map[ConnectionId]*producerClient
	logger     *slog.Logger

	produced atomic.Int64
	failed   atomic.Int64
}

// NewProducerManager cria o manager. highestCounter vem do recovery do store:
// o primeiro evento novo recebe greatest_persisted_counter + 1.
func NewProducerManager(s *store.Store, consumerCh chan<- ConsumerMessage, actorId event.ActorId, defaultNs string, logger *slog.Logger) *ProducerManager {
	return &ProducerManager{
		actorId:        actorId,
		store:          s,
		highestCounter: s.HighestCounter(actorId),
		defaultNs:      defaultNs,
		inbox:          make(chan ProducerMessage, inboxSize),
		consumerCh:     consumerCh,
		clients:        make(map[ConnectionId]*producerClient),
		logger:         logger.With("component", "producer"),
	}
}

// Inbox retorna o canal de entrada do manager.
func (m *ProducerManager) Inbox() chan<- ProducerMessage {
	return m.inbox
}

// Run drena a inbox até o context ser cancelado. Deve rodar numa única
// goroutine: ela é a dona exclusiva do estado mutável do manager.
func (m *ProducerManager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-m.inbox:
			m.process(ctx, msg)
		}
	}
}

func (m *ProducerManager) process(ctx context.Context, msg ProducerMessage) {
	switch msg := msg.(type) {
	case ClientConnect:
		m.clients[msg.ConnectionId] = &producerClient{
			connect:   msg,
			namespace: m.defaultNs,
		}
	case ClientDisconnect:
		delete(m.clients, msg.ConnectionId)
	case SetNamespace:
		if client, ok := m.clients[msg.ConnectionId]; ok {
			client.namespace = msg.Namespace
			m.logger.Debug("client namespace set",
				"connection_id", msg.ConnectionId,
				"namespace", msg.Namespace,
				"username", msg.Username,
			)
		}
	case Produce:
		m.produceEvent(ctx, msg)
	}
}

func (m *ProducerManager) produceEvent(ctx context.Context, msg Produce) {
	client, ok := m.clients[msg.ConnectionId]
	if !ok {
		m.logger.Warn("produce from unknown connection", "connection_id", msg.ConnectionId)
		return
	}

	namespace := msg.Namespace
	if namespace == "" {
		namespace = client.namespace
	}

	counter := m.highestCounter + 1
	id := event.NewEventId(m.actorId, counter)
	ev := event.NewEvent(id, namespace, msg.Data)

	if _, err := m.store.Append(ev); err != nil {
		// Falha de persistência: nada avança e nada é publicado; o retry é
		// responsabilidade do client.
		m.failed.Add(1)
		m.logger.Error("event persistence failed",
			"connection_id", msg.ConnectionId,
			"op_id", msg.OpId,
			"error", err,
		)
		m.sendToClient(msg.ConnectionId, &protocol.ErrorMessage{
			OpId:        msg.OpId,
			Kind:        protocol.ErrorKindPersistenceFailure,
			Description: err.Error(),
		})
		return
	}

	m.highestCounter = counter
	m.produced.Add(1)

	// Ack antes do fan-out: o producer vê a confirmação antes de qualquer
	// outro consumer receber o broadcast correspondente.
	m.sendToClient(msg.ConnectionId, &protocol.EventAck{OpId: msg.OpId, EventId: id})

	select {
	case m.consumerCh <- EventPersisted{Event: ev}:
	case <-ctx.Done():
	}
}

func (m *ProducerManager) sendToClient(conn ConnectionId, msg protocol.ServerMessage) {
	client, ok := m.clients[conn]
	if !ok {
		return
	}
	if err := client.connect.Outbound.Send(msg); err != nil {
		m.logger.Debug("dropping producer client", "connection_id", conn, "error", err)
		delete(m.clients, conn)
	}
}

// Produced retorna o total de eventos persistidos com sucesso.
func (m *ProducerManager) Produced() int64 {
	return m.produced.Load()
}

// Failed retorna o total de produces que falharam na persistência.
func (m *ProducerManager) Failed() int64 {
	return m.failed.Load()
}
