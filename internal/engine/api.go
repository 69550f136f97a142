// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Flo License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package engine implementa o coração do flo: dois managers estilo ator — o
// producer serializa escritas e o consumer mantém o estado de assinatura por
// conexão — acoplados por channels. Cada manager é uma única goroutine dona
// exclusiva do seu estado mutável, drenando uma inbox FIFO.
package engine

import (
	"errors"
	"time"

	"github.com/nishisan-dev/flo/internal/event"
	"github.com/nishisan-dev/flo/internal/protocol"
)

// ConnectionId identifica uma conexão TCP de forma única no processo.
type ConnectionId = uint64

// inboxSize é a capacidade das inboxes dos managers.
const inboxSize = 1024

// clientSendTimeout é o tempo máximo de espera por espaço na fila de saída de
// uma conexão. Estourou: o client é tratado como slow consumer e removido.
const clientSendTimeout = 5 * time.Second

// ErrClientGone sinaliza que a fila de saída da conexão foi fechada ou não
// drenou a tempo.
var ErrClientGone = errors.New("engine: client disconnected")

// Outbound é a fila de mensagens Server → Client de uma conexão. O front-end
// da conexão drena C e escreve os frames no socket; Close derruba a fila e
// faz qualquer Send subsequente falhar com ErrClientGone.
type Outbound struct {
	C    chan protocol.ServerMessage
	done chan struct{}
}

// NewOutbound cria uma fila de saída com a capacidade informada.
func NewOutbound(capacity int) *Outbound {
	return &Outbound{
		C:    make(chan protocol.ServerMessage, capacity),
		done: make(chan struct{}),
	}
}

// Send enfileira uma mensagem preservando a ordem FIFO por conexão.
func (o *Outbound) Send(msg protocol.ServerMessage) error {
	select {
	case <-o.done:
		return ErrClientGone
	default:
	}

	select {
	case o.C <- msg:
		return nil
	case <-o.done:
		return ErrClientGone
	case <-time.After(clientSendTimeout):
		return ErrClientGone
	}
}

// Close derruba a fila. Não é idempotente: o front-end da conexão chama
// exatamente uma vez, no teardown.
func (o *Outbound) Close() {
	close(o.done)
}

// Done expõe o canal de teardown para os loops do front-end.
func (o *Outbound) Done() <-chan struct{} {
	return o.done
}

// ClientConnect registra uma nova conexão nos dois managers, antes de
// qualquer outro tráfego dela.
type ClientConnect struct {
	ConnectionId ConnectionId
	RemoteAddr   string
	Outbound     *Outbound
}

// ClientDisconnect remove a conexão dos dois managers.
type ClientDisconnect struct {
	ConnectionId ConnectionId
}

// ProducerMessage é o tipo das mensagens da inbox do producer manager.
type ProducerMessage interface {
	producerMessage()
}

// ConsumerMessage é o tipo das mensagens da inbox do consumer manager.
type ConsumerMessage interface {
	consumerMessage()
}

// Produce pede a publicação de um evento.
type Produce struct {
	ConnectionId ConnectionId
	OpId         uint32
	Namespace    string
	Data         []byte
}

// SetNamespace troca o namespace corrente da conexão (frame FLO_INI).
// As credenciais são registradas em log, nunca validadas.
type SetNamespace struct {
	ConnectionId ConnectionId
	Namespace    string
	Username     string
}

// StartConsuming inicia a entrega de eventos para a conexão a partir do
// marker atual dela.
type StartConsuming struct {
	ConnectionId ConnectionId
	MaxEvents    uint64
}

// ContinueConsuming é a continuação que o disk reader envia ao esgotar o
// iterator sem erro. Com Remaining 0 ela só encerra o estado
// ConsumingFromDisk; com saldo, o manager reavalia — na hora do processamento
// os eventos mais novos podem já estar no cache.
type ContinueConsuming struct {
	ConnectionId ConnectionId
	LastId       event.EventId
	Remaining    uint64
}

// EventLoaded entrega à conexão o próximo evento lido do disco.
type EventLoaded struct {
	ConnectionId ConnectionId
	Event        *event.Event
}

// ReaderError reporta uma falha de I/O de um disk reader.
type ReaderError struct {
	ConnectionId ConnectionId
	Err          error
}

// EventPersisted anuncia um evento recém persistido pelo producer, para
// insert no cache e broadcast.
type EventPersisted struct {
	Event *event.Event
}

func (ClientConnect) producerMessage()    {}
func (ClientDisconnect) producerMessage() {}
func (Produce) producerMessage()          {}
func (SetNamespace) producerMessage()     {}

func (ClientConnect) consumerMessage()     {}
func (ClientDisconnect) consumerMessage()  {}
func (StartConsuming) consumerMessage()    {}
func (ContinueConsuming) consumerMessage() {}
func (EventLoaded) consumerMessage()       {}
func (ReaderError) consumerMessage()       {}
func (EventPersisted) consumerMessage()    {}
