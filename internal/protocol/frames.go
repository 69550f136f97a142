// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Flo License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package protocol implementa o protocolo binário flo para comunicação entre
// client e server sobre TCP. Toda mensagem começa com uma tag ASCII de 8 bytes
// terminada em '\n'; inteiros multi-byte são big-endian; strings são UTF-8
// terminadas em '\n'.
package protocol

import (
	"errors"

	"github.com/nishisan-dev/flo/internal/event"
)

// Tags de 8 bytes que identificam cada frame no wire.
var (
	TagClientAuth = [8]byte{'F', 'L', 'O', '_', 'I', 'N', 'I', '\n'}
	TagProduce    = [8]byte{'F', 'L', 'O', '_', 'P', 'R', 'O', '\n'}
	TagConsume    = [8]byte{'F', 'L', 'O', '_', 'C', 'N', 'S', '\n'}
	TagAck        = [8]byte{'F', 'L', 'O', '_', 'A', 'C', 'K', '\n'}
	TagEvent      = [8]byte{'F', 'L', 'O', '_', 'E', 'V', 'T', '\n'}
	TagError      = [8]byte{'F', 'L', 'O', '_', 'E', 'R', 'R', '\n'}
)

// TagSize é o tamanho da tag que abre todo frame.
const TagSize = 8

// BufferSize é o tamanho do buffer de leitura do FrameReader. Todos os campos
// de header de um frame (tudo exceto o payload de dados) precisam caber nele.
const BufferSize = 8 * 1024

// Error kinds do frame FLO_ERR (Server → Client).
const (
	ErrorKindPersistenceFailure byte = 0x01
)

// Erros do protocolo.
var (
	ErrInvalidMagic  = errors.New("protocol: invalid frame tag")
	ErrFrameTooLarge = errors.New("protocol: frame header exceeds buffer size")
	ErrTruncated     = errors.New("protocol: truncated frame")

	// errIncomplete sinaliza internamente que o parser precisa de mais bytes.
	errIncomplete = errors.New("protocol: incomplete frame")
)

// ClientMessage é uma mensagem Client → Server já decodificada.
type ClientMessage interface {
	clientMessage()
}

// ServerMessage é uma mensagem Server → Client já decodificada.
type ServerMessage interface {
	serverMessage()
}

// ClientAuth transporta namespace e credenciais (frame FLO_INI).
// As credenciais são transportadas mas não validadas.
type ClientAuth struct {
	Namespace string
	Username  string
	Password  string
}

// ProduceEvent é o pedido de publicação de um evento (frame FLO_PRO).
// O parser devolve o header com Data pré-alocado (len 0, cap data_len);
// o FrameReader completa o payload em streaming.
type ProduceEvent struct {
	OpId      uint32
	Namespace string
	Data      []byte
}

// StartConsuming inicia o streaming de eventos a partir do marker atual da
// conexão (frame FLO_CNS).
type StartConsuming struct {
	MaxEvents uint64
}

// EventAck confirma a persistência de um produce (frame FLO_ACK).
type EventAck struct {
	OpId    uint32
	EventId event.EventId
}

// EventDelivery entrega um evento a um consumer (frame FLO_EVT).
type EventDelivery struct {
	Event *event.Event
}

// ErrorMessage reporta uma falha de operação ao client (frame FLO_ERR).
type ErrorMessage struct {
	OpId        uint32
	Kind        byte
	Description string
}

func (*ClientAuth) clientMessage()     {}
func (*ProduceEvent) clientMessage()   {}
func (*StartConsuming) clientMessage() {}

func (*EventAck) serverMessage()      {}
func (*EventDelivery) serverMessage() {}
func (*ErrorMessage) serverMessage()  {}
