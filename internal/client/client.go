// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Flo License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package client implementa um client síncrono do flo: produz eventos e
// consome o stream sobre uma conexão TCP, com read timeout nas respostas.
package client

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/nishisan-dev/flo/internal/event"
	"github.com/nishisan-dev/flo/internal/protocol"
)

// readTimeout é o tempo máximo de espera por uma resposta do server.
const readTimeout = 10 * time.Second

// ErrProduceFailed sinaliza que o server respondeu um produce com FLO_ERR.
var ErrProduceFailed = errors.New("client: produce failed")

// Client é uma conexão síncrona com o flo-server. Não é seguro para uso
// concorrente: cada goroutine deve abrir a própria conexão.
type Client struct {
	conn   net.Conn
	reader *protocol.FrameReader
	nextOp uint32
}

// Dial conecta ao server no endereço informado.
func Dial(addr string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, readTimeout)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return NewClient(conn), nil
}

// NewClient monta um client sobre uma conexão já estabelecida.
func NewClient(conn net.Conn) *Client {
	return &Client{
		conn:   conn,
		reader: protocol.NewFrameReader(conn),
	}
}

// SetNamespace envia FLO_INI trocando o namespace corrente da conexão.
// Credenciais são transportadas, não validadas pelo server.
func (c *Client) SetNamespace(namespace, username, password string) error {
	return protocol.WriteClientAuth(c.conn, namespace, username, password)
}

// Produce publica um evento e bloqueia até o ack de durabilidade.
// Retorna o EventId atribuído pelo server.
func (c *Client) Produce(namespace string, data []byte) (event.EventId, error) {
	c.nextOp++
	opId := c.nextOp

	if err := protocol.WriteProduce(c.conn, opId, namespace, data); err != nil {
		return event.ZeroEventId, err
	}

	msg, err := c.readResponse()
	if err != nil {
		return event.ZeroEventId, err
	}

	switch msg := msg.(type) {
	case *protocol.EventAck:
		if msg.OpId != opId {
			return event.ZeroEventId, fmt.Errorf("client: ack for op %d, expected %d", msg.OpId, opId)
		}
		return msg.EventId, nil
	case *protocol.ErrorMessage:
		return event.ZeroEventId, fmt.Errorf("%w: kind %d: %s", ErrProduceFailed, msg.Kind, msg.Description)
	default:
		return event.ZeroEventId, fmt.Errorf("client: unexpected response %T to produce", msg)
	}
}

// Consume envia FLO_CNS e entrega até maxEvents eventos para fn, bloqueando
// entre eventos até o read timeout. fn retorna false para parar antes.
func (c *Client) Consume(maxEvents uint64, fn func(*event.Event) bool) error {
	if err := protocol.WriteConsume(c.conn, maxEvents); err != nil {
		return err
	}

	for received := uint64(0); received < maxEvents; received++ {
		msg, err := c.readResponse()
		if err != nil {
			return err
		}
		delivery, ok := msg.(*protocol.EventDelivery)
		if !ok {
			return fmt.Errorf("client: unexpected message %T in event stream", msg)
		}
		if !fn(delivery.Event) {
			return nil
		}
	}
	return nil
}

// NextEvent lê um único evento do stream, para consumers que já enviaram
// FLO_CNS via Consume e querem controle manual do loop.
func (c *Client) NextEvent() (*event.Event, error) {
	msg, err := c.readResponse()
	if err != nil {
		return nil, err
	}
	delivery, ok := msg.(*protocol.EventDelivery)
	if !ok {
		return nil, fmt.Errorf("client: unexpected message %T in event stream", msg)
	}
	return delivery.Event, nil
}

func (c *Client) readResponse() (protocol.ServerMessage, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		return nil, fmt.Errorf("setting read deadline: %w", err)
	}
	msg, err := c.reader.ReadServerMessage()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("reading server message: %w", err)
	}
	return msg, nil
}

// Close encerra a conexão.
func (c *Client) Close() error {
	return c.conn.Close()
}
