// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Flo License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/nishisan-dev/flo/internal/event"
)

// O parser é incremental: recebe um buffer de bytes e devolve a mensagem
// decodificada mais quantos bytes foram consumidos. Quando o buffer não contém
// um frame completo, retorna errIncomplete sem consumir nada — o FrameReader
// lê mais bytes do socket e tenta de novo. Qualquer outra falha é um erro de
// parse definitivo e derruba a conexão.
//
// Para FLO_PRO e FLO_EVT o parse é em duas fases: aqui sai só o header, com o
// buffer de dados pré-alocado (len 0, cap data_len); o FrameReader completa o
// payload direto nesse buffer, em quantas leituras de socket forem necessárias.

// ParseClientMessage decodifica uma mensagem Client → Server do início de buf.
func ParseClientMessage(buf []byte) (ClientMessage, int, error) {
	if len(buf) < TagSize {
		return nil, 0, errIncomplete
	}

	var tag [8]byte
	copy(tag[:], buf[:TagSize])

	switch tag {
	case TagClientAuth:
		return parseClientAuth(buf[TagSize:])
	case TagProduce:
		return parseProduce(buf[TagSize:])
	case TagConsume:
		return parseConsume(buf[TagSize:])
	default:
		return nil, 0, fmt.Errorf("%w: %q", ErrInvalidMagic, buf[:TagSize])
	}
}

// ParseServerMessage decodifica uma mensagem Server → Client do início de buf.
func ParseServerMessage(buf []byte) (ServerMessage, int, error) {
	if len(buf) < TagSize {
		return nil, 0, errIncomplete
	}

	var tag [8]byte
	copy(tag[:], buf[:TagSize])

	switch tag {
	case TagAck:
		return parseAck(buf[TagSize:])
	case TagEvent:
		return parseEventHeader(buf[TagSize:])
	case TagError:
		return parseError(buf[TagSize:])
	default:
		return nil, 0, fmt.Errorf("%w: %q", ErrInvalidMagic, buf[:TagSize])
	}
}

// parseClientAuth lê: namespace '\n', username '\n', password '\n'.
func parseClientAuth(body []byte) (ClientMessage, int, error) {
	pos := 0
	namespace, pos, ok := takeLine(body, pos)
	if !ok {
		return nil, 0, errIncomplete
	}
	username, pos, ok := takeLine(body, pos)
	if !ok {
		return nil, 0, errIncomplete
	}
	password, pos, ok := takeLine(body, pos)
	if !ok {
		return nil, 0, errIncomplete
	}

	msg := &ClientAuth{
		Namespace: namespace,
		Username:  username,
		Password:  password,
	}
	return msg, TagSize + pos, nil
}

// parseProduce lê: op_id u32, namespace '\n', data_len u32.
// O payload não é consumido aqui (duas fases).
func parseProduce(body []byte) (ClientMessage, int, error) {
	if len(body) < 4 {
		return nil, 0, errIncomplete
	}
	opId := binary.BigEndian.Uint32(body[:4])

	namespace, pos, ok := takeLine(body, 4)
	if !ok {
		return nil, 0, errIncomplete
	}

	if len(body) < pos+4 {
		return nil, 0, errIncomplete
	}
	dataLen := binary.BigEndian.Uint32(body[pos : pos+4])
	pos += 4

	msg := &ProduceEvent{
		OpId:      opId,
		Namespace: namespace,
		Data:      make([]byte, 0, dataLen),
	}
	return msg, TagSize + pos, nil
}

// parseConsume lê: max_events u64.
func parseConsume(body []byte) (ClientMessage, int, error) {
	if len(body) < 8 {
		return nil, 0, errIncomplete
	}
	msg := &StartConsuming{MaxEvents: binary.BigEndian.Uint64(body[:8])}
	return msg, TagSize + 8, nil
}

// parseAck lê: op_id u32, actor u16, counter u64.
func parseAck(body []byte) (ServerMessage, int, error) {
	if len(body) < 14 {
		return nil, 0, errIncomplete
	}
	msg := &EventAck{
		OpId: binary.BigEndian.Uint32(body[:4]),
		EventId: event.NewEventId(
			binary.BigEndian.Uint16(body[4:6]),
			binary.BigEndian.Uint64(body[6:14]),
		),
	}
	return msg, TagSize + 14, nil
}

// parseEventHeader lê: actor u16, counter u64, namespace '\n', data_len u32.
// O payload não é consumido aqui (duas fases).
func parseEventHeader(body []byte) (ServerMessage, int, error) {
	if len(body) < 10 {
		return nil, 0, errIncomplete
	}
	actor := binary.BigEndian.Uint16(body[:2])
	counter := binary.BigEndian.Uint64(body[2:10])

	namespace, pos, ok := takeLine(body, 10)
	if !ok {
		return nil, 0, errIncomplete
	}

	if len(body) < pos+4 {
		return nil, 0, errIncomplete
	}
	dataLen := binary.BigEndian.Uint32(body[pos : pos+4])
	pos += 4

	msg := &EventDelivery{
		Event: &event.Event{
			Id:        event.NewEventId(actor, counter),
			Namespace: namespace,
			Data:      make([]byte, 0, dataLen),
		},
	}
	return msg, TagSize + pos, nil
}

// parseError lê: op_id u32, kind u8, description '\n'.
func parseError(body []byte) (ServerMessage, int, error) {
	if len(body) < 5 {
		return nil, 0, errIncomplete
	}
	opId := binary.BigEndian.Uint32(body[:4])
	kind := body[4]

	description, pos, ok := takeLine(body, 5)
	if !ok {
		return nil, 0, errIncomplete
	}

	msg := &ErrorMessage{OpId: opId, Kind: kind, Description: description}
	return msg, TagSize + pos, nil
}

// takeLine extrai uma string UTF-8 terminada em '\n' a partir de pos.
// Retorna a string sem o delimitador e a nova posição.
func takeLine(buf []byte, pos int) (string, int, bool) {
	if pos > len(buf) {
		return "", pos, false
	}
	idx := bytes.IndexByte(buf[pos:], '\n')
	if idx < 0 {
		return "", pos, false
	}
	return string(buf[pos : pos+idx]), pos + idx + 1, true
}

// pendingBody retorna o buffer de payload pré-alocado de mensagens em duas
// fases, ou nil quando a mensagem já está completa.
func pendingBody(msg any) []byte {
	switch m := msg.(type) {
	case *ProduceEvent:
		if cap(m.Data) > len(m.Data) {
			return m.Data
		}
	case *EventDelivery:
		if cap(m.Event.Data) > len(m.Event.Data) {
			return m.Event.Data
		}
	}
	return nil
}

// setBody grava o payload completado de volta na mensagem.
func setBody(msg any, data []byte) {
	switch m := msg.(type) {
	case *ProduceEvent:
		m.Data = data
	case *EventDelivery:
		m.Event.Data = data
	}
}
