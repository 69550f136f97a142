// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Flo License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package protocol

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/nishisan-dev/flo/internal/event"
)

// WriteClientAuth escreve o frame FLO_INI (Client → Server).
// Formato: [Tag 8B] [Namespace UTF-8] ['\n'] [Username] ['\n'] [Password] ['\n']
func WriteClientAuth(w io.Writer, namespace, username, password string) error {
	if _, err := w.Write(TagClientAuth[:]); err != nil {
		return fmt.Errorf("writing auth tag: %w", err)
	}
	for _, field := range []string{namespace, username, password} {
		if _, err := io.WriteString(w, field); err != nil {
			return fmt.Errorf("writing auth field: %w", err)
		}
		if _, err := w.Write([]byte{'\n'}); err != nil {
			return fmt.Errorf("writing auth delimiter: %w", err)
		}
	}
	return nil
}

// WriteProduce escreve o frame FLO_PRO (Client → Server).
// Formato: [Tag 8B] [OpId u32] [Namespace UTF-8] ['\n'] [DataLen u32] [Data]
func WriteProduce(w io.Writer, opId uint32, namespace string, data []byte) error {
	if _, err := w.Write(TagProduce[:]); err != nil {
		return fmt.Errorf("writing produce tag: %w", err)
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], opId)
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("writing produce op id: %w", err)
	}
	if _, err := io.WriteString(w, namespace); err != nil {
		return fmt.Errorf("writing produce namespace: %w", err)
	}
	if _, err := w.Write([]byte{'\n'}); err != nil {
		return fmt.Errorf("writing produce delimiter: %w", err)
	}
	binary.BigEndian.PutUint32(header[:], uint32(len(data)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("writing produce data length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing produce data: %w", err)
	}
	return nil
}

// WriteConsume escreve o frame FLO_CNS (Client → Server).
// Formato: [Tag 8B] [MaxEvents u64]
func WriteConsume(w io.Writer, maxEvents uint64) error {
	if _, err := w.Write(TagConsume[:]); err != nil {
		return fmt.Errorf("writing consume tag: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, maxEvents); err != nil {
		return fmt.Errorf("writing consume max events: %w", err)
	}
	return nil
}

// WriteAck escreve o frame FLO_ACK (Server → Client).
// Formato: [Tag 8B] [OpId u32] [Actor u16] [Counter u64]
func WriteAck(w io.Writer, ack *EventAck) error {
	var frame [TagSize + 14]byte
	copy(frame[:], TagAck[:])
	binary.BigEndian.PutUint32(frame[8:12], ack.OpId)
	binary.BigEndian.PutUint16(frame[12:14], ack.EventId.Actor)
	binary.BigEndian.PutUint64(frame[14:22], ack.EventId.Counter)
	if _, err := w.Write(frame[:]); err != nil {
		return fmt.Errorf("writing ack: %w", err)
	}
	return nil
}

// WriteEvent escreve o frame FLO_EVT (Server → Client).
// Formato: [Tag 8B] [Actor u16] [Counter u64] [Namespace UTF-8] ['\n']
// [DataLen u32] [Data]
func WriteEvent(w io.Writer, ev *event.Event) error {
	var header [TagSize + 10]byte
	copy(header[:], TagEvent[:])
	binary.BigEndian.PutUint16(header[8:10], ev.Id.Actor)
	binary.BigEndian.PutUint64(header[10:18], ev.Id.Counter)
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("writing event header: %w", err)
	}
	if _, err := io.WriteString(w, ev.Namespace); err != nil {
		return fmt.Errorf("writing event namespace: %w", err)
	}
	if _, err := w.Write([]byte{'\n'}); err != nil {
		return fmt.Errorf("writing event delimiter: %w", err)
	}
	var dataLen [4]byte
	binary.BigEndian.PutUint32(dataLen[:], ev.DataLen())
	if _, err := w.Write(dataLen[:]); err != nil {
		return fmt.Errorf("writing event data length: %w", err)
	}
	if _, err := w.Write(ev.Data); err != nil {
		return fmt.Errorf("writing event data: %w", err)
	}
	return nil
}

// WriteError escreve o frame FLO_ERR (Server → Client).
// Formato: [Tag 8B] [OpId u32] [Kind u8] [Description UTF-8] ['\n']
func WriteError(w io.Writer, msg *ErrorMessage) error {
	var header [TagSize + 5]byte
	copy(header[:], TagError[:])
	binary.BigEndian.PutUint32(header[8:12], msg.OpId)
	header[12] = msg.Kind
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("writing error header: %w", err)
	}
	if _, err := io.WriteString(w, msg.Description); err != nil {
		return fmt.Errorf("writing error description: %w", err)
	}
	if _, err := w.Write([]byte{'\n'}); err != nil {
		return fmt.Errorf("writing error delimiter: %w", err)
	}
	return nil
}

// WriteServerMessage despacha uma ServerMessage para o writer correspondente.
func WriteServerMessage(w io.Writer, msg ServerMessage) error {
	switch m := msg.(type) {
	case *EventAck:
		return WriteAck(w, m)
	case *EventDelivery:
		return WriteEvent(w, m.Event)
	case *ErrorMessage:
		return WriteError(w, m)
	default:
		return fmt.Errorf("protocol: unknown server message type %T", msg)
	}
}
