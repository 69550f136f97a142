// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Flo License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package store implementa o log append-only em disco do flo: codec de
// registros, índice em memória e leitores baseados em iterator.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/nishisan-dev/flo/internal/event"
)

// RecordMagic abre todo registro no arquivo de eventos.
const RecordMagic = "FLO_EVT\n"

// recordHeaderSize cobre magic(8) + total(4) + counter(8) + actor(2) + ns_len(4).
const recordHeaderSize = 26

// Erros do codec de registros.
var (
	ErrBadMagic  = errors.New("store: record magic mismatch")
	ErrBadRecord = errors.New("store: inconsistent record sizes")
)

// RecordSize retorna o tamanho total do registro em disco para um evento.
func RecordSize(ev *event.Event) int64 {
	return int64(recordHeaderSize + len(ev.Namespace) + 4 + len(ev.Data))
}

// WriteRecord serializa um registro completo:
//
//	[Magic "FLO_EVT\n" 8B] [TotalSize u32] [Counter u64] [Actor u16]
//	[NsLen u32] [Namespace] [DataLen u32] [Data]
//
// TotalSize cobre o registro inteiro, incluindo o magic.
func WriteRecord(w io.Writer, ev *event.Event) (int64, error) {
	total := RecordSize(ev)

	header := make([]byte, recordHeaderSize)
	copy(header, RecordMagic)
	binary.BigEndian.PutUint32(header[8:12], uint32(total))
	binary.BigEndian.PutUint64(header[12:20], ev.Id.Counter)
	binary.BigEndian.PutUint16(header[20:22], ev.Id.Actor)
	binary.BigEndian.PutUint32(header[22:26], uint32(len(ev.Namespace)))

	if _, err := w.Write(header); err != nil {
		return 0, fmt.Errorf("writing record header: %w", err)
	}
	if _, err := io.WriteString(w, ev.Namespace); err != nil {
		return 0, fmt.Errorf("writing record namespace: %w", err)
	}
	var dataLen [4]byte
	binary.BigEndian.PutUint32(dataLen[:], ev.DataLen())
	if _, err := w.Write(dataLen[:]); err != nil {
		return 0, fmt.Errorf("writing record data length: %w", err)
	}
	if _, err := w.Write(ev.Data); err != nil {
		return 0, fmt.Errorf("writing record data: %w", err)
	}

	return total, nil
}

// ReadRecord lê e valida um registro a partir de r. Retorna o evento e o
// tamanho total consumido. io.EOF limpo significa fim do log; qualquer
// truncamento no meio de um registro vira io.ErrUnexpectedEOF.
func ReadRecord(r io.Reader) (*event.Event, int64, error) {
	header := make([]byte, recordHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, io.EOF
		}
		return nil, 0, err
	}

	if string(header[:8]) != RecordMagic {
		return nil, 0, ErrBadMagic
	}

	total := binary.BigEndian.Uint32(header[8:12])
	counter := binary.BigEndian.Uint64(header[12:20])
	actor := binary.BigEndian.Uint16(header[20:22])
	nsLen := binary.BigEndian.Uint32(header[22:26])

	// total = header + namespace + data_len + data; qualquer inconsistência
	// indica registro corrompido.
	if uint64(total) < uint64(recordHeaderSize)+uint64(nsLen)+4 {
		return nil, 0, ErrBadRecord
	}

	namespace := make([]byte, nsLen)
	if _, err := io.ReadFull(r, namespace); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, 0, fmt.Errorf("reading record namespace: %w", err)
	}

	var dataLenBuf [4]byte
	if _, err := io.ReadFull(r, dataLenBuf[:]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, 0, fmt.Errorf("reading record data length: %w", err)
	}
	dataLen := binary.BigEndian.Uint32(dataLenBuf[:])

	if uint64(total) != uint64(recordHeaderSize)+uint64(nsLen)+4+uint64(dataLen) {
		return nil, 0, ErrBadRecord
	}

	data := make([]byte, dataLen)
	if _, err := io.ReadFull(r, data); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, 0, fmt.Errorf("reading record data: %w", err)
	}

	ev := event.NewEvent(event.NewEventId(actor, counter), string(namespace), data)
	return ev, int64(total), nil
}
