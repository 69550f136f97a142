// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Flo License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package store

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/nishisan-dev/flo/internal/event"
)

// EventIter é uma sequência lazy, finita e não-reiniciável de eventos lidos do
// log. Para no EOF, num erro de leitura ou depois de limit eventos.
type EventIter struct {
	file      *os.File
	reader    *bufio.Reader
	remaining int
	err       error
	done      bool
}

// Next retorna o próximo evento. io.EOF sinaliza o fim limpo da sequência;
// qualquer outro erro é definitivo e encerra o iterator.
func (it *EventIter) Next() (*event.Event, error) {
	if it.done {
		if it.err != nil {
			return nil, it.err
		}
		return nil, io.EOF
	}
	if it.remaining == 0 {
		it.Close()
		return nil, io.EOF
	}

	ev, _, err := ReadRecord(it.reader)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			it.err = err
		}
		it.Close()
		if it.err != nil {
			return nil, it.err
		}
		return nil, io.EOF
	}

	it.remaining--
	return ev, nil
}

// Close libera o file descriptor do iterator. Idempotente.
func (it *EventIter) Close() {
	if !it.done {
		it.done = true
		if it.file != nil {
			it.file.Close()
		}
	}
}

// emptyIter é um iterator já esgotado, usado quando não há entrada no índice.
func emptyIter() *EventIter {
	return &EventIter{done: true}
}

// errorIter é um iterator que devolve um único erro.
func errorIter(err error) *EventIter {
	return &EventIter{done: true, err: err}
}

// LogReader produz iterators de leitura sobre o log de um namespace.
// Cada LoadRange abre um file descriptor read-only independente, então
// leitores nunca disputam com o writer do producer.
type LogReader struct {
	index *EventIndex
	path  string
}

// NewLogReader cria um LogReader sobre o índice e arquivo do store.
func NewLogReader(s *Store) *LogReader {
	return &LogReader{index: s.Index(), path: s.Path()}
}

// LoadRange retorna um iterator sobre até limit eventos com id estritamente
// maior que start. O snapshot da entrada do índice é tirado sob o lock shared
// antes de abrir o arquivo.
func (r *LogReader) LoadRange(start event.EventId, limit int) *EventIter {
	entry, ok := r.index.NextEntry(start)
	if !ok {
		return emptyIter()
	}

	file, err := os.Open(r.path)
	if err != nil {
		return errorIter(fmt.Errorf("opening events file for read: %w", err))
	}
	if _, err := file.Seek(entry.Offset, io.SeekStart); err != nil {
		file.Close()
		return errorIter(fmt.Errorf("seeking to offset %d: %w", entry.Offset, err))
	}

	return &EventIter{
		file:      file,
		reader:    bufio.NewReader(file),
		remaining: limit,
	}
}

// GreatestEventId retorna o maior id indexado.
func (r *LogReader) GreatestEventId() event.EventId {
	return r.index.GreatestEventId()
}
