// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Flo License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package store

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nishisan-dev/flo/internal/event"
)

// DataFileName é o nome do arquivo de eventos dentro do diretório do namespace.
const DataFileName = "events"

// Options configura a abertura do storage.
type Options struct {
	DataDir   string
	Namespace string
	MaxEvents int
}

// Store é o storage engine de um namespace: o arquivo append-only de eventos,
// o índice em memória e o version vector reconstruído no recovery.
//
// O arquivo é escrito apenas pelo producer manager; leitores abrem file
// descriptors read-only independentes, então nenhum lock de arquivo é preciso.
type Store struct {
	dir     string
	path    string
	file    *os.File
	size    int64
	index   *EventIndex
	version *event.VersionVector
	logger  *slog.Logger
}

// Open abre (ou cria) o log do namespace e executa o recovery: escaneia o
// arquivo do offset 0 validando o magic de cada registro; o primeiro registro
// inválido encerra o scan e os bytes restantes são truncados como lixo de uma
// escrita parcial. Cada registro válido atualiza o version vector e o índice.
func Open(opts Options, logger *slog.Logger) (*Store, error) {
	dir := filepath.Join(opts.DataDir, opts.Namespace)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating namespace directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, DataFileName)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening events file %s: %w", path, err)
	}

	s := &Store{
		dir:     dir,
		path:    path,
		file:    file,
		index:   NewEventIndex(opts.MaxEvents),
		version: event.NewVersionVector(),
		logger:  logger.With("component", "store", "namespace", opts.Namespace),
	}

	if err := s.recover(); err != nil {
		file.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) recover() error {
	reader := bufio.NewReader(s.file)
	var offset int64

	for {
		ev, size, err := ReadRecord(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			// Magic inválido, tamanhos inconsistentes ou registro cortado:
			// tudo depois de offset é lixo de uma escrita parcial.
			s.logger.Warn("truncating corrupt tail",
				"offset", offset,
				"error", err,
			)
			if err := s.file.Truncate(offset); err != nil {
				return fmt.Errorf("truncating events file at %d: %w", offset, err)
			}
			break
		}

		s.version.Set(ev.Id)
		s.index.Add(ev.Id, offset)
		offset += size
	}

	if _, err := s.file.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("seeking to end of events file: %w", err)
	}
	s.size = offset

	s.logger.Info("storage recovered",
		"events", s.index.Len(),
		"bytes", s.size,
		"greatest_event_id", s.index.GreatestEventId(),
	)
	return nil
}

// Append persiste um evento no fim do log e o indexa. Retorna o offset do
// registro. Numa falha de escrita o arquivo é truncado de volta para o último
// registro íntegro, então um retry não deixa lixo no meio do log.
func (s *Store) Append(ev *event.Event) (int64, error) {
	offset := s.size

	written, err := WriteRecord(s.file, ev)
	if err != nil {
		if truncErr := s.file.Truncate(offset); truncErr == nil {
			s.file.Seek(offset, io.SeekStart)
		}
		return 0, fmt.Errorf("appending event %v: %w", ev.Id, err)
	}

	s.size += written
	s.version.Set(ev.Id)
	s.index.Add(ev.Id, offset)
	return offset, nil
}

// Index expõe o índice para leitores.
func (s *Store) Index() *EventIndex {
	return s.index
}

// Version expõe o version vector reconstruído no recovery.
func (s *Store) Version() *event.VersionVector {
	return s.version
}

// HighestCounter retorna o maior counter persistido pelo ator informado.
func (s *Store) HighestCounter(actor event.ActorId) event.EventCounter {
	return s.version.Get(actor)
}

// Path retorna o caminho do arquivo de eventos.
func (s *Store) Path() string {
	return s.path
}

// Dir retorna o diretório do namespace.
func (s *Store) Dir() string {
	return s.dir
}

// Size retorna o tamanho atual do log em bytes.
func (s *Store) Size() int64 {
	return s.size
}

// Close fecha o file handle de escrita.
func (s *Store) Close() error {
	return s.file.Close()
}
