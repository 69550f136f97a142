// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Flo License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"

	"github.com/nishisan-dev/flo/internal/engine"
	"github.com/nishisan-dev/flo/internal/protocol"
)

// outboundQueueSize é a capacidade da fila de saída por conexão.
const outboundQueueSize = 4096

// writeBufferSize é o buffer do pipeline de escrita no socket.
const writeBufferSize = 32 * 1024

// handleConnection roda os dois pipelines de uma conexão: o decoder lê frames
// e despacha para o engine; o encoder drena a fila de saída e escreve frames.
// O teardown acontece quando qualquer um dos lados falha ou fecha.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	connId := s.nextConnId.Add(1)
	logger := s.logger.With("connection_id", connId, "peer", conn.RemoteAddr().String())

	out := engine.NewOutbound(outboundQueueSize)

	// Registra nos dois managers antes de qualquer outro tráfego da conexão.
	s.engine.Connect(ctx, engine.ClientConnect{
		ConnectionId: connId,
		RemoteAddr:   conn.RemoteAddr().String(),
		Outbound:     out,
	})

	logger.Debug("connection accepted")

	go s.encodeLoop(ctx, conn, out, logger)

	s.decodeLoop(ctx, connId, conn, logger)

	// Teardown: derruba a fila de saída; o próximo enqueue dos managers
	// falha e eles removem o client.
	s.engine.Disconnect(ctx, connId)
	out.Close()
	conn.Close()
	logger.Debug("connection closed")
}

// decodeLoop dirige o codec incremental sobre o socket e roteia cada mensagem
// decodificada. Input inparseável fecha a conexão sem frame de erro: o client
// não pode ser assumido em sync.
func (s *Server) decodeLoop(ctx context.Context, connId engine.ConnectionId, conn net.Conn, logger *slog.Logger) {
	reader := protocol.NewFrameReader(conn)

	for {
		msg, err := reader.ReadClientMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			if errors.Is(err, protocol.ErrInvalidMagic) || errors.Is(err, protocol.ErrFrameTooLarge) {
				logger.Warn("unparseable frame, closing connection", "error", err)
				return
			}
			if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				logger.Debug("connection read failed", "error", err)
			}
			return
		}

		if err := s.engine.Dispatch(ctx, connId, msg); err != nil {
			logger.Error("dispatch failed", "error", err)
			return
		}
	}
}

// encodeLoop drena a fila de saída e serializa os frames, preservando a ordem
// FIFO por conexão. Depois de esvaziar a fila num ciclo, dá flush no buffer.
func (s *Server) encodeLoop(ctx context.Context, conn net.Conn, out *engine.Outbound, logger *slog.Logger) {
	var dest io.Writer = conn
	if s.maxWriteRate > 0 {
		dest = NewThrottledWriter(ctx, conn, s.maxWriteRate)
	}
	w := bufio.NewWriterSize(dest, writeBufferSize)

	fail := func(err error) {
		if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
			logger.Debug("connection write failed", "error", err)
		}
		// Derruba o lado de leitura também: o decodeLoop acorda com erro e
		// executa o teardown completo.
		conn.Close()
	}

	for {
		select {
		case msg := <-out.C:
			if err := protocol.WriteServerMessage(w, msg); err != nil {
				fail(err)
				return
			}

			// Esvazia o que mais estiver enfileirado antes do flush.
			for drained := false; !drained; {
				select {
				case more := <-out.C:
					if err := protocol.WriteServerMessage(w, more); err != nil {
						fail(err)
						return
					}
				default:
					drained = true
				}
			}

			if err := w.Flush(); err != nil {
				fail(err)
				return
			}
		case <-out.Done():
			return
		case <-ctx.Done():
			// Shutdown: fecha o socket para acordar o decodeLoop também.
			conn.Close()
			return
		}
	}
}
