// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Flo License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package protocol

import (
	"errors"
	"fmt"
	"io"
)

// FrameReader dirige o parser incremental sobre um io.Reader. É dono de um
// buffer de 8 KiB: quando o parser devolve incompleto, compacta o que sobrou
// para o início do buffer, lê mais bytes do socket e tenta de novo.
//
// Payloads de FLO_PRO/FLO_EVT não passam pelo buffer de parse: depois do
// header, os bytes restantes do payload são lidos direto no buffer de dados
// pré-alocado da mensagem, então um evento grande nunca precisa caber aqui.
type FrameReader struct {
	r     io.Reader
	buf   []byte
	start int
	end   int
}

// NewFrameReader cria um FrameReader sobre r.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{
		r:   r,
		buf: make([]byte, BufferSize),
	}
}

// ReadClientMessage lê a próxima mensagem Client → Server.
// Retorna io.EOF quando o peer fecha a conexão entre frames.
func (fr *FrameReader) ReadClientMessage() (ClientMessage, error) {
	msg, err := fr.next(func(buf []byte) (any, int, error) {
		return ParseClientMessage(buf)
	})
	if err != nil {
		return nil, err
	}
	return msg.(ClientMessage), nil
}

// ReadServerMessage lê a próxima mensagem Server → Client.
func (fr *FrameReader) ReadServerMessage() (ServerMessage, error) {
	msg, err := fr.next(func(buf []byte) (any, int, error) {
		return ParseServerMessage(buf)
	})
	if err != nil {
		return nil, err
	}
	return msg.(ServerMessage), nil
}

func (fr *FrameReader) next(parse func([]byte) (any, int, error)) (any, error) {
	for {
		if fr.start < fr.end {
			msg, consumed, err := parse(fr.buf[fr.start:fr.end])
			if err == nil {
				fr.start += consumed
				if body := pendingBody(msg); body != nil {
					filled, err := fr.fillBody(body)
					if err != nil {
						return nil, err
					}
					setBody(msg, filled)
				}
				return msg, nil
			}
			if !errors.Is(err, errIncomplete) {
				return nil, err
			}
		}

		if err := fr.fill(); err != nil {
			return nil, err
		}
	}
}

// fill compacta o buffer e lê mais bytes do reader subjacente.
func (fr *FrameReader) fill() error {
	if fr.start > 0 {
		copy(fr.buf, fr.buf[fr.start:fr.end])
		fr.end -= fr.start
		fr.start = 0
	}
	if fr.end == len(fr.buf) {
		// Frame incompleto com buffer cheio: header maior que 8 KiB.
		return ErrFrameTooLarge
	}

	for {
		n, err := fr.r.Read(fr.buf[fr.end:])
		if n > 0 {
			fr.end += n
			return nil
		}
		if err == nil {
			// Read de 0 bytes sem erro: tenta de novo.
			continue
		}
		if errors.Is(err, io.EOF) {
			if fr.end > fr.start {
				// EOF no meio de um frame.
				return fmt.Errorf("%w: connection closed mid-frame", ErrTruncated)
			}
			return io.EOF
		}
		return err
	}
}

// fillBody completa o payload de uma mensagem em duas fases: primeiro drena o
// que já está no buffer de parse, depois lê o restante direto do socket.
func (fr *FrameReader) fillBody(body []byte) ([]byte, error) {
	remaining := cap(body) - len(body)

	if buffered := fr.end - fr.start; buffered > 0 && remaining > 0 {
		take := buffered
		if take > remaining {
			take = remaining
		}
		body = append(body, fr.buf[fr.start:fr.start+take]...)
		fr.start += take
		remaining -= take
	}

	if remaining > 0 {
		full := body[:cap(body)]
		if _, err := io.ReadFull(fr.r, full[len(body):]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("%w: connection closed mid-payload", ErrTruncated)
			}
			return nil, err
		}
		body = full
	}

	return body, nil
}
