// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Flo License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package protocol

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/nishisan-dev/flo/internal/event"
)

func TestClientAuth_RoundTrip(t *testing.T) {
	var buf bytes.Buffer

	if err := WriteClientAuth(&buf, "/orders", "app-user", "s3cret"); err != nil {
		t.Fatalf("WriteClientAuth: %v", err)
	}

	msg, err := NewFrameReader(&buf).ReadClientMessage()
	if err != nil {
		t.Fatalf("ReadClientMessage: %v", err)
	}

	auth, ok := msg.(*ClientAuth)
	if !ok {
		t.Fatalf("expected *ClientAuth, got %T", msg)
	}
	if auth.Namespace != "/orders" {
		t.Errorf("expected namespace %q, got %q", "/orders", auth.Namespace)
	}
	if auth.Username != "app-user" {
		t.Errorf("expected username %q, got %q", "app-user", auth.Username)
	}
	if auth.Password != "s3cret" {
		t.Errorf("expected password %q, got %q", "s3cret", auth.Password)
	}
}

func TestProduce_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	data := []byte("the event payload")

	if err := WriteProduce(&buf, 42, "/foo/bar", data); err != nil {
		t.Fatalf("WriteProduce: %v", err)
	}

	msg, err := NewFrameReader(&buf).ReadClientMessage()
	if err != nil {
		t.Fatalf("ReadClientMessage: %v", err)
	}

	produce, ok := msg.(*ProduceEvent)
	if !ok {
		t.Fatalf("expected *ProduceEvent, got %T", msg)
	}
	if produce.OpId != 42 {
		t.Errorf("expected op id 42, got %d", produce.OpId)
	}
	if produce.Namespace != "/foo/bar" {
		t.Errorf("expected namespace %q, got %q", "/foo/bar", produce.Namespace)
	}
	if !bytes.Equal(produce.Data, data) {
		t.Errorf("expected data %q, got %q", data, produce.Data)
	}
}

func TestProduce_EmptyPayload(t *testing.T) {
	var buf bytes.Buffer

	if err := WriteProduce(&buf, 1, "/empty", nil); err != nil {
		t.Fatalf("WriteProduce: %v", err)
	}

	msg, err := NewFrameReader(&buf).ReadClientMessage()
	if err != nil {
		t.Fatalf("ReadClientMessage: %v", err)
	}
	if produce := msg.(*ProduceEvent); len(produce.Data) != 0 {
		t.Errorf("expected empty data, got %d bytes", len(produce.Data))
	}
}

func TestConsume_RoundTrip(t *testing.T) {
	var buf bytes.Buffer

	if err := WriteConsume(&buf, 987654321); err != nil {
		t.Fatalf("WriteConsume: %v", err)
	}

	msg, err := NewFrameReader(&buf).ReadClientMessage()
	if err != nil {
		t.Fatalf("ReadClientMessage: %v", err)
	}
	if consume := msg.(*StartConsuming); consume.MaxEvents != 987654321 {
		t.Errorf("expected max events 987654321, got %d", consume.MaxEvents)
	}
}

func TestAck_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	ack := &EventAck{OpId: 7, EventId: event.NewEventId(3, 900)}

	if err := WriteAck(&buf, ack); err != nil {
		t.Fatalf("WriteAck: %v", err)
	}

	// FLO_ACK tem exatamente 22 bytes: tag(8) + op_id(4) + actor(2) + counter(8).
	if buf.Len() != 22 {
		t.Fatalf("expected 22 byte ack frame, got %d", buf.Len())
	}

	msg, err := NewFrameReader(&buf).ReadServerMessage()
	if err != nil {
		t.Fatalf("ReadServerMessage: %v", err)
	}

	got := msg.(*EventAck)
	if got.OpId != ack.OpId || got.EventId != ack.EventId {
		t.Errorf("expected %+v, got %+v", ack, got)
	}
}

func TestEvent_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	ev := event.NewEvent(event.NewEventId(1, 12), "/first", []byte("first event data"))

	if err := WriteEvent(&buf, ev); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}

	msg, err := NewFrameReader(&buf).ReadServerMessage()
	if err != nil {
		t.Fatalf("ReadServerMessage: %v", err)
	}

	got := msg.(*EventDelivery).Event
	if got.Id != ev.Id {
		t.Errorf("expected id %+v, got %+v", ev.Id, got.Id)
	}
	if got.Namespace != ev.Namespace {
		t.Errorf("expected namespace %q, got %q", ev.Namespace, got.Namespace)
	}
	if !bytes.Equal(got.Data, ev.Data) {
		t.Errorf("expected data %q, got %q", ev.Data, got.Data)
	}
}

func TestError_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	msg := &ErrorMessage{OpId: 9, Kind: ErrorKindPersistenceFailure, Description: "disk is gone"}

	if err := WriteError(&buf, msg); err != nil {
		t.Fatalf("WriteError: %v", err)
	}

	parsed, err := NewFrameReader(&buf).ReadServerMessage()
	if err != nil {
		t.Fatalf("ReadServerMessage: %v", err)
	}

	got := parsed.(*ErrorMessage)
	if got.OpId != msg.OpId || got.Kind != msg.Kind || got.Description != msg.Description {
		t.Errorf("expected %+v, got %+v", msg, got)
	}
}

func TestFrameReader_MultipleMessagesInSequence(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteProduce(&buf, 4, "/seq", []byte("evt_one")); err != nil {
		t.Fatalf("WriteProduce: %v", err)
	}
	if err := WriteClientAuth(&buf, "the namespace", "the username", "the password"); err != nil {
		t.Fatalf("WriteClientAuth: %v", err)
	}
	if err := WriteProduce(&buf, 5, "/seq", []byte("evt_two")); err != nil {
		t.Fatalf("WriteProduce: %v", err)
	}

	fr := NewFrameReader(&buf)

	first, err := fr.ReadClientMessage()
	if err != nil {
		t.Fatalf("first message: %v", err)
	}
	if p := first.(*ProduceEvent); p.OpId != 4 || string(p.Data) != "evt_one" {
		t.Errorf("unexpected first message: %+v", p)
	}

	second, err := fr.ReadClientMessage()
	if err != nil {
		t.Fatalf("second message: %v", err)
	}
	if a := second.(*ClientAuth); a.Namespace != "the namespace" {
		t.Errorf("unexpected second message: %+v", a)
	}

	third, err := fr.ReadClientMessage()
	if err != nil {
		t.Fatalf("third message: %v", err)
	}
	if p := third.(*ProduceEvent); p.OpId != 5 || string(p.Data) != "evt_two" {
		t.Errorf("unexpected third message: %+v", p)
	}

	if _, err := fr.ReadClientMessage(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF after last message, got %v", err)
	}
}

// chunkedReader entrega no máximo chunk bytes por chamada de Read, simulando
// um socket que fragmenta os frames em posições arbitrárias.
type chunkedReader struct {
	data  []byte
	pos   int
	chunk int
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := r.chunk
	if n > len(p) {
		n = len(p)
	}
	if n > len(r.data)-r.pos {
		n = len(r.data) - r.pos
	}
	copy(p, r.data[r.pos:r.pos+n])
	r.pos += n
	return n, nil
}

// TestFrameReader_SplicedAtEveryBoundary verifica que fatiar o stream em
// qualquer tamanho de chunk produz exatamente a mesma sequência de mensagens
// que o buffer inteiro de uma vez.
func TestFrameReader_SplicedAtEveryBoundary(t *testing.T) {
	var wire bytes.Buffer
	if err := WriteClientAuth(&wire, "/ns", "u", "p"); err != nil {
		t.Fatalf("WriteClientAuth: %v", err)
	}
	if err := WriteProduce(&wire, 1, "/a", []byte("payload one")); err != nil {
		t.Fatalf("WriteProduce: %v", err)
	}
	if err := WriteConsume(&wire, 10); err != nil {
		t.Fatalf("WriteConsume: %v", err)
	}
	if err := WriteProduce(&wire, 2, "/b", []byte("payload two is a bit longer")); err != nil {
		t.Fatalf("WriteProduce: %v", err)
	}
	raw := wire.Bytes()

	for chunk := 1; chunk <= len(raw); chunk++ {
		fr := NewFrameReader(&chunkedReader{data: raw, chunk: chunk})

		var got []ClientMessage
		for {
			msg, err := fr.ReadClientMessage()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				t.Fatalf("chunk size %d: %v", chunk, err)
			}
			got = append(got, msg)
		}

		if len(got) != 4 {
			t.Fatalf("chunk size %d: expected 4 messages, got %d", chunk, len(got))
		}
		if a := got[0].(*ClientAuth); a.Namespace != "/ns" {
			t.Errorf("chunk size %d: wrong auth: %+v", chunk, a)
		}
		if p := got[1].(*ProduceEvent); p.OpId != 1 || string(p.Data) != "payload one" {
			t.Errorf("chunk size %d: wrong first produce: %+v", chunk, p)
		}
		if c := got[2].(*StartConsuming); c.MaxEvents != 10 {
			t.Errorf("chunk size %d: wrong consume: %+v", chunk, c)
		}
		if p := got[3].(*ProduceEvent); p.OpId != 2 || string(p.Data) != "payload two is a bit longer" {
			t.Errorf("chunk size %d: wrong second produce: %+v", chunk, p)
		}
	}
}

func TestFrameReader_LargePayloadStreamsPastBuffer(t *testing.T) {
	// Payload maior que o buffer de parse de 8 KiB: precisa ser completado
	// em streaming direto no buffer da mensagem.
	data := bytes.Repeat([]byte("x"), 3*BufferSize)

	var buf bytes.Buffer
	if err := WriteProduce(&buf, 77, "/big", data); err != nil {
		t.Fatalf("WriteProduce: %v", err)
	}

	fr := NewFrameReader(&chunkedReader{data: buf.Bytes(), chunk: 1024})
	msg, err := fr.ReadClientMessage()
	if err != nil {
		t.Fatalf("ReadClientMessage: %v", err)
	}

	produce := msg.(*ProduceEvent)
	if !bytes.Equal(produce.Data, data) {
		t.Errorf("large payload corrupted: got %d bytes", len(produce.Data))
	}
}

func TestFrameReader_InvalidTag(t *testing.T) {
	fr := NewFrameReader(bytes.NewReader([]byte("FLO_XXX\nwhatever follows")))

	_, err := fr.ReadClientMessage()
	if !errors.Is(err, ErrInvalidMagic) {
		t.Errorf("expected ErrInvalidMagic, got %v", err)
	}
}

func TestFrameReader_TruncatedFrame(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteProduce(&buf, 1, "/t", []byte("some data")); err != nil {
		t.Fatalf("WriteProduce: %v", err)
	}
	raw := buf.Bytes()

	// Corta o stream no meio do payload.
	fr := NewFrameReader(bytes.NewReader(raw[:len(raw)-4]))
	_, err := fr.ReadClientMessage()
	if !errors.Is(err, ErrTruncated) {
		t.Errorf("expected ErrTruncated, got %v", err)
	}
}
