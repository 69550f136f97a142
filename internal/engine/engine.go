// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Flo License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nishisan-dev/flo/internal/cache"
	"github.com/nishisan-dev/flo/internal/event"
	"github.com/nishisan-dev/flo/internal/protocol"
	"github.com/nishisan-dev/flo/internal/store"
)

// Options configura o engine.
type Options struct {
	ActorId          event.ActorId
	DefaultNamespace string
	MaxCachedEvents  int
	MaxCacheBytes    int64
}

// Stats é um snapshot das métricas do engine para o stats reporter.
type Stats struct {
	Produced      int64
	PersistFailed int64
	Delivered     int64
	Clients       int
	Cache         cache.Stats
}

// Engine liga o front-end das conexões aos dois managers: um roteador fino
// que despacha cada mensagem decodificada para a inbox certa.
type Engine struct {
	producer *ProducerManager
	consumer *ConsumerManager
	cache    *cache.Cache
}

// Start monta os managers sobre o store e dispara as duas goroutines ator.
// O piso do cache é o maior id recuperado do disco: um catch-up que começa
// atrás dele precisa ler o log.
func Start(ctx context.Context, s *store.Store, opts Options, logger *slog.Logger) *Engine {
	c := cache.New(opts.MaxCachedEvents, opts.MaxCacheBytes)
	c.Prime(s.Index().GreatestEventId())

	consumer := NewConsumerManager(store.NewLogReader(s), c, logger)
	producer := NewProducerManager(s, consumer.Inbox(), opts.ActorId, opts.DefaultNamespace, logger)

	go producer.Run(ctx)
	go consumer.Run(ctx)

	return &Engine{
		producer: producer,
		consumer: consumer,
		cache:    c,
	}
}

// Connect registra a conexão nos dois managers. Precisa acontecer antes de
// qualquer outro tráfego da conexão.
func (e *Engine) Connect(ctx context.Context, cc ClientConnect) {
	e.sendProducer(ctx, cc)
	e.sendConsumer(ctx, cc)
}

// Disconnect remove a conexão dos dois managers.
func (e *Engine) Disconnect(ctx context.Context, conn ConnectionId) {
	e.sendProducer(ctx, ClientDisconnect{ConnectionId: conn})
	e.sendConsumer(ctx, ClientDisconnect{ConnectionId: conn})
}

// Dispatch roteia uma mensagem decodificada do client: Produce e ClientAuth
// vão para o producer, StartConsuming para o consumer.
func (e *Engine) Dispatch(ctx context.Context, conn ConnectionId, msg protocol.ClientMessage) error {
	switch msg := msg.(type) {
	case *protocol.ProduceEvent:
		e.sendProducer(ctx, Produce{
			ConnectionId: conn,
			OpId:         msg.OpId,
			Namespace:    msg.Namespace,
			Data:         msg.Data,
		})
	case *protocol.ClientAuth:
		e.sendProducer(ctx, SetNamespace{
			ConnectionId: conn,
			Namespace:    msg.Namespace,
			Username:     msg.Username,
		})
	case *protocol.StartConsuming:
		e.sendConsumer(ctx, StartConsuming{
			ConnectionId: conn,
			MaxEvents:    msg.MaxEvents,
		})
	default:
		return fmt.Errorf("engine: no route for client message %T", msg)
	}
	return nil
}

func (e *Engine) sendProducer(ctx context.Context, msg ProducerMessage) {
	select {
	case e.producer.Inbox() <- msg:
	case <-ctx.Done():
	}
}

func (e *Engine) sendConsumer(ctx context.Context, msg ConsumerMessage) {
	select {
	case e.consumer.Inbox() <- msg:
	case <-ctx.Done():
	}
}

// Stats retorna um snapshot das métricas do engine.
func (e *Engine) Stats() Stats {
	return Stats{
		Produced:      e.producer.Produced(),
		PersistFailed: e.producer.Failed(),
		Delivered:     e.consumer.Delivered(),
		Clients:       e.consumer.Clients(),
		Cache:         e.cache.Stats(),
	}
}
