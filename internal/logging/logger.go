// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Flo License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package logging configura o slog.Logger do processo, com níveis globais e
// por componente.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger cria um slog.Logger configurado com o nível, formato e output
// especificados. Formatos suportados: "json" (default) e "text".
// Níveis suportados: "debug", "info" (default), "warn", "error".
// levels mapeia componente → nível mínimo, por cima do nível global (flag -L).
// Se filePath não for vazio, grava os logs no arquivo em vez de stdout.
// Retorna o logger e um io.Closer que deve ser chamado no shutdown.
func NewLogger(level, format, filePath string, levels map[string]string) (*slog.Logger, io.Closer) {
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}

	var w io.Writer = os.Stdout
	var closer io.Closer = io.NopCloser(strings.NewReader(""))

	if filePath != "" {
		f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			// Se não conseguir abrir o arquivo, avisa e continua em stdout.
			fmt.Fprintf(os.Stderr, "WARNING: could not open log file %q: %v (logging to stdout only)\n", filePath, err)
		} else {
			w = f
			closer = f
		}
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	componentLevels := make(map[string]slog.Level, len(levels))
	for component, lvl := range levels {
		componentLevels[component] = parseLevel(lvl)
	}

	filtered := &componentFilterHandler{
		inner:        handler,
		defaultLevel: parseLevel(level),
		levels:       componentLevels,
	}

	return slog.New(filtered), closer
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// componentFilterHandler aplica o nível mínimo do componente corrente antes de
// despachar ao handler interno. O componente é capturado do attr "component"
// que cada subsistema anexa via logger.With.
type componentFilterHandler struct {
	inner        slog.Handler
	defaultLevel slog.Level
	levels       map[string]slog.Level
	component    string
}

func (h *componentFilterHandler) minLevel() slog.Level {
	if lvl, ok := h.levels[h.component]; ok {
		return lvl
	}
	return h.defaultLevel
}

func (h *componentFilterHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.minLevel()
}

func (h *componentFilterHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.inner.Handle(ctx, r)
}

func (h *componentFilterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &componentFilterHandler{
		inner:        h.inner.WithAttrs(attrs),
		defaultLevel: h.defaultLevel,
		levels:       h.levels,
		component:    h.component,
	}
	for _, attr := range attrs {
		if attr.Key == "component" {
			next.component = attr.Value.String()
		}
	}
	return next
}

func (h *componentFilterHandler) WithGroup(name string) slog.Handler {
	return &componentFilterHandler{
		inner:        h.inner.WithGroup(name),
		defaultLevel: h.defaultLevel,
		levels:       h.levels,
		component:    h.component,
	}
}
