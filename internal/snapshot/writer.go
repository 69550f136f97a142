// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Flo License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package snapshot exporta snapshots comprimidos do log de um namespace, com
// retenção limitada e offload opcional para S3.
package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// AtomicWriter gerencia a escrita atômica de snapshots:
// grava em .tmp → rename para nome final.
type AtomicWriter struct {
	baseDir   string
	namespace string
	extension string
	targetDir string
}

// NewAtomicWriter cria um AtomicWriter para o namespace especificado.
// Cria o diretório {baseDir}/{namespace}/ se não existir.
func NewAtomicWriter(baseDir, namespace, extension string) (*AtomicWriter, error) {
	targetDir := filepath.Join(baseDir, namespace)
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}
	return &AtomicWriter{
		baseDir:   baseDir,
		namespace: namespace,
		extension: extension,
		targetDir: targetDir,
	}, nil
}

// TempFile cria um arquivo temporário no diretório do namespace.
func (w *AtomicWriter) TempFile() (*os.File, string, error) {
	f, err := os.CreateTemp(w.targetDir, "snapshot-*.tmp")
	if err != nil {
		return nil, "", fmt.Errorf("creating temp file: %w", err)
	}
	return f, f.Name(), nil
}

// Commit renomeia o arquivo temporário para o nome final com timestamp.
func (w *AtomicWriter) Commit(tmpPath string) (string, error) {
	timestamp := time.Now().UTC().Format("2006-01-02T15-04-05.000")
	// Substitui ponto decimal por traço para portabilidade em FS
	timestamp = strings.ReplaceAll(timestamp, ".", "-")
	finalName := timestamp + w.extension
	finalPath := filepath.Join(w.targetDir, finalName)

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming temp to final: %w", err)
	}

	return finalPath, nil
}

// Abort remove o arquivo temporário em caso de erro.
func (w *AtomicWriter) Abort(tmpPath string) error {
	return os.Remove(tmpPath)
}

// TargetDir retorna o caminho do diretório de snapshots do namespace.
func (w *AtomicWriter) TargetDir() string {
	return w.targetDir
}

// Rotate remove snapshots excedentes, mantendo os maxSnapshots mais recentes.
func Rotate(targetDir string, maxSnapshots int, extension string) error {
	if maxSnapshots <= 0 {
		return nil
	}

	entries, err := os.ReadDir(targetDir)
	if err != nil {
		return fmt.Errorf("reading snapshot directory: %w", err)
	}

	var snapshots []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), extension) {
			snapshots = append(snapshots, e.Name())
		}
	}

	// Ordena por nome (timestamp → ordem cronológica natural)
	sort.Strings(snapshots)

	if len(snapshots) > maxSnapshots {
		toRemove := snapshots[:len(snapshots)-maxSnapshots]
		for _, name := range toRemove {
			path := filepath.Join(targetDir, name)
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("removing old snapshot %s: %w", name, err)
			}
		}
	}

	return nil
}
