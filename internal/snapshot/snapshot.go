// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Flo License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package snapshot

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"

	"github.com/nishisan-dev/flo/internal/config"
)

// Create exporta o diretório do namespace para um archive comprimido escrito
// atomicamente (tmp → rename). Retorna o caminho final do snapshot.
//
// O archive é consistente porque o arquivo de eventos é append-only: o
// snapshot captura um prefixo íntegro do log mesmo com o producer escrevendo
// durante o tar.
func Create(nsDir string, cfg config.SnapshotConfig, baseDir string) (string, error) {
	namespace := filepath.Base(nsDir)

	writer, err := NewAtomicWriter(baseDir, namespace, cfg.FileExtension())
	if err != nil {
		return "", err
	}

	tmpFile, tmpPath, err := writer.TempFile()
	if err != nil {
		return "", err
	}

	if err := writeArchive(tmpFile, nsDir, cfg.CompressionMode); err != nil {
		tmpFile.Close()
		writer.Abort(tmpPath)
		return "", err
	}
	if err := tmpFile.Close(); err != nil {
		writer.Abort(tmpPath)
		return "", fmt.Errorf("closing snapshot temp file: %w", err)
	}

	finalPath, err := writer.Commit(tmpPath)
	if err != nil {
		writer.Abort(tmpPath)
		return "", err
	}

	if err := Rotate(writer.TargetDir(), cfg.MaxSnapshots, cfg.FileExtension()); err != nil {
		return finalPath, err
	}

	return finalPath, nil
}

// writeArchive grava o tar comprimido do diretório do namespace em dest.
func writeArchive(dest io.Writer, nsDir, compressionMode string) error {
	var compressor io.WriteCloser
	switch compressionMode {
	case "zst":
		zw, err := zstd.NewWriter(dest)
		if err != nil {
			return fmt.Errorf("creating zstd writer: %w", err)
		}
		compressor = zw
	default:
		compressor = pgzip.NewWriter(dest)
	}

	tw := tar.NewWriter(compressor)

	entries, err := os.ReadDir(nsDir)
	if err != nil {
		return fmt.Errorf("reading namespace directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := addFile(tw, nsDir, entry.Name()); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("closing tar writer: %w", err)
	}
	if err := compressor.Close(); err != nil {
		return fmt.Errorf("closing compressor: %w", err)
	}
	return nil
}

func addFile(tw *tar.Writer, dir, name string) error {
	path := filepath.Join(dir, name)
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("building tar header for %s: %w", name, err)
	}
	header.Name = name
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("writing tar header for %s: %w", name, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	// Copia exatamente o tamanho do header: se o producer apendar durante o
	// tar, os bytes extras ficam para o próximo snapshot.
	if _, err := io.CopyN(tw, f, info.Size()); err != nil {
		return fmt.Errorf("archiving %s: %w", name, err)
	}
	return nil
}
