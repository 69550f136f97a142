// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Flo License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package snapshot

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"

	"github.com/nishisan-dev/flo/internal/config"
)

func writeNamespaceDir(t *testing.T, root string, content []byte) string {
	t.Helper()
	nsDir := filepath.Join(root, "default")
	if err := os.MkdirAll(nsDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(nsDir, "events"), content, 0644); err != nil {
		t.Fatalf("writing events file: %v", err)
	}
	return nsDir
}

func readArchive(t *testing.T, path, mode string) map[string][]byte {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening snapshot: %v", err)
	}
	defer f.Close()

	var decompressed io.Reader
	switch mode {
	case "zst":
		zr, err := zstd.NewReader(f)
		if err != nil {
			t.Fatalf("zstd reader: %v", err)
		}
		defer zr.Close()
		decompressed = zr
	default:
		gz, err := pgzip.NewReader(f)
		if err != nil {
			t.Fatalf("gzip reader: %v", err)
		}
		defer gz.Close()
		decompressed = gz
	}

	files := make(map[string][]byte)
	tr := tar.NewReader(decompressed)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("tar next: %v", err)
		}
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, tr); err != nil {
			t.Fatalf("tar read: %v", err)
		}
		files[header.Name] = buf.Bytes()
	}
	return files
}

func TestCreate_GzipSnapshot(t *testing.T) {
	root := t.TempDir()
	content := []byte("FLO_EVT\nfake log bytes for the archive")
	nsDir := writeNamespaceDir(t, root, content)

	cfg := config.SnapshotConfig{CompressionMode: "gzip", MaxSnapshots: 5}
	baseDir := filepath.Join(root, "snapshots")

	path, err := Create(nsDir, cfg, baseDir)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.HasSuffix(path, ".tar.gz") {
		t.Errorf("snapshot path = %q, want .tar.gz suffix", path)
	}

	files := readArchive(t, path, "gzip")
	if !bytes.Equal(files["events"], content) {
		t.Errorf("archived events file mismatch: %q", files["events"])
	}

	// Nenhum .tmp sobrando no diretório.
	entries, _ := os.ReadDir(filepath.Dir(path))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("leftover temp file: %s", e.Name())
		}
	}
}

func TestCreate_ZstdSnapshot(t *testing.T) {
	root := t.TempDir()
	content := []byte("zstd flavored log content")
	nsDir := writeNamespaceDir(t, root, content)

	cfg := config.SnapshotConfig{CompressionMode: "zst", MaxSnapshots: 5}
	path, err := Create(nsDir, cfg, filepath.Join(root, "snapshots"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.HasSuffix(path, ".tar.zst") {
		t.Errorf("snapshot path = %q, want .tar.zst suffix", path)
	}

	files := readArchive(t, path, "zst")
	if !bytes.Equal(files["events"], content) {
		t.Errorf("archived events file mismatch: %q", files["events"])
	}
}

func TestRotate_KeepsNewest(t *testing.T) {
	dir := t.TempDir()

	names := []string{
		"2026-01-01T00-00-00-000.tar.gz",
		"2026-01-02T00-00-00-000.tar.gz",
		"2026-01-03T00-00-00-000.tar.gz",
		"2026-01-04T00-00-00-000.tar.gz",
	}
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
	// Arquivo de outra extensão não conta para a rotação.
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0644)

	if err := Rotate(dir, 2, ".tar.gz"); err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}

	var kept []string
	for _, e := range entries {
		kept = append(kept, e.Name())
	}
	want := map[string]bool{
		"2026-01-03T00-00-00-000.tar.gz": true,
		"2026-01-04T00-00-00-000.tar.gz": true,
		"notes.txt":                      true,
	}
	if len(kept) != len(want) {
		t.Fatalf("kept files = %v", kept)
	}
	for _, name := range kept {
		if !want[name] {
			t.Errorf("unexpected survivor %s", name)
		}
	}
}
