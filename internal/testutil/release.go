// Package testutil builds fake release archives and release hosts for tests.
package testutil

import (
	"archive/tar"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/gzip"

	"am/internal/domain"
)

// BuildArchive returns a gzip tar whose entries live under the target's
// top-level archive directory.
func BuildArchive(t testing.TB, target domain.InstallTarget, files map[string][]byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	if err := tw.WriteHeader(&tar.Header{Name: target.ArchiveDir() + "/", Typeflag: tar.TypeDir, Mode: 0o755}); err != nil {
		t.Fatalf("write dir header: %v", err)
	}
	for _, name := range names {
		data := files[name]
		hdr := &tar.Header{
			Name:     target.ArchiveDir() + "/" + name,
			Typeflag: tar.TypeReg,
			Mode:     0o644,
			Size:     int64(len(data)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write header %s: %v", name, err)
		}
		if _, err := tw.Write(data); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return buf.Bytes()
}

// Checksum returns a sha256sums.txt line for data.
func Checksum(name string, data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%s  %s\n", hex.EncodeToString(sum[:]), name)
}

// ReleaseHost is an httptest server that serves one release archive and
// its checksum file the way GitHub release downloads are laid out.
type ReleaseHost struct {
	*httptest.Server
	ArchiveHits  atomic.Int32
	ChecksumHits atomic.Int32
}

// NewReleaseHost serves archive and checksums for target. It is closed
// when the test ends.
func NewReleaseHost(t testing.TB, target domain.InstallTarget, archive []byte, checksums string) *ReleaseHost {
	t.Helper()

	h := &ReleaseHost{}
	mux := http.NewServeMux()
	base := fmt.Sprintf("/%s/%s/releases/download/v%s/", target.Owner, target.Repo, target.Version)
	mux.HandleFunc(base+target.ArchiveName(), func(w http.ResponseWriter, r *http.Request) {
		h.ArchiveHits.Add(1)
		_, _ = w.Write(archive)
	})
	mux.HandleFunc(base+"sha256sums.txt", func(w http.ResponseWriter, r *http.Request) {
		h.ChecksumHits.Add(1)
		_, _ = w.Write([]byte(checksums))
	})
	h.Server = httptest.NewServer(mux)
	t.Cleanup(h.Server.Close)
	return h
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
