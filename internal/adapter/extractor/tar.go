package extractor

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"am/internal/domain"
)

// adjacentFiles are copied next to the binary when the archive has them.
var adjacentFiles = map[string]bool{
	"LICENSE": true,
	"NOTICE":  true,
}

// TarExtractor unpacks gzip-compressed release tarballs.
type TarExtractor struct {
	logger domain.Logger
}

// NewTarExtractor creates an extractor.
func NewTarExtractor(logger domain.Logger) *TarExtractor {
	return &TarExtractor{logger: logger}
}

// Extract copies the target binary and adjacent files from archivePath into
// targetDir, stripping the archive's top-level directory. targetDir must
// already exist; callers extract into a staging directory and rename it.
func (e *TarExtractor) Extract(archivePath string, target domain.InstallTarget, targetDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return &domain.UnpackError{Archive: target.ArchiveName(), Err: err}
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return &domain.UnpackError{Archive: target.ArchiveName(), Err: fmt.Errorf("gzip: %w", err)}
	}
	defer gz.Close()

	e.logger.Debug("extracting archive", "archive", target.ArchiveName(), "target", targetDir)

	prefix := target.ArchiveDir() + "/"
	binName := target.BinaryName()
	foundBinary := false

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return &domain.UnpackError{Archive: target.ArchiveName(), Err: fmt.Errorf("tar: %w", err)}
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		name := path.Clean(strings.TrimPrefix(hdr.Name, "./"))
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		rel := strings.TrimPrefix(name, prefix)

		var mode os.FileMode
		switch {
		case rel == binName:
			mode = 0o755
		case adjacentFiles[rel]:
			mode = 0o644
		default:
			continue
		}

		if err := writeFile(filepath.Join(targetDir, rel), tr, mode); err != nil {
			return &domain.UnpackError{Archive: target.ArchiveName(), Err: err}
		}
		if rel == binName {
			foundBinary = true
		}
	}

	if !foundBinary {
		return &domain.UnpackError{
			Archive: target.ArchiveName(),
			Err:     fmt.Errorf("archive has no %s%s", prefix, binName),
		}
	}
	return nil
}

func writeFile(dest string, r io.Reader, mode os.FileMode) error {
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(dest), err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(dest), err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(dest), err)
	}
	// OpenFile honours the umask; make the mode explicit.
	return os.Chmod(dest, mode)
}
