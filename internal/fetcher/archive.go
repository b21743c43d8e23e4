package fetcher

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"
)

var errUnsafeArchivePath = errors.New("archive member escapes extraction directory")

// extractArchive unpacks a tarball into destDir and returns the slash-separated
// relative paths of the extracted regular files. Member names are rejected when
// they are absolute or traverse outside destDir.
func extractArchive(archivePath, destDir string) ([]string, error) {
	f, err := os.Open(filepath.Clean(archivePath))
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = f.Close()
	}()

	decompressed, closeReader, err := decompress(f, archivePath)
	if err != nil {
		return nil, err
	}
	defer closeReader()

	var members []string

	reader := tar.NewReader(decompressed)

	for {
		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("read archive: %w", err)
		}

		name := filepath.Clean(filepath.FromSlash(header.Name))
		if filepath.IsAbs(name) || strings.HasPrefix(name, "..") {
			return nil, fmt.Errorf("%q: %w", header.Name, errUnsafeArchivePath)
		}

		outputPath := filepath.Join(destDir, name)

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(outputPath, 0o755); err != nil {
				return nil, err
			}
		case tar.TypeReg:
			if err := writeMember(reader, outputPath, header.FileInfo().Mode().Perm()); err != nil {
				return nil, err
			}

			members = append(members, filepath.ToSlash(name))
		default:
			// Symlinks and special files have no place in fetched sources.
			continue
		}
	}

	return members, nil
}

// decompress picks the decompressor from the archive file name.
func decompress(f io.Reader, archivePath string) (io.Reader, func(), error) {
	switch {
	case strings.HasSuffix(archivePath, ".tar.gz"), strings.HasSuffix(archivePath, ".tgz"):
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, nil, fmt.Errorf("open gzip stream: %w", err)
		}

		return gz, func() { _ = gz.Close() }, nil
	case strings.HasSuffix(archivePath, ".tar.xz"):
		xzReader, err := xz.NewReader(f)
		if err != nil {
			return nil, nil, fmt.Errorf("open xz stream: %w", err)
		}

		return xzReader, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported archive %q", archivePath)
	}
}

// writeMember stores a single tar member on disk with its recorded mode.
func writeMember(reader io.Reader, outputPath string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}

	output, err := os.OpenFile(filepath.Clean(outputPath), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}

	if _, err = io.Copy(output, reader); err != nil {
		_ = output.Close()
		return err
	}

	return output.Close()
}
