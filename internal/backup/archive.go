package backup

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

// WriteArchive streams every regular file under sourceDir into a zip written
// to w, at best compression. Entry names are relative to sourceDir.
func WriteArchive(w io.Writer, sourceDir string) error {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	err := filepath.WalkDir(sourceDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}

		header := &zip.FileHeader{
			Name:     filepath.ToSlash(rel),
			Method:   zip.Deflate,
			Modified: info.ModTime(),
		}
		dst, err := zw.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("create archive entry %s: %w", rel, err)
		}

		src, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer src.Close()

		if _, err := io.Copy(dst, src); err != nil {
			return fmt.Errorf("compress %s: %w", rel, err)
		}
		return nil
	})
	if err != nil {
		zw.Close()
		return err
	}

	return zw.Close()
}

// BuildArchive writes the archive to outPath and returns its final size.
// A partial file is removed on failure.
func BuildArchive(sourceDir, outPath string) (int64, error) {
	out, err := os.Create(outPath)
	if err != nil {
		return 0, fmt.Errorf("create archive %s: %w", outPath, err)
	}

	if err := WriteArchive(out, sourceDir); err != nil {
		out.Close()
		os.Remove(outPath)
		return 0, err
	}
	if err := out.Close(); err != nil {
		os.Remove(outPath)
		return 0, fmt.Errorf("finalize archive %s: %w", outPath, err)
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return 0, fmt.Errorf("stat archive %s: %w", outPath, err)
	}
	return info.Size(), nil
}
