package documents

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// MaxArchiveEntries caps the number of resumes taken from one archive.
const MaxArchiveEntries = 500

// ExtractArchive writes the supported documents of a zip archive into dir and
// returns their paths in archive order. Directories, hidden files and
// unsupported entries are skipped.
func ExtractArchive(data []byte, dir string) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip archive: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create extraction dir: %w", err)
	}

	var paths []string
	used := make(map[string]bool)
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}

		base := path.Base(f.Name)
		if strings.HasPrefix(base, ".") || strings.HasPrefix(f.Name, "__MACOSX/") || !Supported(base) {
			continue
		}
		if len(paths) == MaxArchiveEntries {
			return nil, fmt.Errorf("archive holds more than %d documents", MaxArchiveEntries)
		}

		// flatten nested folders, keeping names unique
		name := uniqueName(base, used)

		target := filepath.Join(dir, name)
		if err := extractFile(f, target); err != nil {
			return nil, err
		}
		paths = append(paths, target)
	}

	return paths, nil
}

// uniqueName returns base, or base with the lowest free numeric suffix, and
// marks the result as taken. Names compare case-insensitively.
func uniqueName(base string, used map[string]bool) string {
	name := base
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for n := 1; used[strings.ToLower(name)]; n++ {
		name = fmt.Sprintf("%s_%d%s", stem, n, ext)
	}
	used[strings.ToLower(name)] = true
	return name
}

func extractFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	defer out.Close()

	n, err := io.Copy(out, io.LimitReader(rc, MaxFileSize+1))
	if err != nil {
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}
	if n > MaxFileSize {
		return fmt.Errorf("%s exceeds %d bytes", f.Name, MaxFileSize)
	}
	return nil
}
