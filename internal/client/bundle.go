package client

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"
)

// Bundle is the single payload uploaded for a share. One plain file is sent
// as it is; anything else is zipped in memory first.
type Bundle struct {
	Name string
	Size int64

	path string // set for a plain file
	data []byte // set for an archive
}

// Open returns a reader over the bundle content.
func (b *Bundle) Open() (io.ReadCloser, error) {
	if b.path != "" {
		return os.Open(b.path)
	}
	return io.NopCloser(bytes.NewReader(b.data)), nil
}

// Archived reports whether the bundle is a zip built from several paths.
func (b *Bundle) Archived() bool {
	return b.path == ""
}

// archiveEntry maps a file on disk to its name inside the zip.
type archiveEntry struct {
	src  string
	name string
}

// NewBundle prepares paths for upload. now names the archive when several
// paths are shared at once.
func NewBundle(paths []SharePath, now time.Time) (*Bundle, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no valid paths provided")
	}

	if len(paths) == 1 && paths[0].Kind == PathFile {
		info, err := os.Stat(paths[0].FullPath)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", paths[0].FullPath, err)
		}
		return &Bundle{
			Name: filepath.Base(paths[0].FullPath),
			Size: info.Size(),
			path: paths[0].FullPath,
		}, nil
	}

	// A lone directory becomes the archive root; several paths are grouped
	// under a dated virtual root.
	root := fmt.Sprintf("upload_%s", now.Format("2006_01_02_150405"))
	if len(paths) == 1 {
		root = filepath.Base(paths[0].FullPath)
	}

	var entries []archiveEntry
	for _, p := range paths {
		prefix := root
		if len(paths) > 1 {
			prefix = path.Join(root, filepath.Base(p.FullPath))
		}
		found, err := collect(p, prefix)
		if err != nil {
			return nil, err
		}
		entries = append(entries, found...)
	}

	data, err := zipEntries(entries)
	if err != nil {
		return nil, err
	}

	return &Bundle{
		Name: root + ".zip",
		Size: int64(len(data)),
		data: data,
	}, nil
}

// collect lists the files under p, naming each relative to prefix.
func collect(p SharePath, prefix string) ([]archiveEntry, error) {
	if p.Kind == PathFile {
		return []archiveEntry{{src: p.FullPath, name: prefix}}, nil
	}

	var entries []archiveEntry
	err := filepath.WalkDir(p.FullPath, func(src string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(p.FullPath, src)
		if err != nil {
			return err
		}
		entries = append(entries, archiveEntry{src: src, name: path.Join(prefix, filepath.ToSlash(rel))})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", p.FullPath, err)
	}
	return entries, nil
}

func zipEntries(entries []archiveEntry) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, e := range entries {
		if err := addFileToZip(zw, e.src, e.name); err != nil {
			zw.Close()
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close zip writer: %w", err)
	}
	return buf.Bytes(), nil
}

func addFileToZip(zw *zip.Writer, srcPath, archivePath string) error {
	file, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", srcPath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to create zip header: %w", err)
	}
	header.Name = archivePath
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create zip entry: %w", err)
	}
	if _, err := io.Copy(w, file); err != nil {
		return fmt.Errorf("failed to write file to zip: %w", err)
	}
	return nil
}
