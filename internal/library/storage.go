package library

import (
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ErrOutsideRoot is returned for paths that escape the storage directories
var ErrOutsideRoot = errors.New("path escapes storage directory")

// Storage maps stored names onto the upload and thumbnail directories
type Storage struct {
	uploadDir    string
	thumbnailDir string
}

// NewStorage creates the storage directories if needed
func NewStorage(uploadDir, thumbnailDir string) (*Storage, error) {
	for _, dir := range []string{uploadDir, thumbnailDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "failed to create directory %s", dir)
		}
	}
	return &Storage{uploadDir: uploadDir, thumbnailDir: thumbnailDir}, nil
}

func (s *Storage) UploadDir() string    { return s.uploadDir }
func (s *Storage) ThumbnailDir() string { return s.thumbnailDir }

// VideoPath resolves a stored video path (slash separated, relative to the
// upload directory) to a file system path
func (s *Storage) VideoPath(rel string) (string, error) {
	return resolve(s.uploadDir, rel)
}

// ThumbnailPath resolves a thumbnail name inside the thumbnail directory
func (s *Storage) ThumbnailPath(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return "", ErrOutsideRoot
	}
	return resolve(s.thumbnailDir, name)
}

func resolve(root, rel string) (string, error) {
	cleaned := path.Clean("/" + strings.ReplaceAll(rel, `\`, "/"))
	if cleaned == "/" {
		return "", ErrOutsideRoot
	}
	full := filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(cleaned, "/")))

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve storage root")
	}
	absFull, err := filepath.Abs(full)
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve path")
	}
	if !strings.HasPrefix(absFull, absRoot+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}
	return full, nil
}

// Save copies src into the file at dst, creating parent directories
func (s *Storage) Save(dst string, src io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, errors.Wrap(err, "failed to create upload directory")
	}

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to create %s", filepath.Base(dst))
	}

	n, err := io.Copy(f, src)
	if err != nil {
		f.Close()
		os.Remove(dst)
		return 0, errors.Wrapf(err, "failed to write %s", filepath.Base(dst))
	}
	if err := f.Close(); err != nil {
		os.Remove(dst)
		return 0, errors.Wrapf(err, "failed to close %s", filepath.Base(dst))
	}
	return n, nil
}

// Remove deletes a file; a missing file is not an error
func (s *Storage) Remove(p string) error {
	if p == "" {
		return nil
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to remove %s", filepath.Base(p))
	}
	return nil
}

// RemoveDirIfEmpty removes a series folder once its last file is gone. It
// never removes the upload directory itself.
func (s *Storage) RemoveDirIfEmpty(dir string) (bool, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false, errors.Wrap(err, "failed to resolve directory")
	}
	absRoot, err := filepath.Abs(s.uploadDir)
	if err != nil {
		return false, errors.Wrap(err, "failed to resolve upload directory")
	}
	if absDir == absRoot || !strings.HasPrefix(absDir, absRoot+string(filepath.Separator)) {
		return false, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrap(err, "failed to read series directory")
	}
	if len(entries) > 0 {
		return false, nil
	}
	if err := os.Remove(dir); err != nil {
		return false, errors.Wrap(err, "failed to remove series directory")
	}
	return true, nil
}
