package capability

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	apperrors "resumind/internal/errors"
	"resumind/internal/types"
	"resumind/internal/utils"
)

// localFS stores objects on the local filesystem under baseDir. Storage
// keys are paths relative to baseDir; a random prefix keeps repeated
// uploads of the same file name from colliding.
type localFS struct {
	baseDir string
	logger  *apperrors.Logger
}

func newLocalFS(baseDir string, logger *apperrors.Logger) (*localFS, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, apperrors.NewIOError(apperrors.ErrCodeUploadFailed,
			"Failed to create storage directory", err).
			WithContext("dir", baseDir)
	}
	return &localFS{baseDir: baseDir, logger: logger}, nil
}

// BaseDir exposes the storage root, used by the directory watcher.
func (l *localFS) BaseDir() string { return l.baseDir }

func (l *localFS) Write(ctx context.Context, file types.File) (*types.FileDescriptor, error) {
	data, err := file.Bytes(ctx)
	if err != nil {
		return nil, apperrors.NewIOError(apperrors.ErrCodeFileNotReadable,
			"Failed to read file content", err).
			WithContext("file", file.Name())
	}

	sanitized, err := utils.SanitizeFileName(file.Name())
	if err != nil {
		return nil, apperrors.NewValidationError(apperrors.ErrCodeInvalidInput,
			"Invalid file name", err)
	}

	finalName := fmt.Sprintf("%s_%s", uuid.NewString(), sanitized)
	fullPath := filepath.Join(l.baseDir, finalName)

	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return nil, apperrors.NewIOError(apperrors.ErrCodeUploadFailed,
			"Failed to write file", err).
			WithContext("path", fullPath)
	}

	if l.logger != nil {
		l.logger.Debug("Stored file",
			"name", finalName,
			"size", utils.FormatFileSize(int64(len(data))))
	}

	return &types.FileDescriptor{
		Path: finalName,
		Name: file.Name(),
		Size: int64(len(data)),
	}, nil
}

func (l *localFS) Upload(ctx context.Context, files []types.File) (*types.FileDescriptor, error) {
	if len(files) == 0 {
		return nil, apperrors.NewValidationError(apperrors.ErrCodeInvalidInput,
			"No files to upload", nil)
	}
	var first *types.FileDescriptor
	for _, f := range files {
		fd, err := l.Write(ctx, f)
		if err != nil {
			return nil, err
		}
		if first == nil {
			first = fd
		}
	}
	return first, nil
}

func (l *localFS) Read(ctx context.Context, path string) (*types.FileBlob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full, err := l.resolve(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NewIOError(apperrors.ErrCodeFileNotFound,
				"File not found", err).WithContext("path", path)
		}
		return nil, apperrors.NewIOError(apperrors.ErrCodeFileNotReadable,
			"Failed to read file", err).WithContext("path", path)
	}

	return &types.FileBlob{
		FileName: filepath.Base(path),
		MIME:     http.DetectContentType(data),
		Data:     data,
	}, nil
}

func (l *localFS) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := l.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return apperrors.NewIOError(apperrors.ErrCodeFileNotReadable,
			"Failed to delete file", err).WithContext("path", path)
	}
	return nil
}

func (l *localFS) ReadDir(ctx context.Context, dir string) ([]types.FileDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	root := l.baseDir
	if dir != "" && dir != "." && dir != "/" {
		full, err := l.resolve(dir)
		if err != nil {
			return nil, err
		}
		root = full
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.NewIOError(apperrors.ErrCodeFileNotReadable,
			"Failed to list directory", err).WithContext("dir", dir)
	}

	var out []types.FileDescriptor
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		var info fs.FileInfo
		if info, err = e.Info(); err != nil {
			continue
		}
		rel := e.Name()
		if root != l.baseDir {
			rel = filepath.Join(dir, e.Name())
		}
		out = append(out, types.FileDescriptor{
			Path: rel,
			Name: e.Name(),
			Size: info.Size(),
		})
	}
	return out, nil
}

// resolve maps a storage key to an absolute path, rejecting traversal.
func (l *localFS) resolve(path string) (string, error) {
	clean := filepath.Clean(path)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", apperrors.NewValidationError(apperrors.ErrCodeInvalidInput,
			"Invalid storage path", nil).WithContext("path", path)
	}
	return filepath.Join(l.baseDir, clean), nil
}

var _ FileSystem = (*localFS)(nil)
