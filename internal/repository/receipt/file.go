package receipt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/mediamtx-installer/internal/domain/install"
	"github.com/oshokin/mediamtx-installer/internal/service/common"
)

// FileMode is the permission set of the receipt file.
const FileMode os.FileMode = 0o644

// Repository defines persistence operations for the installation receipt.
type Repository interface {
	Load(ctx context.Context) (*install.Receipt, error)
	Save(ctx context.Context, receipt *install.Receipt) error
	Delete(ctx context.Context) error
	Path() string
}

// FileRepository persists the receipt as YAML on disk.
type FileRepository struct {
	// path is the filesystem location of the receipt.
	path string
	// mu protects concurrent access to the receipt file.
	mu sync.Mutex
}

// ErrNotFound is returned when no receipt exists, i.e. nothing was installed yet.
var ErrNotFound = errors.New("receipt not found")

// NewFileRepository creates a repository that reads/writes YAML at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Path returns the receipt location.
func (r *FileRepository) Path() string {
	return r.path
}

// Load reads the receipt from disk.
func (r *FileRepository) Load(_ context.Context) (*install.Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read receipt file: %w", err)
	}

	receipt := new(install.Receipt)
	if err = yaml.Unmarshal(contents, receipt); err != nil {
		return nil, fmt.Errorf("decode receipt file: %w", err)
	}

	return receipt, nil
}

// Save atomically replaces the receipt on disk.
func (r *FileRepository) Save(ctx context.Context, receipt *install.Receipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := yaml.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("encode receipt: %w", err)
	}

	if err = common.WriteFileAtomic(ctx, r.path, data, FileMode); err != nil {
		return fmt.Errorf("write receipt file: %w", err)
	}

	return nil
}

// Delete removes the receipt. A missing receipt is not an error.
func (r *FileRepository) Delete(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.Remove(r.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove receipt file: %w", err)
	}

	return nil
}
