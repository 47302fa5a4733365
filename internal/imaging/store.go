// Package imaging stores project images and renders marker overlays.
package imaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/Alyfish/spacestest-v0-mvp/internal/projects/domain"
)

// MaxImageBytes bounds uploads and remote fetches.
const MaxImageBytes = 20 << 20

var ErrImageNotFound = errors.New("image not found")

// FileStore keeps images under root as projects/{id}/{name}. References that
// are http(s) URLs are fetched instead, which is how product images arrive.
type FileStore struct {
	root   string
	client *http.Client
}

func NewFileStore(root string, client *http.Client) (*FileStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("image store root is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create image root: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &FileStore{root: root, client: client}, nil
}

// Save writes data and returns its reference. The write is atomic: readers
// never see a partial file.
func (s *FileStore) Save(ctx context.Context, projectID, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if name != path.Base(name) || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", domain.InvalidInput("invalid image name %q", name)
	}
	ref := path.Join("projects", projectID, name)
	full, err := s.resolve(ref)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create project image dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp image: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close image: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("commit image: %w", err)
	}
	return ref, nil
}

func (s *FileStore) Load(ctx context.Context, ref string) ([]byte, error) {
	if IsRemote(ref) {
		return s.fetch(ctx, ref)
	}
	full, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrImageNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", ref, err)
	}
	return data, nil
}

// DeleteProject removes every stored image of a project.
func (s *FileStore) DeleteProject(ctx context.Context, projectID string) error {
	dir, err := s.resolve(path.Join("projects", projectID))
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete project images: %w", err)
	}
	return nil
}

func (s *FileStore) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", err)
	}
	req.Header.Set("User-Agent", "spaces-backend/1.0")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrImageNotFound, url)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("fetch image %s: status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", url, err)
	}
	if len(data) > MaxImageBytes {
		return nil, fmt.Errorf("image %s exceeds %d bytes", url, MaxImageBytes)
	}
	return data, nil
}

// resolve maps a reference to a path under root, rejecting escapes.
func (s *FileStore) resolve(ref string) (string, error) {
	clean := path.Clean("/" + strings.TrimPrefix(ref, "data/"))
	full := filepath.Join(s.root, filepath.FromSlash(clean))
	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", domain.InvalidInput("image reference %q escapes the store", ref)
	}
	return full, nil
}

func IsRemote(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// Sniff returns the file extension for a supported image payload.
func Sniff(data []byte) (string, error) {
	if len(data) == 0 {
		return "", domain.InvalidInput("image is empty")
	}
	if len(data) > MaxImageBytes {
		return "", domain.InvalidInput("image exceeds %d bytes", MaxImageBytes)
	}
	switch ct := http.DetectContentType(data); ct {
	case "image/png":
		return ".png", nil
	case "image/jpeg":
		return ".jpg", nil
	case "image/webp":
		return ".webp", nil
	case "image/gif":
		return ".gif", nil
	default:
		return "", domain.InvalidInput("unsupported image type %s", ct)
	}
}
