package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path"
	"strings"
	"sync"

	"github.com/stepflow/stepflow/model/execution"
	"github.com/stepflow/stepflow/service/dao"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/option"
	"github.com/viant/afs/url"
)

// Service implements a filesystem-backed archive of settled execution
// results, persisted as JSON at any afs-supported location (local disk, s3,
// gs, mem).
type Service struct {
	baseURL string
	fs      afs.Service
	mu      sync.RWMutex
}

// Ensure Service implements dao.Service
var _ dao.Service[string, execution.Result] = (*Service)(nil)

// Save persists a result as JSON under <baseURL>/<instanceID>.json.
func (s *Service) Save(ctx context.Context, result *execution.Result) error {
	if result == nil {
		return dao.ErrNilEntity
	}
	if result.InstanceID == "" {
		return dao.ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	location := s.resultURL(result.InstanceID)
	if err = s.fs.Upload(ctx, location, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to save result to %s: %w", location, err)
	}
	return nil
}

// Load retrieves a result by instance id.
func (s *Service) Load(ctx context.Context, id string) (*execution.Result, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	location := s.resultURL(id)
	exists, err := s.fs.Exists(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to check if result exists: %w", err)
	}
	if !exists {
		return nil, dao.ErrNotFound
	}
	data, err := s.fs.DownloadWithURL(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to read result file: %w", err)
	}
	var result execution.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result data: %w", err)
	}
	return &result, nil
}

// Delete removes an archived result.
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return dao.ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	location := s.resultURL(id)
	exists, err := s.fs.Exists(ctx, location)
	if err != nil {
		return fmt.Errorf("failed to check if result exists: %w", err)
	}
	if !exists {
		return dao.ErrNotFound
	}
	if err := s.fs.Delete(ctx, location); err != nil {
		return fmt.Errorf("failed to delete result file: %w", err)
	}
	return nil
}

// List returns all archived results. Parameter filtering is not implemented
// for the filesystem store.
func (s *Service) List(ctx context.Context, _ ...*dao.Parameter) ([]*execution.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	objects, err := s.fs.List(ctx, s.baseURL, option.NewRecursive(true))
	if err != nil {
		return nil, fmt.Errorf("failed to list result files: %w", err)
	}
	var results []*execution.Result
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), ".json") {
			continue
		}
		data, err := s.fs.Download(ctx, object)
		if err != nil {
			log.Printf("failed to read result file %s: %v", object.URL(), err)
			continue
		}
		result := &execution.Result{}
		if err := json.Unmarshal(data, result); err != nil {
			log.Printf("failed to unmarshal result file %s: %v", object.URL(), err)
			continue
		}
		results = append(results, result)
	}
	return results, nil
}

func (s *Service) resultURL(id string) string {
	return url.Join(s.baseURL, path.Clean(id)+".json")
}

// New creates a filesystem-backed archive rooted at baseURL.
func New(baseURL string) *Service {
	return &Service{baseURL: baseURL, fs: afs.New()}
}
