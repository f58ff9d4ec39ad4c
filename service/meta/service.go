// Package meta loads declarative resources (workflow definitions) from any
// afs-supported location and decodes them from YAML, expanding ${env.KEY}
// expressions beforehand.
package meta

import (
	"context"
	"fmt"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/viant/afs/url"
	"gopkg.in/yaml.v3"
)

// Service resolves and decodes YAML resources.
type Service struct {
	fs      afs.Service
	baseURL string
	options []storage.Option
}

// Load downloads the resource at location (resolved against the base URL when
// relative), expands environment expressions and unmarshals it into target.
func (s *Service) Load(ctx context.Context, location string, target interface{}) error {
	data, err := s.fs.DownloadWithURL(ctx, s.resolve(location), s.options...)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", location, err)
	}
	expanded := ExpandEnv(string(data))
	if err = yaml.Unmarshal([]byte(expanded), target); err != nil {
		return fmt.Errorf("failed to decode %s: %w", location, err)
	}
	return nil
}

func (s *Service) resolve(location string) string {
	if s.baseURL == "" || strings.Contains(location, "://") || strings.HasPrefix(location, "/") {
		return location
	}
	return url.Join(s.baseURL, location)
}

// New creates a meta service. An empty baseURL leaves locations untouched.
func New(fs afs.Service, baseURL string, options ...storage.Option) *Service {
	return &Service{fs: fs, baseURL: baseURL, options: options}
}
