// Package mock provides a test double for storage.Storage.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/transcribot/pkg/storage"
)

// UploadCall records the arguments of an Upload call.
type UploadCall struct {
	LocalPath       string
	DestinationName string
}

// Storage is a mock implementation of storage.Storage.
type Storage struct {
	mu sync.Mutex

	// BaseURL prefixes the destination name in the returned URL. Defaults to
	// "https://files.example".
	BaseURL string

	// UploadErrs are returned by successive Upload calls before UploadErr
	// applies.
	UploadErrs []error

	// UploadErr, if non-nil, is returned by Upload once UploadErrs is empty.
	UploadErr error

	// DownloadErr, if non-nil, is returned by Download.
	DownloadErr error

	Uploads   []UploadCall
	Downloads []string
}

// Compile-time assertion.
var _ storage.Storage = (*Storage)(nil)

// Upload records the call and returns BaseURL + "/" + destinationName.
func (s *Storage) Upload(_ context.Context, localPath, destinationName string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Uploads = append(s.Uploads, UploadCall{LocalPath: localPath, DestinationName: destinationName})
	if len(s.UploadErrs) > 0 {
		err := s.UploadErrs[0]
		s.UploadErrs = s.UploadErrs[1:]
		return "", err
	}
	if s.UploadErr != nil {
		return "", s.UploadErr
	}
	base := s.BaseURL
	if base == "" {
		base = "https://files.example"
	}
	return base + "/" + destinationName, nil
}

// Download records the object name and returns DownloadErr.
func (s *Storage) Download(_ context.Context, objectName, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Downloads = append(s.Downloads, objectName)
	return s.DownloadErr
}

// UploadCount returns the number of Upload calls. Thread-safe.
func (s *Storage) UploadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Uploads)
}
