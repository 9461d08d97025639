package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rohmanhakim/webarchiver/internal/metadata"
	"github.com/rohmanhakim/webarchiver/pkg/failure"
)

/*
Responsibilities
- Persist pages, assets and run documents under one run directory
- Ensure deterministic filenames (digest stems, extension by content)
- Create subdirectories lazily

Output Characteristics
- Stable directory layout: html/, images/, css/, js/, fonts/, media/, assets/
- Idempotent writes
- Overwrite-safe reruns
- metadata.json written atomically (temp file + rename)
*/

// Store is the persistence seam consumed by the scheduler and the
// asset resolver.
type Store interface {
	WritePage(digest string, contentType string, body []byte) (WriteResult, failure.ClassifiedError)
	WriteAsset(relPath string, body []byte) (WriteResult, failure.ClassifiedError)
	WriteManifest(manifest metadata.RunManifest) failure.ClassifiedError
	WriteJSON(name string, v interface{}) failure.ClassifiedError
	ReadFile(relPath string) ([]byte, failure.ClassifiedError)
	WriteFile(relPath string, body []byte) failure.ClassifiedError
	Root() string
}

// RunStore writes one crawl run's artifacts under root.
type RunStore struct {
	root         string
	metadataSink metadata.MetadataSink
}

func NewRunStore(root string, metadataSink metadata.MetadataSink) *RunStore {
	return &RunStore{
		root:         root,
		metadataSink: metadataSink,
	}
}

func (s *RunStore) Root() string {
	return s.root
}

// pageExtension maps a Content-Type to the stored page extension.
func pageExtension(contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "html"), strings.HasPrefix(ct, "text/"):
		return ".html"
	case strings.Contains(ct, "json"):
		return ".json"
	case strings.Contains(ct, "xml"):
		return ".xml"
	default:
		return ".txt"
	}
}

// WritePage stores a page body as html/{digest}{ext}.
func (s *RunStore) WritePage(digest string, contentType string, body []byte) (WriteResult, failure.ClassifiedError) {
	relPath := filepath.Join("html", digest+pageExtension(contentType))
	return s.writeRel("RunStore.WritePage", metadata.ArtifactHTML, relPath, body)
}

// WriteAsset stores asset bytes at the policy-computed relative path.
func (s *RunStore) WriteAsset(relPath string, body []byte) (WriteResult, failure.ClassifiedError) {
	return s.writeRel("RunStore.WriteAsset", metadata.ArtifactAsset, relPath, body)
}

// WriteFile overwrites an existing run-relative file. The link fixup
// pass uses this to rewrite stored pages in place.
func (s *RunStore) WriteFile(relPath string, body []byte) failure.ClassifiedError {
	_, err := s.writeRel("RunStore.WriteFile", metadata.ArtifactHTML, relPath, body)
	return err
}

// ReadFile reads a run-relative file back.
func (s *RunStore) ReadFile(relPath string) ([]byte, failure.ClassifiedError) {
	data, err := os.ReadFile(filepath.Join(s.root, relPath))
	if err != nil {
		return nil, &StorageError{
			Message:   err.Error(),
			Retryable: true,
			Cause:     ErrCauseReadFailure,
			Path:      relPath,
		}
	}
	return data, nil
}

// WriteManifest serializes metadata.json atomically. A crash between
// temp write and rename leaves the previous manifest (or none) intact,
// never a torn document.
func (s *RunStore) WriteManifest(manifest metadata.RunManifest) failure.ClassifiedError {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return &StorageError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseSerializationFailure,
			Path:      "metadata.json",
		}
	}

	finalPath := filepath.Join(s.root, "metadata.json")
	tmpPath := finalPath + ".tmp"

	if storageErr := s.writeBytes(tmpPath, "metadata.json", data); storageErr != nil {
		s.recordError("RunStore.WriteManifest", storageErr)
		return storageErr
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		storageErr := &StorageError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseRenameFailure,
			Path:      finalPath,
		}
		s.recordError("RunStore.WriteManifest", storageErr)
		return storageErr
	}

	s.metadataSink.RecordArtifact(
		metadata.ArtifactManifest,
		finalPath,
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrWritePath, finalPath),
		},
	)
	return nil
}

// WriteJSON stores an auxiliary document (e.g. scraped_urls.json) with
// indent-2 formatting.
func (s *RunStore) WriteJSON(name string, v interface{}) failure.ClassifiedError {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &StorageError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseSerializationFailure,
			Path:      name,
		}
	}
	fullPath := filepath.Join(s.root, name)
	if storageErr := s.writeBytes(fullPath, name, data); storageErr != nil {
		s.recordError("RunStore.WriteJSON", storageErr)
		return storageErr
	}
	s.metadataSink.RecordArtifact(
		metadata.ArtifactURLList,
		fullPath,
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrWritePath, fullPath),
		},
	)
	return nil
}

func (s *RunStore) writeRel(action string, kind metadata.ArtifactKind, relPath string, body []byte) (WriteResult, failure.ClassifiedError) {
	fullPath := filepath.Join(s.root, relPath)
	if storageErr := s.writeBytes(fullPath, relPath, body); storageErr != nil {
		s.recordError(action, storageErr)
		return WriteResult{}, storageErr
	}
	s.metadataSink.RecordArtifact(
		kind,
		fullPath,
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrWritePath, fullPath),
		},
	)
	return NewWriteResult(relPath, fullPath, int64(len(body))), nil
}

func (s *RunStore) writeBytes(fullPath string, relPath string, body []byte) *StorageError {
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return classifyWriteError(err, relPath)
	}
	if err := os.WriteFile(fullPath, body, 0644); err != nil {
		return classifyWriteError(err, relPath)
	}
	return nil
}

// classifyWriteError separates an exhausted disk, which must stop the
// run, from transient per-file failures, which only fail the page.
func classifyWriteError(err error, path string) *StorageError {
	if errors.Is(err, syscall.ENOSPC) {
		return &StorageError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseDiskFull,
			Path:      path,
		}
	}
	return &StorageError{
		Message:   err.Error(),
		Retryable: true,
		Cause:     ErrCauseWriteFailure,
		Path:      path,
	}
}

func (s *RunStore) recordError(action string, storageErr *StorageError) {
	s.metadataSink.RecordError(
		time.Now(),
		"storage",
		action,
		mapStorageErrorToMetadataCause(storageErr),
		storageErr.Error(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrWritePath, storageErr.Path),
		},
	)
}
