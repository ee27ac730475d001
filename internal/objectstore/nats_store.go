// Package objectstore stores voiceover artifacts (winning audio, batch
// reports) in a NATS JetStream object store bucket. Keys are prefixed by
// disposition ("completed/...", "needs_review/...") so reviewers can list
// just the items that need attention.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// VoiceoverStore implements core.ObjectStore on a JetStream bucket.
type VoiceoverStore struct {
	bucket string
	store  nats.ObjectStore
}

// New creates the bucket if it does not exist yet and binds to it.
func New(jetstreamContext nats.JetStreamContext, bucketName string) (*VoiceoverStore, error) {
	store, err := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Voiceover artifacts for the %s bucket.", bucketName),
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) {
			return nil, fmt.Errorf("failed to create object store bucket '%s': %w", bucketName, err)
		}

		store, err = jetstreamContext.ObjectStore(bucketName)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to existing object store bucket '%s': %w", bucketName, err)
		}
	}

	return &VoiceoverStore{
		bucket: bucketName,
		store:  store,
	}, nil
}

// Download retrieves one artifact by key.
func (s *VoiceoverStore) Download(_ context.Context, key string) ([]byte, error) {
	obj, err := s.store.Get(key)
	if err != nil {
		return nil, fmt.Errorf("failed to get object '%s' from bucket '%s': %w", key, s.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()

	if readErr != nil {
		return nil, fmt.Errorf("failed to read object '%s': %w", key, readErr)
	}

	if closeErr != nil {
		return data, fmt.Errorf("failed to close object '%s': %w", key, closeErr)
	}

	return data, nil
}

// Upload saves one artifact under key, replacing any previous version.
func (s *VoiceoverStore) Upload(_ context.Context, key string, data []byte) error {
	_, err := s.store.Put(&nats.ObjectMeta{Name: key}, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to put object '%s' to bucket '%s': %w", key, s.bucket, err)
	}

	return nil
}

// List returns the keys under a disposition prefix, e.g. "needs_review/".
// An empty prefix lists the whole bucket. A bucket with no objects yet is not
// an error; it lists empty.
func (s *VoiceoverStore) List(_ context.Context, prefix string) ([]string, error) {
	infos, err := s.store.List()
	if err != nil {
		if errors.Is(err, nats.ErrNoObjectsFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to list bucket '%s': %w", s.bucket, err)
	}

	var keys []string

	for _, info := range infos {
		if info.Deleted {
			continue
		}

		if strings.HasPrefix(info.Name, prefix) {
			keys = append(keys, info.Name)
		}
	}

	return keys, nil
}
