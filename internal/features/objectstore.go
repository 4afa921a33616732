package features

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"segue/internal/segueerr"
)

// ObjectStore is a Repository backed by an S3-compatible object store. Each
// track occupies one prefix: tracks/<id>/<object>. The summary is written
// last, so Exists (which probes the summary) only reports complete sets.
type ObjectStore struct {
	client *minio.Client
	bucket string
}

// ObjectStoreOptions configures the object store connection.
type ObjectStoreOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// NewObjectStore connects to the object store and ensures the bucket exists.
func NewObjectStore(ctx context.Context, opts ObjectStoreOptions) (*ObjectStore, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", opts.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{Region: opts.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", opts.Bucket, err)
		}
	}

	return &ObjectStore{client: client, bucket: opts.Bucket}, nil
}

func objectKey(trackID, name string) string {
	return "tracks/" + trackID + "/" + name
}

// Save implements Repository.
func (s *ObjectStore) Save(ctx context.Context, trackID string, set *FeatureSet, summary *Summary) error {
	if err := set.Validate(summary); err != nil {
		return fmt.Errorf("save features %s: %w", trackID, err)
	}
	objects, err := encodeObjects(set, summary)
	if err != nil {
		return fmt.Errorf("save features %s: %w", trackID, err)
	}

	// Vectors first, summary last: the summary object marks the set complete.
	order := []string{objectBarVectors, objectPhraseVectors, objectWaveform, objectSummary}
	for _, name := range order {
		data := objects[name]
		contentType := "application/octet-stream"
		if strings.HasSuffix(name, ".json") {
			contentType = "application/json"
		}
		_, err := s.client.PutObject(ctx, s.bucket, objectKey(trackID, name),
			bytes.NewReader(data), int64(len(data)),
			minio.PutObjectOptions{ContentType: contentType})
		if err != nil {
			return fmt.Errorf("put %s for %s: %w", name, trackID, err)
		}
	}
	return nil
}

// Load implements Repository.
func (s *ObjectStore) Load(ctx context.Context, trackID string) (*FeatureSet, *Summary, error) {
	read := func(name string) ([]byte, error) {
		obj, err := s.client.GetObject(ctx, s.bucket, objectKey(trackID, name), minio.GetObjectOptions{})
		if err != nil {
			return nil, err
		}
		defer obj.Close()
		data, err := io.ReadAll(obj)
		if err != nil {
			if isNoSuchKey(err) {
				return nil, segueerr.New(segueerr.KindNotFound, "load features", "track %s has no stored %s", trackID, name)
			}
			return nil, fmt.Errorf("read %s for %s: %w", name, trackID, err)
		}
		return data, nil
	}

	summaryData, err := read(objectSummary)
	if err != nil {
		return nil, nil, err
	}
	barData, err := read(objectBarVectors)
	if err != nil {
		return nil, nil, err
	}
	phraseData, err := read(objectPhraseVectors)
	if err != nil {
		return nil, nil, err
	}
	waveformData, err := read(objectWaveform)
	if err != nil {
		return nil, nil, err
	}

	return decodeObjects(trackID, summaryData, barData, phraseData, waveformData)
}

// Exists implements Repository.
func (s *ObjectStore) Exists(ctx context.Context, trackID string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, objectKey(trackID, objectSummary), minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat features %s: %w", trackID, err)
	}
	return true, nil
}

func isNoSuchKey(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket"
	}
	return false
}
