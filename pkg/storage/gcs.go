package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	gcs "cloud.google.com/go/storage"
)

type UploaderConfig struct {
	// DestinationURI is the upload target, e.g. "gs://bucket/videos".
	DestinationURI string
}

// Uploader writes rendered artifacts to Google Cloud Storage.
type Uploader struct {
	config UploaderConfig
	client *gcs.Client
	bucket string
	prefix string
}

func NewWithConfig(ctx context.Context, config UploaderConfig) (*Uploader, error) {
	bucket, prefix, err := ParseGSURI(config.DestinationURI)
	if err != nil {
		return nil, err
	}

	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %v", err)
	}

	return &Uploader{
		config: config,
		client: client,
		bucket: bucket,
		prefix: prefix,
	}, nil
}

// Upload copies the local file under the configured destination and
// returns its gs:// URI and public URL.
func (u *Uploader) Upload(ctx context.Context, localPath string) (string, string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", "", fmt.Errorf("failed to open artifact: %v", err)
	}
	defer f.Close()

	object := filepath.Base(localPath)
	if u.prefix != "" {
		object = u.prefix + "/" + object
	}

	w := u.client.Bucket(u.bucket).Object(object).NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return "", "", fmt.Errorf("failed to upload artifact: %v", err)
	}
	if err := w.Close(); err != nil {
		return "", "", fmt.Errorf("failed to finalize upload: %v", err)
	}

	gcsURI := fmt.Sprintf("gs://%s/%s", u.bucket, object)
	publicURL, err := PublicURL(gcsURI)
	if err != nil {
		return gcsURI, "", err
	}

	return gcsURI, publicURL, nil
}

func (u *Uploader) Close() error {
	return u.client.Close()
}

// ParseGSURI splits "gs://bucket/prefix" into bucket and prefix. The
// prefix may be empty.
func ParseGSURI(uri string) (bucket, prefix string, err error) {
	rest, ok := strings.CutPrefix(uri, "gs://")
	if !ok || rest == "" {
		return "", "", fmt.Errorf("invalid GCS URI: %q", uri)
	}

	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("invalid GCS URI: %q", uri)
	}

	return bucket, strings.Trim(prefix, "/"), nil
}

// PublicURL derives the public HTTPS URL for a gs:// object URI.
func PublicURL(gcsURI string) (string, error) {
	rest, ok := strings.CutPrefix(gcsURI, "gs://")
	if !ok {
		return "", fmt.Errorf("invalid GCS URI: %q", gcsURI)
	}

	bucket, object, found := strings.Cut(rest, "/")
	if !found || bucket == "" || object == "" {
		return "", fmt.Errorf("invalid GCS URI: %q", gcsURI)
	}

	return "https://storage.googleapis.com/" + bucket + "/" + object, nil
}
