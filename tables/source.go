package tables

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"google.golang.org/api/option"
)

// Location schemes
const (
	SchemeLocal = "file"
	SchemeS3    = "s3"
	SchemeGCS   = "gs"
)

// Location is a parsed table reference.
type Location struct {
	Ref    string
	Scheme string
	Bucket string
	// Key is the object key, or the local path
	Key string
}

// ParseRef parses s3://bucket/key, gs://bucket/key or a local path.
func ParseRef(ref string) (Location, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Location{}, fmt.Errorf("%w: empty reference", ErrSourceNotAllowed)
	}
	scheme, rest, found := strings.Cut(ref, "://")
	if !found {
		return Location{Ref: ref, Scheme: SchemeLocal, Key: strings.TrimPrefix(ref, "file:")}, nil
	}

	scheme = strings.ToLower(scheme)
	switch scheme {
	case SchemeS3, SchemeGCS:
	case SchemeLocal:
		return Location{Ref: ref, Scheme: SchemeLocal, Key: rest}, nil
	default:
		return Location{}, fmt.Errorf("%w: scheme %q", ErrSourceNotAllowed, scheme)
	}

	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return Location{}, fmt.Errorf("%w: %s needs a bucket and a key", ErrSourceNotAllowed, ref)
	}
	return Location{Ref: ref, Scheme: scheme, Bucket: bucket, Key: key}, nil
}

// Source opens table bytes. size is the declared size, or -1 when unknown.
type Source interface {
	Open(ctx context.Context, loc Location) (rc io.ReadCloser, size int64, err error)
}

// LocalSource reads files confined to a root directory.
type LocalSource struct {
	Root string
}

// Resolve returns the absolute path of key under the root, refusing anything outside it.
func (s LocalSource) Resolve(key string) (string, error) {
	if s.Root == "" {
		return "", fmt.Errorf("%w: local tables are disabled", ErrSourceNotAllowed)
	}
	for _, part := range strings.FieldsFunc(key, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return "", fmt.Errorf("%w: path traversal in %s", ErrSourceNotAllowed, key)
		}
	}

	root, err := filepath.Abs(s.Root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve table root: %w", err)
	}
	path := filepath.Clean(key)
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is outside %s", ErrSourceNotAllowed, key, root)
	}
	return path, nil
}

// Open implements Source
func (s LocalSource) Open(ctx context.Context, loc Location) (io.ReadCloser, int64, error) {
	path, err := s.Resolve(loc.Key)
	if err != nil {
		return nil, 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to stat %s: %w", loc.Ref, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open %s: %w", loc.Ref, err)
	}
	return f, info.Size(), nil
}

// S3Source reads objects from S3. The session is created on first use.
type S3Source struct {
	Region string

	once   sync.Once
	client *s3.S3
	err    error
}

func (s *S3Source) init() {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(s.Region),
	})
	if err != nil {
		s.err = fmt.Errorf("failed to create AWS session: %w", err)
		return
	}
	s.client = s3.New(sess)
}

// Open implements Source
func (s *S3Source) Open(ctx context.Context, loc Location) (io.ReadCloser, int64, error) {
	s.once.Do(s.init)
	if s.err != nil {
		return nil, 0, s.err
	}
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get %s: %w", loc.Ref, err)
	}
	size := int64(-1)
	if out.ContentLength != nil {
		size = aws.Int64Value(out.ContentLength)
	}
	return out.Body, size, nil
}

// GCSSource reads objects from Google Cloud Storage. The client is created on first use.
type GCSSource struct {
	CredentialsFile string

	once   sync.Once
	client *storage.Client
	err    error
}

func (s *GCSSource) init(ctx context.Context) {
	var opts []option.ClientOption
	if s.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(s.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		s.err = fmt.Errorf("failed to create storage client: %w", err)
		return
	}
	s.client = client
}

// Open implements Source
func (s *GCSSource) Open(ctx context.Context, loc Location) (io.ReadCloser, int64, error) {
	s.once.Do(func() { s.init(context.WithoutCancel(ctx)) })
	if s.err != nil {
		return nil, 0, s.err
	}
	r, err := s.client.Bucket(loc.Bucket).Object(loc.Key).NewReader(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read %s: %w", loc.Ref, err)
	}
	return r, r.Attrs.Size, nil
}

// Close releases the storage client.
func (s *GCSSource) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
