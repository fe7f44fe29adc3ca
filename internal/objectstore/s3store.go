package objectstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Store is a dev/test parity backend for Store, used in place of IPFS
// when object_store_backend is configured to "s3". Objects are keyed by
// the SHA-256 of their ciphertext, matching a content-addressed store's
// semantics: identical ciphertext uploads to the same key and Upload is
// naturally idempotent.
type S3Store struct {
	bucket   string
	prefix   string
	client   *s3.Client
	uploader *manager.Uploader
}

// NewS3Store creates an S3Store. Region and credentials are resolved the
// usual way (AWS_REGION, AWS_PROFILE, AWS_ACCESS_KEY_ID/SECRET, or an
// attached role); prefix may be empty.
func NewS3Store(ctx context.Context, bucket, prefix string) (*S3Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("objectstore: s3 bucket required")
	}
	cfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("objectstore: load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3Store{
		bucket:   bucket,
		prefix:   prefix,
		client:   client,
		uploader: manager.NewUploader(client),
	}, nil
}

// Upload buffers the stream to compute its content hash (the key cannot
// be known before the body is fully read), then uploads under that key
// with SSE-S3 enabled.
func (s *S3Store) Upload(ctx context.Context, r io.Reader) (string, error) {
	hasher := sha256.New()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.TeeReader(r, hasher)); err != nil {
		return "", fmt.Errorf("objectstore: buffer upload body: %w", err)
	}
	key := s.objectKey(hex.EncodeToString(hasher.Sum(nil)))

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(buf.Bytes()),
		ContentType:          aws.String("application/octet-stream"),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return "", fmt.Errorf("objectstore: s3 upload failed: %w", err)
	}
	return "s3://" + s.bucket + "/" + key, nil
}

func (s *S3Store) Fetch(ctx context.Context, cid string) (io.ReadCloser, error) {
	key, err := s.keyFromCID(cid)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: s3 get failed: %w", err)
	}
	return out.Body, nil
}

func (s *S3Store) objectKey(hash string) string {
	if s.prefix == "" {
		return hash
	}
	return strings.TrimRight(s.prefix, "/") + "/" + hash
}

func (s *S3Store) keyFromCID(cid string) (string, error) {
	rest := strings.TrimPrefix(cid, "s3://")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] != s.bucket {
		return "", fmt.Errorf("objectstore: cid %q does not belong to bucket %q", cid, s.bucket)
	}
	return parts[1], nil
}
