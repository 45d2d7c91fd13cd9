package blobsvc

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pkg/errors"

	"github.com/trezcool/pueriangeli/core"
)

// s3API is the part of *s3.Client the store uses.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type s3Store struct {
	client s3API
	bucket string
	prefix string
}

var _ core.BlobStore = (*s3Store)(nil) // interface compliance check

// NewS3Store loads the default AWS credentials chain and stores blobs in conf.Bucket under conf.Prefix.
func NewS3Store(ctx context.Context, conf core.DocumentsConfig) (core.BlobStore, error) {
	if conf.Bucket == "" {
		return nil, errors.New("documents bucket is required for S3 storage")
	}
	awsConf, err := config.LoadDefaultConfig(ctx, config.WithRegion(conf.Region))
	if err != nil {
		return nil, errors.Wrap(err, "loading AWS config")
	}
	return newS3Store(s3.NewFromConfig(awsConf), conf.Bucket, conf.Prefix), nil
}

func newS3Store(client s3API, bucket, prefix string) *s3Store {
	return &s3Store{client: client, bucket: bucket, prefix: prefix}
}

func (st *s3Store) key(key string) *string { return aws.String(st.prefix + key) }

func (st *s3Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	in := &s3.PutObjectInput{
		Bucket:      aws.String(st.bucket),
		Key:         st.key(key),
		Body:        r,
		ContentType: aws.String(contentType),
	}
	if size > 0 {
		in.ContentLength = aws.Int64(size)
	}
	_, err := st.client.PutObject(ctx, in)
	return errors.Wrap(err, "s3 put")
}

func (st *s3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := st.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(st.bucket), Key: st.key(key)})
	if err != nil {
		if isNotFound(err) {
			return nil, core.ErrBlobNotFound
		}
		return nil, errors.Wrap(err, "s3 get")
	}
	return out.Body, nil
}

// Delete reports ErrBlobNotFound for missing keys, which S3 deletes silently.
func (st *s3Store) Delete(ctx context.Context, key string) error {
	if _, err := st.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(st.bucket), Key: st.key(key)}); err != nil {
		if isNotFound(err) {
			return core.ErrBlobNotFound
		}
		return errors.Wrap(err, "s3 head")
	}
	_, err := st.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(st.bucket), Key: st.key(key)})
	return errors.Wrap(err, "s3 delete")
}

func isNotFound(err error) bool {
	var (
		noKey    *types.NoSuchKey
		notFound *types.NotFound
	)
	return errors.As(err, &noKey) || errors.As(err, &notFound)
}
