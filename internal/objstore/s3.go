package objstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"

	"github.com/mesh-intelligence/icecat/pkg/types"
)

// S3Config selects the bucket and endpoint of an S3 store.
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string // for S3-compatible services; implies path-style addressing
}

// S3 stores objects in one bucket. The object key is the path without its
// leading slash, so s3://bucket/wh/db/t/metadata/x.json is key
// wh/db/t/metadata/x.json.
type S3 struct {
	client s3iface.S3API
	bucket string
}

// NewS3 creates a store using the default AWS credential chain.
func NewS3(cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, errors.Wrap(types.ErrInvalidConfig, "s3 store needs a bucket")
	}
	awsCfg := aws.NewConfig()
	if cfg.Region != "" {
		awsCfg = awsCfg.WithRegion(cfg.Region)
	}
	if cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint).WithS3ForcePathStyle(true)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, errors.Wrap(err, "creating AWS session")
	}
	return NewS3WithClient(s3.New(sess), cfg.Bucket), nil
}

// NewS3WithClient creates a store over an existing client.
func NewS3WithClient(client s3iface.S3API, bucket string) *S3 {
	return &S3{client: client, bucket: bucket}
}

func objectKey(path string) string {
	return strings.TrimPrefix(path, "/")
}

// Get fetches the object at path.
func (s *S3) Get(ctx context.Context, path string) ([]byte, error) {
	key := objectKey(path)
	result, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok {
			switch aerr.Code() {
			case s3.ErrCodeNoSuchBucket, s3.ErrCodeNoSuchKey:
				return nil, fmt.Errorf("%w: s3://%s/%s", types.ErrNotFound, s.bucket, key)
			}
		}
		return nil, errors.Wrapf(err, "fetching S3 object s3://%s/%s", s.bucket, key)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "reading S3 object s3://%s/%s", s.bucket, key)
	}
	return data, nil
}

// Put uploads data to path.
func (s *S3) Put(ctx context.Context, path string, data []byte) error {
	key := objectKey(path)
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return errors.Wrapf(err, "putting S3 object s3://%s/%s", s.bucket, key)
	}
	return nil
}
