package export

import (
	"context"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"
)

// S3Config selects the bucket and key prefix result files are mirrored to.
type S3Config struct {
	Bucket string `json:"bucket"`
	Prefix string `json:"prefix"`
	Region string `json:"region"`
}

// DefaultS3Config returns an upload configuration with no bucket, which
// disables uploads.
func DefaultS3Config() S3Config {
	return S3Config{Region: "us-west-2"}
}

// Enabled reports whether a bucket is configured.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// S3Uploader copies exported files to S3.
type S3Uploader struct {
	svc    s3iface.S3API
	config S3Config
}

// NewS3Uploader opens an AWS session using the default credential chain.
func NewS3Uploader(config S3Config) (*S3Uploader, error) {
	if !config.Enabled() {
		return nil, errors.New("S3 upload needs a bucket")
	}
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(config.Region),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create AWS session")
	}
	return NewS3UploaderWithClient(s3.New(sess), config), nil
}

// NewS3UploaderWithClient wraps an existing S3 client.
func NewS3UploaderWithClient(svc s3iface.S3API, config S3Config) *S3Uploader {
	return &S3Uploader{svc: svc, config: config}
}

// Key returns the object key for a local file: prefix/subdir/name.
func (u *S3Uploader) Key(subdir, localPath string) string {
	return path.Join(u.config.Prefix, subdir, filepath.Base(localPath))
}

// UploadFile uploads localPath under Key(subdir, localPath) and returns the key.
func (u *S3Uploader) UploadFile(ctx context.Context, subdir, localPath string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", errors.Wrapf(err, "opening %s", localPath)
	}
	defer file.Close()

	key := u.Key(subdir, localPath)
	_, err = u.svc.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.config.Bucket),
		Key:    aws.String(key),
		Body:   file,
	})
	if err != nil {
		return "", errors.Wrapf(err, "uploading s3://%s/%s", u.config.Bucket, key)
	}
	return key, nil
}
