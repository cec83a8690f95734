// Package s3 archives merged output files to an S3 bucket.
package s3

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
)

// Archiver uploads files under a key prefix in one bucket.
type Archiver struct {
	uploader s3manageriface.UploaderAPI
	bucket   string
	prefix   string
	logger   *slog.Logger
}

// NewArchiver builds an Archiver from the default AWS credential chain.
func NewArchiver(region, bucket, prefix string, logger *slog.Logger) (*Archiver, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("aws session: %w", err)
	}
	return newArchiver(s3manager.NewUploader(sess), bucket, prefix, logger), nil
}

func newArchiver(u s3manageriface.UploaderAPI, bucket, prefix string, logger *slog.Logger) *Archiver {
	return &Archiver{uploader: u, bucket: bucket, prefix: prefix, logger: logger}
}

// Archive uploads the file at localPath and returns its S3 location.
func (a *Archiver) Archive(ctx context.Context, localPath string, rows int) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	key := path.Join(a.prefix, filepath.Base(localPath))
	out, err := a.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   f,
		Metadata: map[string]*string{
			"record-count": aws.String(strconv.Itoa(rows)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("upload s3://%s/%s: %w", a.bucket, key, err)
	}
	a.logger.Info("archived merged file", "bucket", a.bucket, "key", key, "location", out.Location)
	return out.Location, nil
}
