package s3

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	s3manageriface.UploaderAPI
	input *s3manager.UploadInput
	body  []byte
	err   error
}

func (f *fakeUploader) UploadWithContext(_ aws.Context, in *s3manager.UploadInput, _ ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3manager.UploadOutput{Location: "https://bucket.s3.amazonaws.com/" + aws.StringValue(in.Key)}, nil
}

func TestArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "merged_gdelt_data.csv")
	require.NoError(t, os.WriteFile(path, []byte("header\n"), 0o600))

	fu := &fakeUploader{}
	a := newArchiver(fu, "brsi-archive", "merged", slog.Default())

	loc, err := a.Archive(context.Background(), path, 42)
	require.NoError(t, err)

	assert.Equal(t, "https://bucket.s3.amazonaws.com/merged/merged_gdelt_data.csv", loc)
	assert.Equal(t, "brsi-archive", aws.StringValue(fu.input.Bucket))
	assert.Equal(t, "42", aws.StringValue(fu.input.Metadata["record-count"]))
	assert.Equal(t, "header\n", string(fu.body))
}

func TestArchive_UploadError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "merged.csv")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	a := newArchiver(&fakeUploader{err: errors.New("access denied")}, "b", "", slog.Default())
	_, err := a.Archive(context.Background(), path, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://b/merged.csv")
}
