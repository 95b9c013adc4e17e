package archivesvc

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admitdesk/admitdesk/core"
	"github.com/admitdesk/admitdesk/core/application"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, f.err
}

func TestS3Archiver_Archive(t *testing.T) {
	sub := application.Submission{
		ID:            "sub1",
		ApplicationID: "app1",
		StudentID:     "stu1",
		SubmittedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Essays:        []application.EssaySnapshot{{SlotID: "s1", Label: "Why us", DraftID: "d1", Content: "Hello", WordCount: 1}},
	}

	fake := &fakeS3{}
	arch := &S3Archiver{client: fake, bucket: "bucket", prefix: "submissions"}
	require.NoError(t, arch.Archive(context.Background(), sub))

	assert.Equal(t, "bucket", aws.ToString(fake.input.Bucket))
	assert.Equal(t, "submissions/stu1/app1/sub1.json", aws.ToString(fake.input.Key))
	assert.Equal(t, "application/json", aws.ToString(fake.input.ContentType))

	var got application.Submission
	require.NoError(t, json.Unmarshal(fake.body, &got))
	assert.Equal(t, sub, got)

	fake.err = errors.New("boom")
	assert.Error(t, arch.Archive(context.Background(), sub))
}

func TestNewS3Archiver_withoutBucket(t *testing.T) {
	arch, err := NewS3Archiver(context.Background(), core.S3Config{})
	require.NoError(t, err)
	assert.Nil(t, arch)
}
