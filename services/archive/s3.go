// Package archivesvc keeps a copy of every submitted application in S3.
package archivesvc

import (
	"bytes"
	"context"
	"encoding/json"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pkg/errors"

	"github.com/admitdesk/admitdesk/core"
	"github.com/admitdesk/admitdesk/core/application"
)

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var _ application.Archiver = (*S3Archiver)(nil) // interface compliance check

// S3Archiver writes submissions as JSON under <prefix>/<student>/<application>/<submission>.json.
type S3Archiver struct {
	client objectPutter
	bucket string
	prefix string
}

// NewS3Archiver loads the AWS configuration from the environment.
// It returns nil, nil when no bucket is configured.
func NewS3Archiver(ctx context.Context, conf core.S3Config) (*S3Archiver, error) {
	if conf.Bucket == "" {
		return nil, nil
	}
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "config.LoadDefaultConfig")
	}
	client := s3.New(s3.Options{
		Region:       cfg.Region,
		Credentials:  cfg.Credentials,
		HTTPClient:   cfg.HTTPClient,
		BaseEndpoint: cfg.BaseEndpoint,
		UsePathStyle: true,
	})
	return &S3Archiver{client: client, bucket: conf.Bucket, prefix: conf.Prefix}, nil
}

func (a *S3Archiver) Key(sub application.Submission) string {
	return path.Join(a.prefix, sub.StudentID, sub.ApplicationID, sub.ID+".json")
}

func (a *S3Archiver) Archive(ctx context.Context, sub application.Submission) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return errors.Wrap(err, "json.Marshal")
	}
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.Key(sub)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		ACL:         types.ObjectCannedACLPrivate,
	})
	return errors.Wrap(err, "s3.PutObject")
}
