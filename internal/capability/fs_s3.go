package capability

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	apperrors "resumind/internal/errors"
	"resumind/internal/types"
	"resumind/internal/utils"
)

// s3FS stores objects in an S3 bucket under an optional key prefix.
type s3FS struct {
	client *s3.Client
	bucket string
	prefix string
	logger *apperrors.Logger
}

func newS3FS(ctx context.Context, region, bucket, prefix string, logger *apperrors.Logger) (*s3FS, error) {
	if bucket == "" {
		return nil, apperrors.NewConfigError(apperrors.ErrCodeInvalidConfig,
			"S3 storage requires a bucket", nil)
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, apperrors.NewConfigError(apperrors.ErrCodeInvalidConfig,
			"Failed to load AWS configuration", err)
	}

	return &s3FS{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: strings.Trim(strings.TrimSpace(prefix), "/"),
		logger: logger,
	}, nil
}

func (s *s3FS) objectKey(storageKey string) string {
	key := strings.TrimLeft(storageKey, "/")
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

func (s *s3FS) Write(ctx context.Context, file types.File) (*types.FileDescriptor, error) {
	data, err := file.Bytes(ctx)
	if err != nil {
		return nil, apperrors.NewIOError(apperrors.ErrCodeFileNotReadable,
			"Failed to read file content", err).
			WithContext("file", file.Name())
	}

	sanitized, err := utils.SanitizeFileName(file.Name())
	if err != nil {
		return nil, apperrors.NewValidationError(apperrors.ErrCodeInvalidInput,
			"Invalid file name", err)
	}

	storageKey := fmt.Sprintf("%s_%s", uuid.NewString(), sanitized)
	mimeType := http.DetectContentType(data)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(storageKey)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mimeType),
	})
	if err != nil {
		return nil, apperrors.NewIOError(apperrors.ErrCodeUploadFailed,
			"Failed to upload object to S3", err).
			WithContext("bucket", s.bucket).
			WithContext("key", storageKey)
	}

	return &types.FileDescriptor{
		Path: storageKey,
		Name: file.Name(),
		Size: int64(len(data)),
	}, nil
}

func (s *s3FS) Upload(ctx context.Context, files []types.File) (*types.FileDescriptor, error) {
	if len(files) == 0 {
		return nil, apperrors.NewValidationError(apperrors.ErrCodeInvalidInput,
			"No files to upload", nil)
	}
	var first *types.FileDescriptor
	for _, f := range files {
		fd, err := s.Write(ctx, f)
		if err != nil {
			return nil, err
		}
		if first == nil {
			first = fd
		}
	}
	return first, nil
}

func (s *s3FS) Read(ctx context.Context, storageKey string) (*types.FileBlob, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(storageKey)),
	})
	if err != nil {
		return nil, apperrors.NewIOError(apperrors.ErrCodeFileNotFound,
			"Failed to fetch object from S3", err).
			WithContext("key", storageKey)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, apperrors.NewIOError(apperrors.ErrCodeFileNotReadable,
			"Failed to read object body", err).
			WithContext("key", storageKey)
	}

	mimeType := aws.ToString(out.ContentType)
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	return &types.FileBlob{
		FileName: path.Base(storageKey),
		MIME:     mimeType,
		Data:     data,
	}, nil
}

func (s *s3FS) Delete(ctx context.Context, storageKey string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(storageKey)),
	})
	if err != nil {
		return apperrors.NewIOError(apperrors.ErrCodeFileNotReadable,
			"Failed to delete object from S3", err).
			WithContext("key", storageKey)
	}
	return nil
}

func (s *s3FS) ReadDir(ctx context.Context, dir string) ([]types.FileDescriptor, error) {
	listPrefix := s.prefix
	if dir != "" && dir != "." && dir != "/" {
		listPrefix = s.objectKey(strings.TrimRight(dir, "/") + "/")
	} else if listPrefix != "" {
		listPrefix += "/"
	}

	var out []types.FileDescriptor
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(listPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, apperrors.NewIOError(apperrors.ErrCodeFileNotReadable,
				"Failed to list objects in S3", err).
				WithContext("prefix", listPrefix)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			storageKey := key
			if s.prefix != "" {
				storageKey = strings.TrimPrefix(key, s.prefix+"/")
			}
			out = append(out, types.FileDescriptor{
				Path: storageKey,
				Name: path.Base(key),
				Size: aws.ToInt64(obj.Size),
			})
		}
	}
	return out, nil
}

var _ FileSystem = (*s3FS)(nil)
