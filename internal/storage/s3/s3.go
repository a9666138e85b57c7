package s3

import (
	"context"
	"errors"
	"fmt"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	s3pkg "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cirruslabs/tensorcraft/internal/model"
	"github.com/cirruslabs/tensorcraft/internal/storage"
	"github.com/cirruslabs/tensorcraft/internal/storage/disk/percentencoding"
	"github.com/im7mortal/kmutex"
	"io"
	"net/url"
	"slices"
	"strings"
)

const extension = ".tar"

type S3 struct {
	client *s3pkg.Client
	bucket string
	prefix string
	kmutex *kmutex.Kmutex
}

type Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	Prefix          string
}

// New uses the default AWS credential chain and endpoint resolution.
func New(ctx context.Context, bucket string, prefix string) (*S3, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}

	return &S3{
		client: s3pkg.NewFromConfig(cfg),
		bucket: bucket,
		prefix: prefix,
		kmutex: kmutex.New(),
	}, nil
}

// NewFromConfig talks to an S3-compatible endpoint and creates
// the bucket if it doesn't exist yet.
func NewFromConfig(ctx context.Context, config *Config) (*S3, error) {
	awsConfig := aws.Config{
		Region: config.Region,
	}

	if config.AccessKeyID != "" {
		awsConfig.Credentials = credentials.NewStaticCredentialsProvider(
			config.AccessKeyID,
			config.AccessKeySecret,
			"",
		)
	}

	s3EndpointURL, err := url.Parse(config.Endpoint)
	if err != nil {
		return nil, err
	}

	client := s3pkg.NewFromConfig(awsConfig, func(options *s3pkg.Options) {
		options.EndpointResolverV2 = &staticEndpointResolver{url: s3EndpointURL}
	})

	_, err = client.CreateBucket(ctx, &s3pkg.CreateBucketInput{
		Bucket: aws.String(config.Bucket),
	})
	if err != nil {
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		var alreadyExists *types.BucketAlreadyExists

		if !errors.As(err, &alreadyOwned) && !errors.As(err, &alreadyExists) {
			return nil, err
		}
	}

	return &S3{
		client: client,
		bucket: config.Bucket,
		prefix: config.Prefix,
		kmutex: kmutex.New(),
	}, nil
}

func (s3 *S3) Write(ctx context.Context, key model.Key, r io.Reader) (storage.Info, error) {
	// Validate the artifact locally first, so that
	// a malformed one never reaches the bucket
	spooled, err := storage.Spool("", "tensorcraft-put-*", r)
	if err != nil {
		return storage.Info{}, fmt.Errorf("failed to write artifact %s: %w", key, err)
	}
	defer spooled.Discard()

	objectKey := s3.objectKey(key)

	s3.kmutex.Lock(key)
	defer s3.kmutex.Unlock(key)

	multipartUpload, err := newMultipartUpload(ctx, s3.client, s3.bucket, objectKey)
	if err != nil {
		return storage.Info{}, fmt.Errorf("%w: failed to initiate multipart upload of artifact %s: %w",
			model.ErrStorageIO, key, err)
	}

	if err := multipartUpload.UploadAll(ctx, spooled.File); err != nil {
		_ = multipartUpload.Rollback(context.WithoutCancel(ctx))

		return storage.Info{}, fmt.Errorf("%w: failed to upload artifact %s: %w", model.ErrStorageIO, key, err)
	}

	if err := multipartUpload.Commit(ctx); err != nil {
		_ = multipartUpload.Rollback(context.WithoutCancel(ctx))

		return storage.Info{}, fmt.Errorf("%w: failed to commit artifact %s: %w", model.ErrStorageIO, key, err)
	}

	return storage.Info{
		Size:     spooled.Size,
		Checksum: spooled.Checksum,
		Location: fmt.Sprintf("s3://%s/%s", s3.bucket, objectKey),
	}, nil
}

func (s3 *S3) Read(ctx context.Context, key model.Key) (io.ReadCloser, error) {
	result, err := s3.client.GetObject(ctx, &s3pkg.GetObjectInput{
		Bucket: aws.String(s3.bucket),
		Key:    aws.String(s3.objectKey(key)),
	})
	if err != nil {
		return nil, convertErr(key, "read", err)
	}

	return result.Body, nil
}

func (s3 *S3) Delete(ctx context.Context, key model.Key) error {
	s3.kmutex.Lock(key)
	defer s3.kmutex.Unlock(key)

	// DeleteObject succeeds for missing objects, so check first
	exists, err := s3.Exists(ctx, key)
	if err != nil {
		return err
	}

	if !exists {
		return fmt.Errorf("%w: no artifact for %s", model.ErrNotFound, key)
	}

	_, err = s3.client.DeleteObject(ctx, &s3pkg.DeleteObjectInput{
		Bucket: aws.String(s3.bucket),
		Key:    aws.String(s3.objectKey(key)),
	})
	if err != nil {
		return convertErr(key, "delete", err)
	}

	return nil
}

func (s3 *S3) Exists(ctx context.Context, key model.Key) (bool, error) {
	_, err := s3.client.HeadObject(ctx, &s3pkg.HeadObjectInput{
		Bucket: aws.String(s3.bucket),
		Key:    aws.String(s3.objectKey(key)),
	})
	if err != nil {
		err = convertErr(key, "stat", err)

		if errors.Is(err, model.ErrNotFound) {
			return false, nil
		}

		return false, err
	}

	return true, nil
}

func (s3 *S3) Keys(ctx context.Context) ([]model.Key, error) {
	var keys []model.Key

	paginator := s3pkg.NewListObjectsV2Paginator(s3.client, &s3pkg.ListObjectsV2Input{
		Bucket: aws.String(s3.bucket),
		Prefix: aws.String(s3.prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to list artifacts: %w", model.ErrStorageIO, err)
		}

		for _, object := range page.Contents {
			key, ok := s3.parseObjectKey(aws.ToString(object.Key))
			if !ok {
				continue
			}

			keys = append(keys, key)
		}
	}

	slices.SortFunc(keys, model.Key.Compare)

	return keys, nil
}

func (s3 *S3) objectKey(key model.Key) string {
	return s3.prefix + percentencoding.Encode(key.Name) + "/" + percentencoding.Encode(key.Tag) + extension
}

func (s3 *S3) parseObjectKey(objectKey string) (model.Key, bool) {
	rest, ok := strings.CutPrefix(objectKey, s3.prefix)
	if !ok {
		return model.Key{}, false
	}

	rest, ok = strings.CutSuffix(rest, extension)
	if !ok {
		return model.Key{}, false
	}

	encodedName, encodedTag, ok := strings.Cut(rest, "/")
	if !ok {
		return model.Key{}, false
	}

	name, err := percentencoding.Decode(encodedName)
	if err != nil {
		return model.Key{}, false
	}

	tag, err := percentencoding.Decode(encodedTag)
	if err != nil {
		return model.Key{}, false
	}

	return model.Key{Name: name, Tag: tag}, true
}

func convertErr(key model.Key, operation string, err error) error {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey

	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return fmt.Errorf("%w: no artifact for %s", model.ErrNotFound, key)
	}

	return fmt.Errorf("%w: failed to %s artifact %s: %w", model.ErrStorageIO, operation, key, err)
}
