package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"github.com/aws/aws-sdk-go-v2/aws"
	s3pkg "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"io"
)

const partSize = 8 * 1024 * 1024

// multipartUpload makes the object visible only when all
// of its parts were uploaded and Commit() was called.
type multipartUpload struct {
	client   *s3pkg.Client
	bucket   string
	key      string
	uploadID string

	parts []types.CompletedPart
}

func newMultipartUpload(ctx context.Context, client *s3pkg.Client, bucket string, key string) (*multipartUpload, error) {
	result, err := client.CreateMultipartUpload(ctx, &s3pkg.CreateMultipartUploadInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		ContentType: aws.String("application/x-tar"),
	})
	if err != nil {
		return nil, err
	}

	return &multipartUpload{
		client:   client,
		bucket:   bucket,
		key:      key,
		uploadID: *result.UploadId,
	}, nil
}

// UploadAll splits r into parts and uploads them sequentially.
func (mu *multipartUpload) UploadAll(ctx context.Context, r io.Reader) error {
	buf := make([]byte, partSize)
	partNumber := int32(1)

	for {
		n, err := io.ReadFull(r, buf)
		if err != nil && !(errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)) {
			return fmt.Errorf("failed to read part %d: %w", partNumber, err)
		}

		// An empty trailing part is only needed when the object itself is empty
		if n == 0 && partNumber > 1 {
			return nil
		}

		if err := mu.uploadPart(ctx, partNumber, bytes.NewReader(buf[:n])); err != nil {
			return fmt.Errorf("failed to upload part %d: %w", partNumber, err)
		}

		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || n < partSize {
			return nil
		}

		partNumber++
	}
}

func (mu *multipartUpload) uploadPart(ctx context.Context, number int32, r io.Reader) error {
	result, err := mu.client.UploadPart(ctx, &s3pkg.UploadPartInput{
		Bucket:     aws.String(mu.bucket),
		Key:        aws.String(mu.key),
		UploadId:   aws.String(mu.uploadID),
		PartNumber: aws.Int32(number),
		Body:       r,
	})
	if err != nil {
		return err
	}

	mu.parts = append(mu.parts, types.CompletedPart{
		ETag:       result.ETag,
		PartNumber: aws.Int32(number),
	})

	return nil
}

func (mu *multipartUpload) Commit(ctx context.Context) error {
	_, err := mu.client.CompleteMultipartUpload(ctx, &s3pkg.CompleteMultipartUploadInput{
		Bucket:   aws.String(mu.bucket),
		Key:      aws.String(mu.key),
		UploadId: aws.String(mu.uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: mu.parts,
		},
	})

	return err
}

func (mu *multipartUpload) Rollback(ctx context.Context) error {
	_, err := mu.client.AbortMultipartUpload(ctx, &s3pkg.AbortMultipartUploadInput{
		Bucket:   aws.String(mu.bucket),
		Key:      aws.String(mu.key),
		UploadId: aws.String(mu.uploadID),
	})

	return err
}
