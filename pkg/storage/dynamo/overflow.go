package dynamo

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/stratakv/strata/pkg/core"
)

// defaultOverflowThreshold keeps spilled payloads comfortably under the
// 400KB DynamoDB item cap while leaving headroom for key attributes.
const defaultOverflowThreshold = 256 << 10

// S3API is the slice of the S3 client the overflow store calls. It is
// satisfied by *s3.Client.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// overflowStore holds record payloads too large for a table item. Each
// spill writes a fresh object, so overwritten records leave orphans behind;
// a bucket lifecycle rule is expected to age those out.
type overflowStore struct {
	api       S3API
	bucket    string
	threshold int
}

func newOverflowStore(api S3API, bucket string, threshold int) *overflowStore {
	if threshold <= 0 {
		threshold = defaultOverflowThreshold
	}
	return &overflowStore{api: api, bucket: bucket, threshold: threshold}
}

// put stores one payload under a fresh object key prefixed with the
// record's partition path and returns that key.
func (o *overflowStore) put(ctx context.Context, key *core.Key, payload []byte) (string, error) {
	objKey := path.Join(partitionKey(key), uuid.NewString())
	_, err := o.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(o.bucket),
		Key:         aws.String(objKey),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("overflow put %s: %w", objKey, err)
	}
	return objKey, nil
}

func (o *overflowStore) get(ctx context.Context, objKey string) ([]byte, error) {
	out, err := o.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(objKey),
	})
	if err != nil {
		return nil, fmt.Errorf("overflow get %s: %w", objKey, err)
	}
	defer out.Body.Close()
	payload, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("overflow read %s: %w", objKey, err)
	}
	return payload, nil
}
