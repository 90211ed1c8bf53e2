// Package s3 stores dead letters as JSON objects in an S3-compatible bucket.
// Pending letters live under <prefix>pending/ and are moved to
// <prefix>processed/ once replayed.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/strogmv/fanout/internal/port"
)

var ErrNotFound = errors.New("dead letter not found")

type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, opts ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type record struct {
	ID        string          `json:"id"`
	Event     string          `json:"event"`
	Envelope  json.RawMessage `json:"envelope"`
	Error     string          `json:"error"`
	CreatedAt time.Time       `json:"created_at"`
}

type DeadLetterRepository struct {
	client objectAPI
	bucket string
	prefix string
}

func New(ctx context.Context, region, bucket, endpoint, prefix string) (*DeadLetterRepository, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return newRepository(client, bucket, prefix), nil
}

func newRepository(client objectAPI, bucket, prefix string) *DeadLetterRepository {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &DeadLetterRepository{client: client, bucket: bucket, prefix: prefix}
}

// pendingKey sorts lexicographically by creation time so listing returns oldest first.
func (r *DeadLetterRepository) pendingKey(dl port.DeadLetter) string {
	return fmt.Sprintf("%spending/%020d_%s.json", r.prefix, dl.CreatedAt.UTC().UnixNano(), dl.ID)
}

func (r *DeadLetterRepository) Save(ctx context.Context, dl port.DeadLetter) error {
	body, err := json.Marshal(record{
		ID:        dl.ID,
		Event:     dl.Event,
		Envelope:  json.RawMessage(dl.Envelope),
		Error:     dl.Error,
		CreatedAt: dl.CreatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode dead letter: %w", err)
	}
	_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(r.pendingKey(dl)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata:    map[string]string{"event": dl.Event},
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}
	return nil
}

func (r *DeadLetterRepository) ListPending(ctx context.Context, limit int) ([]port.DeadLetter, error) {
	keys, err := r.pendingKeys(ctx, limit)
	if err != nil {
		return nil, err
	}
	items := make([]port.DeadLetter, 0, len(keys))
	for _, key := range keys {
		dl, err := r.load(ctx, key)
		if err != nil {
			return nil, err
		}
		items = append(items, dl)
	}
	return items, nil
}

func (r *DeadLetterRepository) MarkProcessed(ctx context.Context, id string) error {
	keys, err := r.pendingKeys(ctx, 0)
	if err != nil {
		return err
	}
	suffix := "_" + id + ".json"
	for _, key := range keys {
		if !strings.HasSuffix(key, suffix) {
			continue
		}
		dest := r.prefix + "processed/" + strings.TrimPrefix(key, r.prefix+"pending/")
		if _, err := r.client.CopyObject(ctx, &s3.CopyObjectInput{
			Bucket:     aws.String(r.bucket),
			CopySource: aws.String(r.bucket + "/" + key),
			Key:        aws.String(dest),
		}); err != nil {
			return fmt.Errorf("s3 copy object: %w", err)
		}
		if _, err := r.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(r.bucket),
			Key:    aws.String(key),
		}); err != nil {
			return fmt.Errorf("s3 delete object: %w", err)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (r *DeadLetterRepository) pendingKeys(ctx context.Context, limit int) ([]string, error) {
	var (
		keys  []string
		token *string
	)
	for {
		in := &s3.ListObjectsV2Input{
			Bucket:            aws.String(r.bucket),
			Prefix:            aws.String(r.prefix + "pending/"),
			ContinuationToken: token,
		}
		if limit > 0 {
			in.MaxKeys = aws.Int32(int32(min(limit-len(keys), 1000)))
		}
		out, err := r.client.ListObjectsV2(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("s3 list objects: %w", err)
		}
		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if limit > 0 && len(keys) >= limit {
			return keys[:limit], nil
		}
		if !aws.ToBool(out.IsTruncated) {
			return keys, nil
		}
		token = out.NextContinuationToken
	}
}

func (r *DeadLetterRepository) load(ctx context.Context, key string) (port.DeadLetter, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return port.DeadLetter{}, fmt.Errorf("s3 get object: %w", err)
	}
	defer out.Body.Close()
	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return port.DeadLetter{}, fmt.Errorf("read %s: %w", key, err)
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return port.DeadLetter{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return port.DeadLetter{
		ID:        rec.ID,
		Event:     rec.Event,
		Envelope:  []byte(rec.Envelope),
		Error:     rec.Error,
		CreatedAt: rec.CreatedAt,
	}, nil
}

var _ port.DeadLetterRepository = (*DeadLetterRepository)(nil)
