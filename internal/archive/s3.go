// Package archive persists checkpoints to S3-compatible object storage,
// outliving the store's per-execution retention window.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/forgeml/orchestrator/pkg/types"
)

// S3Archive stores checkpoints as JSON objects under
// <prefix>/<execution_id>/<checkpoint_id>.json.
type S3Archive struct {
	client     *s3.Client
	bucket     string
	pathPrefix string
}

// S3Config holds S3/MinIO connection configuration.
type S3Config struct {
	// Endpoint for MinIO (e.g., "minio.forgeml.svc:9000")
	// Leave empty for AWS S3
	Endpoint string

	// Bucket name
	Bucket string

	// Region (required for AWS S3, optional for MinIO)
	Region string

	// Credentials
	AccessKeyID     string
	SecretAccessKey string

	// UseSSL enables HTTPS (default: false for internal MinIO)
	UseSSL bool

	// PathPrefix is prepended to all checkpoint keys
	PathPrefix string
}

// NewS3Archive creates an S3/MinIO checkpoint archive.
func NewS3Archive(cfg *S3Config) (*S3Archive, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1" // Default region for MinIO
	}

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				"",
			),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		endpoint := fmt.Sprintf("%s://%s", scheme, cfg.Endpoint)

		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true // Required for MinIO
		})
	}

	return &S3Archive{
		client:     s3.NewFromConfig(awsCfg, s3Opts...),
		bucket:     cfg.Bucket,
		pathPrefix: cfg.PathPrefix,
	}, nil
}

func (a *S3Archive) key(execID, checkpointID string) string {
	key := fmt.Sprintf("%s/%s.json", execID, checkpointID)
	if a.pathPrefix == "" {
		return key
	}
	return a.pathPrefix + "/" + key
}

// Archive uploads a checkpoint. Satisfies engine.Archiver.
func (a *S3Archive) Archive(ctx context.Context, cp *types.Checkpoint) error {
	body, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(a.key(cp.ExecutionID, cp.ID)),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return fmt.Errorf("put checkpoint: %w", err)
	}
	return nil
}

// Fetch downloads an archived checkpoint.
func (a *S3Archive) Fetch(ctx context.Context, execID, checkpointID string) (*types.Checkpoint, error) {
	result, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(execID, checkpointID)),
	})
	if err != nil {
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	defer result.Body.Close()

	body, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp types.Checkpoint
	if err := json.Unmarshal(body, &cp); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

// ArchivedRef describes one archived checkpoint object.
type ArchivedRef struct {
	ExecutionID  string
	CheckpointID string
	Size         int64
	CreatedAt    time.Time
}

// List returns archived checkpoints for an execution, oldest first.
func (a *S3Archive) List(ctx context.Context, execID string) ([]ArchivedRef, error) {
	prefix := execID + "/"
	if a.pathPrefix != "" {
		prefix = a.pathPrefix + "/" + prefix
	}

	var refs []ArchivedRef
	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list checkpoints: %w", err)
		}

		for _, obj := range page.Contents {
			name := strings.TrimPrefix(*obj.Key, prefix)
			name = strings.TrimSuffix(name, ".json")
			refs = append(refs, ArchivedRef{
				ExecutionID:  execID,
				CheckpointID: name,
				Size:         *obj.Size,
				CreatedAt:    *obj.LastModified,
			})
		}
	}

	sort.Slice(refs, func(i, j int) bool {
		return refs[i].CreatedAt.Before(refs[j].CreatedAt)
	})
	return refs, nil
}

// Delete removes an archived checkpoint.
func (a *S3Archive) Delete(ctx context.Context, execID, checkpointID string) error {
	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(execID, checkpointID)),
	})
	if err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}
