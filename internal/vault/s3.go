package vault

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"catalog-go/internal/catalog"
	"catalog-go/internal/config"
)

// S3API is the subset of the S3 client the vault uses.
type S3API interface {
	manager.UploadAPIClient
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Vault stores archives as objects under <prefix><key> in a bucket.
type S3Vault struct {
	name     string
	bucket   string
	prefix   string
	client   S3API
	uploader *manager.Uploader
}

// NewS3Vault builds an S3 client from the archive config. Region and
// credentials fall back to the default AWS chain when not set. A custom
// endpoint switches to path-style addressing for S3-compatible stores.
func NewS3Vault(cfg config.ArchiveConfig) (*S3Vault, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 archive requires s3_bucket to be set")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3VaultFromClient(cfg.Name, cfg.S3Bucket, cfg.S3Prefix, client), nil
}

// NewS3VaultFromClient wraps an existing client.
func NewS3VaultFromClient(name, bucket, prefix string, client S3API) *S3Vault {
	return &S3Vault{
		name:     name,
		bucket:   bucket,
		prefix:   prefix,
		client:   client,
		uploader: manager.NewUploader(client),
	}
}

func (v *S3Vault) objectKey(key string) string {
	return v.prefix + key
}

// PutArchive buffers the archive so a short read fails before anything is
// uploaded.
func (v *S3Vault) PutArchive(key string, r io.Reader, size int64) error {
	if err := validateKey(key); err != nil {
		return err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read archive: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	_, err = v.uploader.Upload(context.Background(), &s3.PutObjectInput{
		Bucket:      aws.String(v.bucket),
		Key:         aws.String(v.objectKey(key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType(key)),
	})
	if err != nil {
		return fmt.Errorf("uploading archive %s: %w", key, err)
	}
	return nil
}

func (v *S3Vault) GetArchive(key string, w io.Writer) error {
	out, err := v.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.objectKey(key)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return fmt.Errorf("archive not found: %s", key)
		}
		return fmt.Errorf("downloading archive %s: %w", key, err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("reading archive %s: %w", key, err)
	}
	return nil
}

func (v *S3Vault) ListArchives() ([]string, error) {
	var keys []string
	p := s3.NewListObjectsV2Paginator(v.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(v.bucket),
		Prefix: aws.String(v.prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(context.Background())
		if err != nil {
			return nil, fmt.Errorf("listing archives: %w", err)
		}
		for _, obj := range page.Contents {
			key := strings.TrimPrefix(aws.ToString(obj.Key), v.prefix)
			if validateKey(key) == nil {
				keys = append(keys, key)
			}
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// ValidateSetup checks that the bucket exists and is reachable.
func (v *S3Vault) ValidateSetup() error {
	_, err := v.client.HeadBucket(context.Background(), &s3.HeadBucketInput{Bucket: aws.String(v.bucket)})
	if err != nil {
		return fmt.Errorf("s3 bucket %s not accessible: %w", v.bucket, err)
	}
	return nil
}

func contentType(key string) string {
	if strings.HasSuffix(key, ".json") {
		return "application/json"
	}
	return "application/octet-stream"
}

var _ catalog.Vault = (*S3Vault)(nil)
