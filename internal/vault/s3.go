package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"sniff-go/internal/archive"
	"sniff-go/internal/config"
)

// versionMetaKey is the user-metadata key carrying the metadata version.
const versionMetaKey = "version"

// S3Client is the subset of *s3.Client used by S3Vault.
type S3Client interface {
	manager.UploadAPIClient
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Vault stores payloads and metadata as objects in a bucket:
//
//	<prefix>changesets/<hostID>/<changeset ID>
//	<prefix>metadata/<hostID>/<name>   (version in user metadata)
type S3Vault struct {
	name     string
	bucket   string
	prefix   string
	client   S3Client
	uploader *manager.Uploader
}

// NewS3Vault creates a vault on top of an existing client.
func NewS3Vault(name, bucket, prefix string, client S3Client) *S3Vault {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Vault{
		name:     name,
		bucket:   bucket,
		prefix:   prefix,
		client:   client,
		uploader: manager.NewUploader(client),
	}
}

// NewS3VaultFromConfig builds an S3 client from the vault config. Static
// credentials are used when both key fields are set; otherwise the default
// AWS credential chain applies.
func NewS3VaultFromConfig(ctx context.Context, cfg config.VaultConfig) (*S3Vault, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 vault requires s3_bucket to be set")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKeyID != "" && cfg.S3SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3Vault(cfg.Name, cfg.S3Bucket, cfg.S3Prefix, client), nil
}

func (v *S3Vault) changesetKey(hostID, id string) string {
	return v.prefix + path.Join("changesets", hostID, id)
}

func (v *S3Vault) metadataKey(hostID, name string) string {
	return v.prefix + path.Join("metadata", hostID, name)
}

// PutChangeset uploads a changeset payload.
func (v *S3Vault) PutChangeset(hostID string, id string, r io.Reader, size int64) error {
	if err := checkNames(hostID, id); err != nil {
		return err
	}
	return v.put(v.changesetKey(hostID, id), r, size, nil)
}

// GetChangeset downloads a changeset payload into w.
func (v *S3Vault) GetChangeset(hostID string, id string, w io.Writer) error {
	if err := checkNames(hostID, id); err != nil {
		return err
	}
	if err := v.get(v.changesetKey(hostID, id), w); err != nil {
		return fmt.Errorf("changeset %s for host %s: %w", id, hostID, err)
	}
	return nil
}

// ListChangesets returns the sorted IDs of all payloads for a host.
func (v *S3Vault) ListChangesets(hostID string) ([]string, error) {
	if err := checkName("host id", hostID); err != nil {
		return nil, err
	}
	prefix := v.changesetKey(hostID, "") + "/"

	var ids []string
	p := s3.NewListObjectsV2Paginator(v.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(v.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(context.Background())
		if err != nil {
			return nil, fmt.Errorf("listing changesets: %w", err)
		}
		for _, obj := range page.Contents {
			id := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if id != "" && !strings.Contains(id, "/") {
				ids = append(ids, id)
			}
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// PutMetadata uploads a metadata item with its version as user metadata.
func (v *S3Vault) PutMetadata(hostID string, name string, r io.Reader, size int64, version int64) error {
	if err := checkNames(hostID, name); err != nil {
		return err
	}
	meta := map[string]string{versionMetaKey: strconv.FormatInt(version, 10)}
	return v.put(v.metadataKey(hostID, name), r, size, meta)
}

// GetMetadata downloads a metadata item into w.
func (v *S3Vault) GetMetadata(hostID string, name string, w io.Writer) error {
	if err := checkNames(hostID, name); err != nil {
		return err
	}
	if err := v.get(v.metadataKey(hostID, name), w); err != nil {
		return fmt.Errorf("metadata %q for host %s: %w", name, hostID, err)
	}
	return nil
}

// GetMetadataVersion returns 0 if the metadata object does not exist.
func (v *S3Vault) GetMetadataVersion(hostID string, name string) (int64, error) {
	if err := checkNames(hostID, name); err != nil {
		return 0, err
	}
	out, err := v.client.HeadObject(context.Background(), &s3.HeadObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.metadataKey(hostID, name)),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading metadata version: %w", err)
	}

	raw, ok := out.Metadata[versionMetaKey]
	if !ok {
		return 0, fmt.Errorf("metadata %q for host %s has no version", name, hostID)
	}
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version: %w", err)
	}
	return version, nil
}

// ValidateSetup checks that the bucket exists and is reachable.
func (v *S3Vault) ValidateSetup() error {
	_, err := v.client.HeadBucket(context.Background(), &s3.HeadBucketInput{Bucket: aws.String(v.bucket)})
	if err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", v.bucket, err)
	}
	return nil
}

func (v *S3Vault) put(key string, r io.Reader, size int64, meta map[string]string) error {
	ctx := context.Background()
	body := &countingReader{r: r}

	_, err := v.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(v.bucket),
		Key:      aws.String(key),
		Body:     body,
		Metadata: meta,
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}

	if body.n != size {
		// Best effort: leave no object whose size disagrees with the index.
		v.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(v.bucket), Key: aws.String(key)})
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, body.n)
	}
	return nil
}

func (v *S3Vault) get(key string, w io.Writer) error {
	out, err := v.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("downloading %s: %w", key, err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("reading %s: %w", key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noKey) || errors.As(err, &notFound)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

var _ archive.Vault = (*S3Vault)(nil)
