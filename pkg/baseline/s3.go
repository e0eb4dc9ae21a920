package baseline

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"net/url"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/agentstation/clinmap/pkg/errors"
	"github.com/agentstation/clinmap/pkg/logging"
	"github.com/agentstation/clinmap/pkg/mapping"
)

// S3Config holds connection settings for an S3-compatible backend. Empty
// fields fall back to the default AWS configuration chain.
type S3Config struct {
	Region          string `mapstructure:"region" yaml:"region"`
	Bucket          string `mapstructure:"-" yaml:"-"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"` // e.g. MinIO
	PathStyle       bool   `mapstructure:"path_style" yaml:"path_style"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"-"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"-"`
}

// S3Store keeps the baseline in a single object. PutObject replaces an
// object atomically, so readers see the old or the new table.
type S3Store struct {
	client        *s3.Client
	bucket        string
	key           string
	historyPrefix string
	tolerant      bool
}

// NewS3Store connects to the bucket in cfg and stores the baseline at key.
func NewS3Store(ctx context.Context, cfg S3Config, key string, opts Options) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.NewValidationError("s3.bucket", cfg.Bucket, "bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.NewConfigError("s3", "failed to load AWS configuration", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewS3StoreFromClient(client, cfg.Bucket, key, opts), nil
}

// NewS3StoreFromClient wraps an existing client.
func NewS3StoreFromClient(client *s3.Client, bucket, key string, opts Options) *S3Store {
	return &S3Store{
		client:        client,
		bucket:        bucket,
		key:           key,
		historyPrefix: opts.History,
		tolerant:      opts.Tolerant,
	}
}

// Location implements Store.
func (s *S3Store) Location() string { return "s3://" + s.bucket + "/" + s.key }

// Load implements Store.
func (s *S3Store) Load(ctx context.Context) ([]mapping.Row, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &s.key})
	if err != nil {
		if isNotFound(err) {
			return nil, errors.NewNotFoundError("baseline", s.Location())
		}
		return nil, errors.WrapIO("get", s.Location(), err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.WrapIO("read", s.Location(), err)
	}
	return decode(ctx, data, s.Location(), s.tolerant)
}

// Replace implements Store. With a history prefix the current object is
// copied aside first; a failed copy aborts the replace.
func (s *S3Store) Replace(ctx context.Context, table *mapping.Table) error {
	data, err := encode(table)
	if err != nil {
		return errors.WrapPersistence("s3", s.Location(), err)
	}

	if s.historyPrefix != "" {
		if err := s.archive(ctx); err != nil {
			return errors.WrapPersistence("s3", s.Location(), err)
		}
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &s.key,
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/tab-separated-values"),
	})
	if err != nil {
		return errors.WrapPersistence("s3", s.Location(), err)
	}

	logging.FromContext(ctx).Info().
		Str("baseline", s.Location()).
		Int("rows", table.Len()).
		Msg("Baseline replaced")
	return nil
}

func (s *S3Store) archive(ctx context.Context) error {
	dest := path.Join(s.historyPrefix, historyName(ctx, path.Base(s.key)))
	source := s.bucket + "/" + url.PathEscape(s.key)
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     &s.bucket,
		Key:        &dest,
		CopySource: &source,
	})
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}
	logging.FromContext(ctx).Debug().Str("history", "s3://"+s.bucket+"/"+dest).Msg("Archived previous baseline")
	return nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if stderrors.As(err, &nsk) {
		return true
	}
	var re *awshttp.ResponseError
	return stderrors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}
