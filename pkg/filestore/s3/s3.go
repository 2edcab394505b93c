package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/ec2rolecreds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// PresignExpiration is how long archive urls stay valid.
const PresignExpiration = 24 * time.Hour

// ErrNotFound is returned when the object doesn't exist.
var ErrNotFound = errors.New("s3: object not found")

type Config struct {
	Key    string
	Secret string
	Region string
	Bucket string
	// Endpoint points to an s3 compatible service (minio, tebi, r2...).
	Endpoint string
	// Prefix is prepended to every object key.
	Prefix string
	Debug  bool
}

type Store struct {
	client *s3.Client
	bucket string
	prefix string
	debug  bool
}

// New returns a track store backed by an s3 bucket. It fails if the bucket
// can't be reached.
func New(ctx context.Context, cfg *Config) (*Store, error) {
	var provider aws.CredentialsProvider
	if cfg.Key == "" && cfg.Secret == "" {
		// Credentials from the EC2 instance role
		provider = ec2rolecreds.New()
	} else {
		provider = credentials.NewStaticCredentialsProvider(cfg.Key, cfg.Secret, "")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(provider),
		config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("s3: couldn't load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	}); err != nil {
		return nil, fmt.Errorf("s3: couldn't head bucket %s: %w", cfg.Bucket, err)
	}
	return &Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		debug:  cfg.Debug,
	}, nil
}

func (s *Store) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// URL returns a presigned GET url for the object.
func (s *Store) URL(ctx context.Context, name string) (string, error) {
	key := s.key(name)
	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return "", fmt.Errorf("s3: couldn't head object %s: %w", key, err)
	}
	presigner := s3.NewPresignClient(s.client)
	req, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(PresignExpiration))
	if err != nil {
		return "", fmt.Errorf("s3: couldn't presign object %s: %w", key, err)
	}
	return req.URL, nil
}

// Upload buffers the track in memory so the request carries a known length.
func (s *Store) Upload(ctx context.Context, r io.Reader, name, contentType string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("s3: couldn't read %s: %w", name, err)
	}
	key := s.key(name)
	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(b),
		ContentLength: aws.Int64(int64(len(b))),
		ContentType:   aws.String(contentType),
	}); err != nil {
		return fmt.Errorf("s3: couldn't put object %s: %w", key, err)
	}
	if s.debug {
		log.Printf("s3: put object %s (%d bytes)\n", key, len(b))
	}
	return nil
}

func (s *Store) Download(ctx context.Context, w io.Writer, name string) error {
	key := s.key(name)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return fmt.Errorf("s3: couldn't get object %s: %w", key, err)
	}
	defer out.Body.Close()
	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("s3: couldn't read object %s: %w", key, err)
	}
	return nil
}
