package aws_s3

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"

	"github.com/IliaW/propfirm-rules-scraper/config"
	"github.com/IliaW/propfirm-rules-scraper/internal/model"
	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	crd "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	jsoniter "github.com/json-iterator/go"
)

// BucketClient stores snapshots of the attempts that produced records, so that extraction
// can be replayed and audited later.
type BucketClient interface {
	WriteAttempt(context.Context, *model.AcquisitionAttempt) string
}

type S3BucketClient struct {
	client *s3.Client
	cfg    *config.S3Config
	log    *slog.Logger
}

func NewS3BucketClient(cfg *config.S3Config, log *slog.Logger) *S3BucketClient {
	log.Info("connecting to s3...")
	client, err := newClient(context.Background(), cfg, log)
	if err != nil {
		log.Error("failed to load s3 config.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	log.Info("connected to s3")

	return &S3BucketClient{client: client, cfg: cfg, log: log}
}

func newClient(ctx context.Context, cfg *config.S3Config, log *slog.Logger) (*s3.Client, error) {
	s3Config, err := awsCfg.LoadDefaultConfig(ctx,
		awsCfg.WithCredentialsProvider(crd.NewStaticCredentialsProvider(cfg.AwsAccessKey, cfg.AwsSecretKey, "")),
		awsCfg.WithRegion(cfg.Region),
		awsCfg.WithBaseEndpoint(cfg.AwsBaseEndpoint))
	if err != nil {
		return nil, err
	}

	// LocalStack does not support `virtual host addressing style` that uses s3 by default.
	// For test purposes use configuration with disabled 'virtual hosted bucket addressing'.
	if cfg.AwsAccessKey == "test" {
		log.Warn("test configuration for s3")
		return s3.NewFromConfig(s3Config, func(o *s3.Options) {
			o.UsePathStyle = true
		}), nil
	}
	return s3.NewFromConfig(s3Config), nil
}

// WriteAttempt uploads the attempt and returns its link, or an empty string on failure.
func (bc *S3BucketClient) WriteAttempt(ctx context.Context, a *model.AcquisitionAttempt) string {
	s3Key := snapshotKey(bc.cfg.KeyPrefix, a)
	body, err := jsoniter.Marshal(a)
	if err != nil {
		bc.log.Error("marshaling failed.", slog.String("err", err.Error()))
		return ""
	}

	_, err = bc.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &bc.cfg.BucketName,
		Key:         &s3Key,
		Body:        bytes.NewReader(body),
		ContentType: strPtr("application/json"),
	})
	if err != nil {
		bc.log.Error("failed to save attempt to s3.", slog.String("err", err.Error()))
		return ""
	}
	bc.log.Debug("attempt saved to s3.", slog.String("key", s3Key))

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bc.cfg.BucketName, bc.cfg.Region, s3Key)
}

// snapshotKey groups snapshots by site; one object per method and completion time.
func snapshotKey(prefix string, a *model.AcquisitionAttempt) string {
	hash := sha256.New()
	hash.Write([]byte(a.URL))
	hashUrl := hex.EncodeToString(hash.Sum(nil))

	return fmt.Sprintf("%s/%s/%s-%d.json", prefix, hashUrl, a.Method, a.CompletedAt.Unix())
}

func strPtr(s string) *string {
	return &s
}
