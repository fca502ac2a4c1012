package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	PublicURL string
}

func LoadS3ConfigFromEnv() (S3Config, error) {
	cfg := S3Config{
		Endpoint:  strings.TrimSpace(os.Getenv("S3_ENDPOINT")),
		Region:    strings.TrimSpace(os.Getenv("S3_REGION")),
		Bucket:    strings.TrimSpace(os.Getenv("S3_BUCKET")),
		AccessKey: strings.TrimSpace(os.Getenv("S3_ACCESS_KEY")),
		SecretKey: strings.TrimSpace(os.Getenv("S3_SECRET_KEY")),
		PublicURL: strings.TrimSpace(os.Getenv("S3_PUBLIC_URL")),
	}
	useSSL := strings.TrimSpace(os.Getenv("S3_USE_SSL"))
	if useSSL == "" {
		cfg.UseSSL = false
	} else {
		b, err := strconv.ParseBool(useSSL)
		if err != nil {
			return S3Config{}, fmt.Errorf("invalid S3_USE_SSL: %w", err)
		}
		cfg.UseSSL = b
	}

	if cfg.Endpoint == "" || cfg.Bucket == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return S3Config{}, errors.New("missing required S3 env: S3_ENDPOINT, S3_BUCKET, S3_ACCESS_KEY, S3_SECRET_KEY")
	}
	// Region can be empty for MinIO.
	return cfg, nil
}

// S3Storage issues presigned upload slots. Attachment bytes travel directly
// between the client and the object store; messages persist only the URLs.
type S3Storage struct {
	client    *minio.Client
	bucket    string
	publicURL string
	useSSL    bool
	endpoint  string
}

func NewS3Storage(cfg S3Config) (*S3Storage, error) {
	cl, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}

	return &S3Storage{
		client:    cl,
		bucket:    cfg.Bucket,
		publicURL: cfg.PublicURL,
		useSSL:    cfg.UseSSL,
		endpoint:  cfg.Endpoint,
	}, nil
}

// UploadSlot is one presigned PUT plus the URL the stored object will have
// once the client finishes the upload.
type UploadSlot struct {
	Key       string    `json:"key"`
	UploadURL string    `json:"upload_url"`
	PublicURL string    `json:"public_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PresignUpload reserves an object key under the conversation's prefix and
// returns a short-lived PUT URL for it.
func (s *S3Storage) PresignUpload(ctx context.Context, conversationID uint, fileName string, expiry time.Duration) (UploadSlot, error) {
	key, err := attachmentKey(conversationID, fileName)
	if err != nil {
		return UploadSlot{}, err
	}

	u, err := s.client.PresignedPutObject(ctx, s.bucket, key, expiry)
	if err != nil {
		return UploadSlot{}, err
	}

	return UploadSlot{
		Key:       key,
		UploadURL: u.String(),
		PublicURL: s.objectURL(key),
		ExpiresAt: time.Now().UTC().Add(expiry),
	}, nil
}

// PresignDownload returns a short-lived GET URL for an existing object.
func (s *S3Storage) PresignDownload(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, url.Values{})
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (s *S3Storage) objectURL(key string) string {
	if s.publicURL != "" {
		return strings.TrimRight(s.publicURL, "/") + "/" + key
	}
	scheme := "http"
	if s.useSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.endpoint, s.bucket, key)
}

// attachmentKey builds a collision-free object key. The random component
// keeps repeat uploads of the same file name from overwriting each other.
func attachmentKey(conversationID uint, fileName string) (string, error) {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return "", errors.New("empty file name")
	}
	if strings.Contains(fileName, "..") || strings.ContainsAny(fileName, "\\/") {
		return "", errors.New("invalid file name")
	}
	ext := path.Ext(fileName)
	return fmt.Sprintf("attachments/%d/%s%s", conversationID, uuid.NewString(), ext), nil
}
