package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	appContext "github.com/alphabatem/common/context"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"
)

// ErrAudioNotFound distinguishes a missing object from other storage
// failures.
var ErrAudioNotFound = errors.New("audio object not found")

// BlobStore is the object-storage contract the share lifecycle depends on.
// Kept narrow so tests can swap in a fake.
type BlobStore interface {
	UploadAudio(ctx context.Context, shareID string, audio []byte) (string, error)
	DeleteAudio(ctx context.Context, shareID string) error
	StreamAudio(ctx context.Context, shareID string) (io.ReadCloser, error)
	AudioExists(ctx context.Context, shareID string) (bool, error)
}

type MinIOService struct {
	appContext.DefaultService
	client     *minio.Client
	bucketName string
	endpoint   string
	accessKey  string
	secretKey  string
	useSSL     bool
}

const MINIO_SVC = "minio_svc"

func (svc MinIOService) Id() string {
	return MINIO_SVC
}

func (svc *MinIOService) Configure(ctx *appContext.Context) error {
	svc.endpoint = os.Getenv("MINIO_ENDPOINT")
	if svc.endpoint == "" {
		svc.endpoint = "localhost:9000"
	}

	svc.accessKey = os.Getenv("MINIO_ACCESS_KEY")
	if svc.accessKey == "" {
		svc.accessKey = "admin"
	}

	svc.secretKey = os.Getenv("MINIO_SECRET_KEY")
	if svc.secretKey == "" {
		svc.secretKey = "password123"
	}

	svc.useSSL = os.Getenv("MINIO_USE_SSL") == "true"

	svc.bucketName = os.Getenv("MINIO_BUCKET_NAME")
	if svc.bucketName == "" {
		svc.bucketName = "scamvax"
	}

	return svc.DefaultService.Configure(ctx)
}

func (svc *MinIOService) Start() error {
	client, err := minio.New(svc.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(svc.accessKey, svc.secretKey, ""),
		Secure: svc.useSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to create MinIO client: %v", err)
	}

	svc.client = client

	if err := svc.ensureBucket(); err != nil {
		return fmt.Errorf("failed to ensure bucket exists: %v", err)
	}

	log.Printf("MinIO service started successfully with endpoint: %s", svc.endpoint)
	return nil
}

func (svc *MinIOService) ensureBucket() error {
	ctx := context.Background()

	exists, err := svc.client.BucketExists(ctx, svc.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %v", err)
	}

	if !exists {
		err = svc.client.MakeBucket(ctx, svc.bucketName, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %v", err)
		}
		log.Printf("Created MinIO bucket: %s", svc.bucketName)
	}

	return nil
}

// AudioKey maps a share id to its object key.
func AudioKey(shareID string) string {
	return fmt.Sprintf("fake/%s.wav", shareID)
}

func (svc *MinIOService) UploadAudio(ctx context.Context, shareID string, audio []byte) (string, error) {
	key := AudioKey(shareID)

	_, err := svc.client.PutObject(ctx, svc.bucketName, key, bytes.NewReader(audio), int64(len(audio)), minio.PutObjectOptions{
		ContentType:  "audio/wav",
		CacheControl: "public, max-age=31536000, immutable",
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload audio to MinIO: %v", err)
	}

	return key, nil
}

// DeleteAudio removes the object for a share. An already-absent object is
// treated as success so the lifecycle delete stays idempotent.
func (svc *MinIOService) DeleteAudio(ctx context.Context, shareID string) error {
	err := svc.client.RemoveObject(ctx, svc.bucketName, AudioKey(shareID), minio.RemoveObjectOptions{})
	if err != nil {
		if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchKey" {
			return nil
		}
		return fmt.Errorf("failed to delete audio from MinIO: %v", err)
	}

	return nil
}

func (svc *MinIOService) StreamAudio(ctx context.Context, shareID string) (io.ReadCloser, error) {
	key := AudioKey(shareID)

	obj, err := svc.client.GetObject(ctx, svc.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get audio from MinIO: %v", err)
	}

	// GetObject is lazy, Stat surfaces not-found before the caller starts
	// streaming the response.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchKey" {
			return nil, ErrAudioNotFound
		}
		return nil, fmt.Errorf("failed to stat audio in MinIO: %v", err)
	}

	return obj, nil
}

func (svc *MinIOService) AudioExists(ctx context.Context, shareID string) (bool, error) {
	_, err := svc.client.StatObject(ctx, svc.bucketName, AudioKey(shareID), minio.StatObjectOptions{})
	if err != nil {
		if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat audio in MinIO: %v", err)
	}
	return true, nil
}

func (svc *MinIOService) GetBucketName() string {
	return svc.bucketName
}
