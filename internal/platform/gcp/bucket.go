package gcp

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/partforge/partforge-backend/internal/platform/dbctx"
	"github.com/partforge/partforge-backend/internal/platform/logger"
)

// BucketService is the binary side of the document vault: every DocumentFile
// revision is one immutable object keyed by document, file and revision.
type BucketService interface {
	UploadFile(dbc dbctx.Context, key string, file io.Reader) error
	DownloadFile(ctx context.Context, key string) (io.ReadCloser, error)
	CopyObject(ctx context.Context, srcKey, dstKey string) error
	DeleteFile(dbc dbctx.Context, key string) error
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}

type bucketService struct {
	log           *logger.Logger
	storageClient *storage.Client
	bucketName    string
}

func NewBucketService(log *logger.Logger) (BucketService, error) {
	serviceLog := log.With("service", "BucketService")

	bucketName := strings.TrimSpace(os.Getenv("VAULT_GCS_BUCKET_NAME"))
	if bucketName == "" {
		return nil, fmt.Errorf("missing env var VAULT_GCS_BUCKET_NAME")
	}

	ctx := context.Background()
	var opts []option.ClientOption
	if host := strings.TrimSpace(os.Getenv("STORAGE_EMULATOR_HOST")); host != "" {
		opts = append(opts, option.WithEndpoint("http://"+strings.TrimPrefix(host, "http://")+"/storage/v1/"), option.WithoutAuthentication())
	}
	stClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	serviceLog.Info("Vault object storage initialized", "bucket", bucketName)
	return &bucketService{
		log:           serviceLog,
		storageClient: stClient,
		bucketName:    bucketName,
	}, nil
}

func (b *bucketService) UploadFile(dbc dbctx.Context, key string, file io.Reader) error {
	ctx := dbc.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	w := b.storageClient.Bucket(b.bucketName).Object(key).NewWriter(ctx)
	if _, err := io.Copy(w, file); err != nil {
		_ = w.Close()
		return fmt.Errorf("upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

func (b *bucketService) DownloadFile(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := b.storageClient.Bucket(b.bucketName).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", key, err)
	}
	return r, nil
}

func (b *bucketService) CopyObject(ctx context.Context, srcKey, dstKey string) error {
	bucket := b.storageClient.Bucket(b.bucketName)
	src := bucket.Object(srcKey)
	dst := bucket.Object(dstKey)
	if _, err := dst.CopierFrom(src).Run(ctx); err != nil {
		return fmt.Errorf("copy %s -> %s: %w", srcKey, dstKey, err)
	}
	return nil
}

func (b *bucketService) DeleteFile(dbc dbctx.Context, key string) error {
	ctx := dbc.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	err := b.storageClient.Bucket(b.bucketName).Object(key).Delete(ctx)
	if err != nil && err != storage.ErrObjectNotExist {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (b *bucketService) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	it := b.storageClient.Bucket(b.bucketName).Objects(ctx, &storage.Query{Prefix: prefix})
	var keys []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}
