package service

import (
	"context"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/vasifalituri/sechenov-plus-sub000/internal/config"
	"github.com/vasifalituri/sechenov-plus-sub000/pkg/logger"
	"go.uber.org/zap"
)

// StorageService resolves question image references to fetchable URLs.
// Images are uploaded by the authoring tool; this engine only reads them.
type StorageService struct {
	cfg    *config.Config
	client *minio.Client
}

func NewStorageService(cfg *config.Config) *StorageService {
	s := &StorageService{cfg: cfg}

	if cfg.Storage.Type == "minio" {
		client, err := minio.New(cfg.Storage.MinioEndpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.Storage.MinioAccessID, cfg.Storage.MinioSecret, ""),
			Secure: cfg.Storage.MinioUseSSL,
		})
		if err != nil {
			logger.Log.Error("Failed to initialize minio client", zap.Error(err))
		} else {
			s.client = client
		}
	}

	return s
}

// ResolveImageURL turns a stored image reference into a URL the client can
// load: absolute URLs pass through, minio objects get a presigned GET URL,
// local files map under /uploads.
func (s *StorageService) ResolveImageURL(ctx context.Context, ref string) string {
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}

	if s.client != nil {
		u, err := s.client.PresignedGetObject(ctx, s.cfg.Storage.MinioBucket, ref, time.Hour, nil)
		if err != nil {
			logger.Log.Warn("Failed to presign image URL", zap.String("ref", ref), zap.Error(err))
			return ""
		}
		return u.String()
	}

	return "/uploads/" + ref
}
