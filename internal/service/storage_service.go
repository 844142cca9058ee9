package service

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"teacherdev_backend/internal/config"
)

// MediaStore resolves the storage reference recorded as a media answer and
// downloads the object to a local file.
type MediaStore interface {
	Fetch(ctx context.Context, ref string, dst string) error
}

// LocalMediaStore reads recordings uploaded to the local uploads directory.
type LocalMediaStore struct {
	Config *config.StorageConfig
}

func (p *LocalMediaStore) Fetch(ctx context.Context, ref string, dst string) error {
	key, err := objectKey(ref, "/uploads/")
	if err != nil {
		return err
	}

	srcFile, err := os.Open(filepath.Join(p.Config.LocalPath, filepath.FromSlash(key)))
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer dstFile.Close()

	_, err = io.Copy(dstFile, srcFile)
	return err
}

type MinioMediaStore struct {
	Config *config.StorageConfig
	Client *minio.Client
}

func NewMinioMediaStore(cfg *config.StorageConfig) (*MinioMediaStore, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessID, cfg.MinioSecret, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, err
	}
	return &MinioMediaStore{Config: cfg, Client: client}, nil
}

func (p *MinioMediaStore) Fetch(ctx context.Context, ref string, dst string) error {
	key, err := objectKey(ref, "/"+p.Config.MinioBucket+"/")
	if err != nil {
		return err
	}
	return p.Client.FGetObject(ctx, p.Config.MinioBucket, key, dst, minio.GetObjectOptions{})
}

// OSSMediaStore 阿里云OSS
type OSSMediaStore struct {
	Config *config.StorageConfig
	Client *oss.Client
}

func NewOSSMediaStore(cfg *config.StorageConfig) (*OSSMediaStore, error) {
	client, err := oss.New(cfg.OSSEndpoint, cfg.OSSAccessKey, cfg.OSSSecretKey)
	if err != nil {
		return nil, err
	}
	return &OSSMediaStore{Config: cfg, Client: client}, nil
}

func (p *OSSMediaStore) Fetch(ctx context.Context, ref string, dst string) error {
	key, err := objectKey(ref, "/")
	if err != nil {
		return err
	}
	bucket, err := p.Client.Bucket(p.Config.OSSBucket)
	if err != nil {
		return err
	}
	return bucket.GetObjectToFile(key, dst, oss.WithContext(ctx))
}

// NewMediaStore picks the backend named by storage.type, falling back to the
// local directory.
func NewMediaStore(cfg *config.StorageConfig) (MediaStore, error) {
	switch cfg.Type {
	case "minio":
		return NewMinioMediaStore(cfg)
	case "oss":
		return NewOSSMediaStore(cfg)
	case "", "local":
		return &LocalMediaStore{Config: cfg}, nil
	}
	return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
}

// objectKey accepts either a bare object key or a URL produced by the upload
// endpoints and returns the key. prefix is the URL path that precedes keys.
func objectKey(ref, prefix string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("empty media reference")
	}

	if u, err := url.Parse(ref); err == nil {
		ref = u.Path
	}
	ref = strings.TrimPrefix(ref, prefix)
	ref = strings.TrimPrefix(ref, "/")

	clean := filepath.ToSlash(filepath.Clean(ref))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid media reference %q", ref)
	}
	return clean, nil
}
