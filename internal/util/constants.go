package util

const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20

	// MaxImportSize caps a question import upload.
	MaxImportSize = 2 << 20
)
