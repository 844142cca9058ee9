package util

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
)

// ValidateMimeType 深度校验文件 MIME 类型
// allowedTypes: 允许的 MIME 前缀或完整类型，如 "text/"
// The returned reader replays the sniffed bytes.
func ValidateMimeType(reader io.Reader, allowedTypes []string) (string, io.Reader, error) {
	buffer := make([]byte, 512)
	n, err := io.ReadFull(reader, buffer)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", nil, err
	}
	buffer = buffer[:n]
	replay := io.MultiReader(bytes.NewReader(buffer), reader)

	mimeType := http.DetectContentType(buffer)
	for _, allowed := range allowedTypes {
		if strings.HasPrefix(mimeType, allowed) || mimeType == allowed {
			return mimeType, replay, nil
		}
	}

	return mimeType, nil, errors.New("invalid file type: " + mimeType)
}
