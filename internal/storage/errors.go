package storage

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
)

// ErrObjectNotFound 表示证书对象已不在 Bucket 中，调用方用 errors.Is 判断。
var ErrObjectNotFound = errors.New("object not found")

// missingObjectCodes 是 S3 表示对象缺失的错误码；StatObject 走 HEAD 时只有 NotFound。
var missingObjectCodes = map[string]struct{}{
	"NoSuchKey": {},
	"NotFound":  {},
}

func isNoSuchKey(err error) bool {
	if err == nil {
		return false
	}
	var resp minio.ErrorResponse
	if !errors.As(err, &resp) {
		return strings.Contains(strings.ToLower(err.Error()), "specified key does not exist")
	}
	if _, ok := missingObjectCodes[resp.Code]; ok {
		return true
	}
	return resp.Code == "" && resp.StatusCode == http.StatusNotFound
}

// objectError 给错误附上操作与对象键；对象缺失时同时满足 ErrObjectNotFound。
func objectError(op, key string, err error) error {
	if isNoSuchKey(err) {
		return fmt.Errorf("%s object %q: %w: %w", op, key, ErrObjectNotFound, err)
	}
	return fmt.Errorf("%s object %q: %w", op, key, err)
}
