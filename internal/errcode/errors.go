package errcode

import (
	"errors"
	"fmt"
)

// 业务错误分类。调用方使用 fmt.Errorf("%w: ...", ErrXxx) 包装细节，
// 上层通过 errors.Is 判定类别。
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflict")
	ErrStorage      = errors.New("storage failure")
)

// Of 返回 err 对应的错误码；nil 返回 OK，无法识别的错误视为 SystemError。
func Of(err error) int {
	switch {
	case err == nil:
		return OK
	case errors.Is(err, ErrUnauthorized):
		return Unauthorized
	case errors.Is(err, ErrNotFound):
		return NotFound
	case errors.Is(err, ErrValidation):
		return ValidationFailed
	case errors.Is(err, ErrConflict):
		return Conflict
	case errors.Is(err, ErrStorage):
		return StorageFailure
	default:
		return SystemError
	}
}

// Storage 把底层存储错误归入 ErrStorage，并保留原始错误链。
func Storage(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
