// Package catalog 管理用户的成就与技能，所有查询均按 userID 限定归属。
package catalog

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"careerResume/internal/errcode"
)

func lookupErr(what string, id uint, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %d", errcode.ErrNotFound, what, id)
	}
	return errcode.Storage("load "+what, err)
}
