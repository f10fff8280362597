package storage

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const maxObjectKeyLength = 200

// CertificateExtensions 是允许上传的证书扩展名。
var CertificateExtensions = []string{".pdf", ".png", ".jpg", ".jpeg"}

// UserPrefix 返回用户私有对象的前缀。
func UserPrefix(userID uint) string {
	return fmt.Sprintf("user-assets/%d/", userID)
}

// NewCertificateKey 生成新的证书对象键，ext 需包含前导点。
func NewCertificateKey(userID uint, ext string) string {
	return UserPrefix(userID) + uuid.NewString() + strings.ToLower(ext)
}

// IsUserCertificateKey 校验对象键属于该用户且扩展名可接受，拒绝路径穿越。
func IsUserCertificateKey(userID uint, key string) bool {
	if userID == 0 || key == "" || !utf8.ValidString(key) {
		return false
	}
	if !strings.HasPrefix(key, UserPrefix(userID)) {
		return false
	}
	if strings.Contains(key, "..") || strings.Contains(key, "\\") || strings.Contains(key, "//") {
		return false
	}
	if len(key) > maxObjectKeyLength {
		return false
	}
	return HasCertificateExtension(key)
}

// HasCertificateExtension 判断文件名是否以允许的扩展名结尾（忽略大小写）。
func HasCertificateExtension(name string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	for _, ext := range CertificateExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
