package storage

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// MaxImageSize 上传图片的最大字节数（10MB）
const MaxImageSize int64 = 10 * 1024 * 1024

var (
	// ErrUnsupportedType 不支持的图片类型
	ErrUnsupportedType = errors.New("文件格式无效，请使用 JPEG、PNG 或 WebP")
	// ErrTooLarge 文件超过大小限制
	ErrTooLarge = errors.New("文件过大，限制为 10MB")
)

var imageExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

// ValidateImage 校验声明的媒体类型和大小，返回规范化的扩展名。
// 扩展名只由媒体类型决定，从不信任客户端文件名。
func ValidateImage(mediaType string, size int64) (string, error) {
	ext, ok := imageExtensions[mediaType]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, mediaType)
	}
	if size > MaxImageSize {
		return "", fmt.Errorf("%w: %d bytes", ErrTooLarge, size)
	}
	return ext, nil
}

// IsValidationError 判断是否为图片校验错误
func IsValidationError(err error) bool {
	return errors.Is(err, ErrUnsupportedType) || errors.Is(err, ErrTooLarge)
}

// ContentTypeFor 根据规范化扩展名返回媒体类型
func ContentTypeFor(ext string) string {
	for mediaType, e := range imageExtensions {
		if e == ext {
			return mediaType
		}
	}
	return "application/octet-stream"
}

// InferContentType 根据文件路径的扩展名推断媒体类型
func InferContentType(p string) string {
	switch strings.ToLower(path.Ext(p)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
