package utils

import (
	"os"
	"path/filepath"
	"regexp"
)

// unsafeSegmentChars 路径片段中不允许出现的字符
var unsafeSegmentChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SegmentPlaceholder 清洗后为空时使用的占位名称
const SegmentPlaceholder = "item"

// EnsureDirExists 确保目录存在，如果不存在则创建
func EnsureDirExists(dirPath string) error {
	return os.MkdirAll(dirPath, 0755)
}

// SaveFile 将数据保存到文件中
func SaveFile(data []byte, filePath string) error {
	if err := EnsureDirExists(filepath.Dir(filePath)); err != nil {
		return err
	}
	return os.WriteFile(filePath, data, 0644)
}

// SanitizeSegment 将调用方提供的标识清洗为安全的路径片段，只保留 [a-zA-Z0-9_-]
func SanitizeSegment(value string) string {
	cleaned := unsafeSegmentChars.ReplaceAllString(value, "")
	if cleaned == "" {
		return SegmentPlaceholder
	}
	return cleaned
}
