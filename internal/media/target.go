package media

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/ysicing/ProfileBgAPI/pkg/storage"
	"github.com/ysicing/ProfileBgAPI/pkg/utils"
)

// TargetKind 上传目标类型
type TargetKind string

const (
	KindProfilePhoto     TargetKind = "profile"
	KindGlobalBackground TargetKind = "background"
	KindDestinationPhoto TargetKind = "destination"
)

// Target 一次上传的逻辑用途，决定远程路径、本地目录和清理前缀
type Target struct {
	kind   TargetKind
	userID string
	// name 目的地照片的远程对象名，构造时生成
	name string
}

// ProfilePhoto 用户头像，每个用户只保留一个文件
func ProfilePhoto(userID string) Target {
	return Target{kind: KindProfilePhoto, userID: userID}
}

// GlobalBackground 全站背景，只保留一个文件
func GlobalBackground() Target {
	return Target{kind: KindGlobalBackground}
}

// DestinationPhoto 目的地照片，每次上传生成新对象
func DestinationPhoto(userID, originalName string) Target {
	base := strings.TrimSuffix(path.Base(originalName), path.Ext(originalName))
	name := uuid.NewString()
	if safe := utils.SanitizeSegment(base); safe != utils.SegmentPlaceholder {
		name += "-" + safe
	}
	return Target{kind: KindDestinationPhoto, userID: userID, name: name}
}

// Kind 返回目标类型
func (t Target) Kind() TargetKind {
	return t.kind
}

// Key 目标身份，用于同一目标的本地写入互斥
func (t Target) Key() string {
	switch t.kind {
	case KindProfilePhoto:
		return string(t.kind) + ":" + utils.SanitizeSegment(t.userID)
	case KindDestinationPhoto:
		return string(t.kind) + ":" + t.name
	default:
		return string(t.kind)
	}
}

// SingleSlot 是否只保留一个当前文件
func (t Target) SingleSlot() bool {
	return t.kind == KindProfilePhoto || t.kind == KindGlobalBackground
}

// RemotePath 远程存储中的固定路径
func (t Target) RemotePath(appName, ext string) string {
	root := storage.NamespacePrefix(appName)
	switch t.kind {
	case KindProfilePhoto:
		return fmt.Sprintf("%sprofiles/%s.%s", root, utils.SanitizeSegment(t.userID), ext)
	case KindGlobalBackground:
		return fmt.Sprintf("%sbackgrounds/current.%s", root, ext)
	default:
		return fmt.Sprintf("%sdestinations/%s/%s.%s", root, utils.SanitizeSegment(t.userID), t.name, ext)
	}
}

// LocalSegments 本地存储中的目录片段
func (t Target) LocalSegments() []string {
	switch t.kind {
	case KindProfilePhoto:
		return []string{"uploads", "profiles"}
	case KindGlobalBackground:
		return []string{"uploads", "backgrounds"}
	default:
		return []string{"uploads", "destinations"}
	}
}

// LocalPrefix 本地文件名前缀，单槽目标按此前缀清理旧文件
func (t Target) LocalPrefix() string {
	switch t.kind {
	case KindGlobalBackground:
		return "background-"
	default:
		return utils.SanitizeSegment(t.userID) + "-"
	}
}

// LocalFileName 本地文件名，嵌入版本号
func (t Target) LocalFileName(version int64, ext string) string {
	return t.LocalPrefix() + strconv.FormatInt(version, 10) + "." + ext
}
