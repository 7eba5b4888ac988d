package item

import "strings"

// ToSegment は名前をパスの1セグメントに変換する。
// 前後の空白を除去し、"/" を "-" に置き換える。
func ToSegment(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), "/", "-")
}

// JoinPath は親のパスと名前から子のパスを組み立てる。
// 親がnilまたは空文字の場合はルート直下のパスを返す。
func JoinPath(parentPath *string, name string) string {
	if parentPath == nil || *parentPath == "" {
		return "/" + ToSegment(name)
	}
	return *parentPath + "/" + ToSegment(name)
}

// rebasePath はoldPrefix配下のパスをnewPrefix配下に付け替える。
// 配下でない場合はfalseを返す。
func rebasePath(path, oldPrefix, newPrefix string) (string, bool) {
	if path == oldPrefix {
		return newPrefix, true
	}
	if !strings.HasPrefix(path, oldPrefix+"/") {
		return "", false
	}
	return newPrefix + path[len(oldPrefix):], true
}
