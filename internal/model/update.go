package model

import (
	"bytes"
	"encoding/json"
	"sort"
)

// UpdateFields は部分更新リクエストのフィールド名と生のJSON値の組を表す。
// 値のデコードは許可リストの検証後に行う。
type UpdateFields map[string]json.RawMessage

// IsNull はJSON値がnullかを返す。
// nullはゼロ値にデコードされるため、各フィールドの型検証の前に拒否する。
func IsNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// AllowList は部分更新で変更を許可するフィールド名の集合。
type AllowList map[string]struct{}

// NewAllowList は指定したフィールド名から許可リストを生成する。
func NewAllowList(fields ...string) AllowList {
	a := make(AllowList, len(fields))
	for _, f := range fields {
		a[f] = struct{}{}
	}
	return a
}

// Disallowed は許可リストに含まれないフィールド名を昇順で返す。
// すべて許可されている場合は空スライスを返す。
func (a AllowList) Disallowed(fields UpdateFields) []string {
	var rejected []string
	for name := range fields {
		if _, ok := a[name]; !ok {
			rejected = append(rejected, name)
		}
	}
	sort.Strings(rejected)
	return rejected
}

// Check はすべてのフィールドが許可リストに含まれるかを検証する。
// 一つでも許可外のフィールドがあれば更新全体を拒否する。
func (a AllowList) Check(fields UpdateFields) error {
	if rejected := a.Disallowed(fields); len(rejected) > 0 {
		return NewInvalidUpdatesError(rejected)
	}
	return nil
}
