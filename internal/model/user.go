// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// Passwordはbcryptハッシュ値であり、平文は保持しない。
type User struct {
	ID        string
	Email     string
	Name      string
	Password  string
	Age       int
	Avatar    []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasAvatar はアバター画像が登録済みかどうかを返す。
func (u *User) HasAvatar() bool {
	return len(u.Avatar) > 0
}

// Token はユーザーに発行したセッショントークンを表す。
// 署名検証に加えて、ユーザーの有効トークン一覧に存在することを認証条件とする。
type Token struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
