// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// UIDはFirebaseのsubjectで、リクエストごとにupsertされる。
type User struct {
	ID        string
	UID       string
	Email     string
	Name      string
	PhotoURL  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity は検証済みIDトークンから得られる認証主体を表す。
type Identity struct {
	UID     string
	Email   string
	Name    string
	Picture string
}

// ProfileUpdate はプロフィール更新の入力を表す。nilの項目は変更しない。
type ProfileUpdate struct {
	DisplayName *string
	PhotoURL    *string
}
