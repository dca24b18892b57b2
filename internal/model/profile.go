// Package model はドメインモデルを定義する。
package model

import "time"

// Profile は認証済み学生のプロフィールを表す。
// 初回のパスコード検証成功時にのみ作成される。
type Profile struct {
	ID              string
	Email           string
	AdmissionYear   int
	StudentSequence int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Passcode はメール宛に発行したワンタイムパスコードを表す。
// 同一メールに対して複数行が共存しうる。Consumed は false から true にのみ遷移する。
type Passcode struct {
	ID        string
	Email     string
	Code      string
	CreatedAt time.Time
	ExpiresAt time.Time
	Consumed  bool
}

// Session はプロフィールのログインセッションを表す。
type Session struct {
	ID        string
	ProfileID string
	Email     string
	ExpiresAt time.Time
	CreatedAt time.Time
}
