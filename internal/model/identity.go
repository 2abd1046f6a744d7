// Package model はドメインモデルを定義する。
package model

import "time"

// Role はアカウントの役割を表す。
// issuer（出席トークンを発行する側）は講師、subject（引き換える側）は学生。
type Role string

const (
	// RoleLecturer は出席トークンを発行できる講師ロール。
	RoleLecturer Role = "lecturer"
	// RoleStudent は出席トークンを引き換えられる学生ロール。
	RoleStudent Role = "student"
)

// Valid は定義済みのロールかどうかを返す。
func (r Role) Valid() bool {
	return r == RoleLecturer || r == RoleStudent
}

// Label はエラーメッセージ用の表示名を返す。
func (r Role) Label() string {
	switch r {
	case RoleLecturer:
		return "講師"
	case RoleStudent:
		return "学生"
	default:
		return string(r)
	}
}

// Identity は認証済みの利用者を表す。
// PasswordHashはパスワード変更時以外は不変。
type Identity struct {
	ID           string
	UniversityID string
	Name         string
	Role         Role
	PasswordHash string
	CreatedAt    time.Time
}

// IsLecturer は講師ロールかどうかを返す。
func (i Identity) IsLecturer() bool {
	return i.Role == RoleLecturer
}

// IsStudent は学生ロールかどうかを返す。
func (i Identity) IsStudent() bool {
	return i.Role == RoleStudent
}
