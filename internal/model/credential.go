package model

import "time"

// Credential は講義ごとに発行される短命の出席トークン（QRコードの中身）を表す。
// 発行後は不変。有効期間は [IssuedAt, ExpiresAt) の半開区間。
// 同一講義に複数のトークンが同時に有効であってよい。
type Credential struct {
	ID        string
	Token     string
	LectureID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ValidAt は指定時刻にトークンが有効かどうかを返す。
// 発行時刻より前、または有効期限以降は無効とする。
func (c *Credential) ValidAt(t time.Time) bool {
	return !t.Before(c.IssuedAt) && t.Before(c.ExpiresAt)
}

// RemainingAt は指定時刻から有効期限までの残り時間を返す。期限切れなら0。
func (c *Credential) RemainingAt(t time.Time) time.Duration {
	if d := c.ExpiresAt.Sub(t); d > 0 {
		return d
	}
	return 0
}

// Redemption は学生が講義に出席したという記録を表す。
// (StudentID, LectureID) の組は一意。
type Redemption struct {
	ID           string
	StudentID    string
	LectureID    string
	CredentialID string
	RedeemedAt   time.Time
}
