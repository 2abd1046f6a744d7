package model

import "time"

// Course は講義グループ（コース）を表す。履修登録の単位。
type Course struct {
	ID         string
	Code       string
	Name       string
	LecturerID string
	CreatedAt  time.Time
}

// Lecture は出席確認の対象となる1回分の講義を表す。
// OwnerIDはコースの担当講師IDで、取得時にcoursesから導出される。
type Lecture struct {
	ID        string
	CourseID  string
	OwnerID   string
	StartsAt  time.Time
	EndsAt    time.Time
	CreatedAt time.Time
}

// Enrollment は学生のコース履修を表す。出席登録の前提条件として参照される。
type Enrollment struct {
	StudentID string
	CourseID  string
	CreatedAt time.Time
}
