// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code      string // エラーコード
	Message   string // エラーメッセージ
	Category  string // カテゴリ: auth, authorization, credential, enrollment, redemption, validation, system
	Action    string // ユーザー向け対処方法
	Retryable bool   // 呼び出し側でのリトライが許される一時障害かどうか
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	// AuthenticationFailure
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeAssertionExpired   = "ASSERTION_EXPIRED"
	ErrCodeAssertionMalformed = "ASSERTION_MALFORMED"
	ErrCodeIdentityUnknown    = "IDENTITY_UNKNOWN"

	// AuthorizationFailure
	ErrCodeRoleForbidden   = "ROLE_FORBIDDEN"
	ErrCodeNotSessionOwner = "NOT_SESSION_OWNER"
	ErrCodeNotCourseOwner  = "NOT_COURSE_OWNER"

	// CredentialInvalid / EnrollmentMissing / DuplicateRedemption
	ErrCodeCredentialInvalid   = "CREDENTIAL_INVALID"
	ErrCodeEnrollmentMissing   = "ENROLLMENT_MISSING"
	ErrCodeDuplicateRedemption = "DUPLICATE_REDEMPTION"

	// StoreUnavailable
	ErrCodeStoreUnavailable = "STORE_UNAVAILABLE"

	// 入力検証・参照
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
	ErrCodeInvalidValidity = "INVALID_VALIDITY"
	ErrCodeSessionNotFound = "SESSION_NOT_FOUND"
	ErrCodeCourseNotFound  = "COURSE_NOT_FOUND"
	ErrCodeIdentityExists  = "IDENTITY_EXISTS"
	ErrCodeAlreadyEnrolled = "ALREADY_ENROLLED"
)

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
// 識別子の存在有無を漏らさないため、未登録とパスワード不一致を区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "学籍番号またはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewUnauthorizedError は認証情報が提示されなかった場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewAssertionExpiredError は認証トークンの有効期限切れエラーを生成する。
func NewAssertionExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAssertionExpired,
		Message:  "認証トークンの有効期限が切れています。",
		Category: "auth",
		Action:   "再度ログインしてください。",
	}
}

// NewAssertionMalformedError は署名不正・形式不正な認証トークンのエラーを生成する。
func NewAssertionMalformedError() *APIError {
	return &APIError{
		Code:     ErrCodeAssertionMalformed,
		Message:  "認証トークンが不正です。",
		Category: "auth",
		Action:   "再度ログインしてください。",
	}
}

// NewIdentityUnknownError は認証トークンの主体が存在しない場合のエラーを生成する。
func NewIdentityUnknownError() *APIError {
	return &APIError{
		Code:     ErrCodeIdentityUnknown,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewRoleForbiddenError は操作に必要なロールを持たない場合のエラーを生成する。
func NewRoleForbiddenError(required Role) *APIError {
	return &APIError{
		Code:     ErrCodeRoleForbidden,
		Message:  fmt.Sprintf("この操作は%sのみ実行できます。", required.Label()),
		Category: "authorization",
		Action:   "権限のあるアカウントでログインしてください。",
	}
}

// NewNotSessionOwnerError は講義の担当者でない場合のエラーを生成する。
func NewNotSessionOwnerError(lectureID string) *APIError {
	return &APIError{
		Code:     ErrCodeNotSessionOwner,
		Message:  fmt.Sprintf("この講義の担当者ではありません: %s", lectureID),
		Category: "authorization",
		Action:   "担当している講義を選択してください。",
	}
}

// NewNotCourseOwnerError はコースの担当者でない場合のエラーを生成する。
func NewNotCourseOwnerError(courseID string) *APIError {
	return &APIError{
		Code:     ErrCodeNotCourseOwner,
		Message:  fmt.Sprintf("このコースの担当者ではありません: %s", courseID),
		Category: "authorization",
		Action:   "担当しているコースを選択してください。",
	}
}

// NewCredentialInvalidError は未知または期限切れの出席トークンのエラーを生成する。
func NewCredentialInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCredentialInvalid,
		Message:  "QRコードが無効か、有効期限が切れています。",
		Category: "credential",
		Action:   "講師に新しいQRコードを表示してもらってください。",
	}
}

// NewEnrollmentMissingError は履修登録がない場合のエラーを生成する。
func NewEnrollmentMissingError() *APIError {
	return &APIError{
		Code:     ErrCodeEnrollmentMissing,
		Message:  "このコースを履修していません。",
		Category: "enrollment",
		Action:   "履修登録を確認してください。",
	}
}

// NewDuplicateRedemptionError は同一講義への二重出席エラーを生成する。
func NewDuplicateRedemptionError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateRedemption,
		Message:  "この講義にはすでに出席登録済みです。",
		Category: "redemption",
		Action:   "出席登録は1講義につき1回のみです。",
	}
}

// NewStoreUnavailableError はストアの一時障害エラーを生成する。
// 呼び出し側でのリトライが許される唯一のエラー。
func NewStoreUnavailableError() *APIError {
	return &APIError{
		Code:      ErrCodeStoreUnavailable,
		Message:   "一時的にデータベースへ接続できません。",
		Category:  "system",
		Action:    "しばらく待ってから再度お試しください。",
		Retryable: true,
	}
}

// NewInvalidRequestError は入力検証エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidValidityError は有効期間が範囲外の場合のエラーを生成する。
func NewInvalidValidityError(minutes float64, maxMinutes float64) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidValidity,
		Message:  fmt.Sprintf("無効な有効期間です: %g分", minutes),
		Category: "validation",
		Action:   fmt.Sprintf("有効期間は0分から%g分の範囲で指定してください。", maxMinutes),
	}
}

// NewSessionNotFoundError は講義が見つからない場合のエラーを生成する。
func NewSessionNotFoundError(lectureID string) *APIError {
	return &APIError{
		Code:     ErrCodeSessionNotFound,
		Message:  fmt.Sprintf("指定された講義が見つかりません: %s", lectureID),
		Category: "validation",
		Action:   "講義IDを確認してください。",
	}
}

// NewCourseNotFoundError はコースが見つからない場合のエラーを生成する。
func NewCourseNotFoundError(courseID string) *APIError {
	return &APIError{
		Code:     ErrCodeCourseNotFound,
		Message:  fmt.Sprintf("指定されたコースが見つかりません: %s", courseID),
		Category: "validation",
		Action:   "コースIDを確認してください。",
	}
}

// NewIdentityExistsError は学籍番号が登録済みの場合のエラーを生成する。
func NewIdentityExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeIdentityExists,
		Message:  "この学籍番号はすでに登録されています。",
		Category: "validation",
		Action:   "ログイン画面からログインしてください。",
	}
}

// NewAlreadyEnrolledError は履修登録済みの場合のエラーを生成する。
func NewAlreadyEnrolledError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyEnrolled,
		Message:  "このコースはすでに履修登録済みです。",
		Category: "enrollment",
		Action:   "履修中のコース一覧を確認してください。",
	}
}
