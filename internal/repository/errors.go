package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	// ErrDuplicate は一意制約違反を表す。
	ErrDuplicate = errors.New("repository: duplicate key")

	// ErrNotFound は更新・削除対象が存在しないことを表す。
	ErrNotFound = errors.New("repository: not found")

	// ErrUnavailable はストアの一時障害を表す。呼び出し側でのリトライ対象。
	ErrUnavailable = errors.New("repository: store unavailable")
)

// SQLSTATE: 入力値がカラム型として解釈できない場合のエラー
const (
	pqInvalidTextRepresentation pq.ErrorCode = "22P02"
	pqCharacterNotInRepertoire  pq.ErrorCode = "22021"
)

// validID はidがUUIDとして解釈できるかどうかを返す。
// 解釈できないIDの行は存在しないため、クエリを発行せずに未検出として扱う。
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// validText はsがtext型に格納できる（NULを含まない正しいUTF-8）かどうかを返す。
func validText(s string) bool {
	return utf8.ValidString(s) && !strings.ContainsRune(s, 0)
}

// isNoRows は単一行の検索が該当なしとなったかどうかを返す。
// 型として解釈できない検索キーも該当なしとみなす。
func isNoRows(err error) bool {
	if errors.Is(err, sql.ErrNoRows) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqInvalidTextRepresentation || pqErr.Code == pqCharacterNotInRepertoire
	}
	return false
}

// pqUniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const pqUniqueViolation pq.ErrorCode = "23505"

// IsUniqueViolation はエラーが一意制約違反かどうかを返す。
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	return false
}

// isTransient はリトライで回復しうるドライバ・ネットワーク障害かどうかを判定する。
func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", // connection_exception
			"53", // insufficient_resources
			"57": // operator_intervention (admin_shutdown等)
			return true
		}
		// serialization_failure / deadlock_detected
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// wrapErr はドライバエラーに文脈を付与する。
// 一時障害の場合はErrUnavailableでもerrors.Isできるようにする。
func wrapErr(msg string, err error) error {
	if isTransient(err) {
		return fmt.Errorf("%s: %w: %w", msg, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
