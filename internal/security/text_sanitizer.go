// Package security はアプリケーションのセキュリティ機能を提供する。
//
// パスワードハッシュと、利用者が入力した表示用テキストからのマークアップ除去を含む。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// textPolicy は全てのタグを除去するポリシー。bluemonday.Policyは並行利用できる。
var textPolicy = bluemonday.StrictPolicy()

// SanitizeText は氏名・コース名などの表示用テキストから全てのHTMLタグを除去し、
// 前後の空白を取り除いたプレーンテキストを返す。
// 除去後の文字実体参照はデコードするため、"R&D" はそのまま保持される。
// 結果はプレーンテキストであり、描画側でのエスケープを前提とする。
func SanitizeText(s string) string {
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(s)))
}
