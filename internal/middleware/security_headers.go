package middleware

import "net/http"

// apiSecurityHeaders は全レスポンスに付与するヘッダー。
// レスポンスはJSONのみで、QR画像もdata URLとしてJSONに埋め込むため、
// ブラウザにはスクリプト・フレーム・外部リソースを一切許可しない。
// 出席トークン・QR画像・認証トークンは短命な秘密情報なので、
// 共有端末やプロキシに残らないようno-storeとする。
var apiSecurityHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Referrer-Policy", "no-referrer"},
	{"Cache-Control", "no-store"},
	{"Pragma", "no-cache"},
	{"Cross-Origin-Resource-Policy", "same-site"},
}

// NewSecurityHeadersMiddleware はセキュリティ関連のHTTPレスポンスヘッダーを付与するミドルウェアを返す。
func NewSecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, h := range apiSecurityHeaders {
				w.Header().Set(h[0], h[1])
			}
			next.ServeHTTP(w, r)
		})
	}
}
