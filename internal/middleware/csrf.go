package middleware

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/linearpos/posagent/internal/model"
)

// NewCSRFMiddleware は状態変更メソッドに対するクロスサイトリクエストを遮断する
// ミドルウェアを返す。CORSは単純リクエストの送信自体を止めないため、
// ブラウザのフォームPOSTがループバックのAPIへ届き得る。
// 安全なメソッド（GET, HEAD, OPTIONS）は検証をスキップする。
// Originヘッダーが存在する場合は許可オリジンとの一致を必須とし、
// Originがないリクエスト（UIシェルやcurlなどブラウザ外クライアント）は
// Refererがあればそのオリジンで同様に検証する。
func NewCSRFMiddleware(allowedOrigin string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			origin := r.Header.Get("Origin")
			if origin == "" {
				origin = refererOrigin(r.Header.Get("Referer"))
			}
			if origin != "" && origin != allowedOrigin {
				slog.Warn("cross-site request blocked",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("origin", origin),
				)
				writeCSRFRejected(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isSafeMethod はHTTPメソッドが安全（読み取り専用）かどうかを判定する。
func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// refererOrigin はRefererのURLからオリジン（scheme://host）を取り出す。
// 解釈できない場合は空文字を返す。
func refererOrigin(referer string) string {
	if referer == "" {
		return ""
	}
	u, err := url.Parse(referer)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func writeCSRFRejected(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusForbidden, &model.APIError{
		Code:     "CROSS_SITE_REQUEST",
		Message:  "The request origin is not allowed.",
		Category: "system",
		Action:   "Use the terminal application to access this agent.",
	})
}
