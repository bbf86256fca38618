// Package gate はデバイスモードと認証セッションからルーティング判定を行う。
// 判定は純粋関数で、優先順位の評価順が仕様そのものになっている:
// terminalモードの短絡評価が先頭になければ、未認証のterminal端末が
// キオスクオーバーレイではなくログイン画面へ飛ばされてしまう。
package gate

import (
	"net/url"
	"slices"
	"strings"

	"github.com/linearpos/posagent/internal/model"
)

// 既知のパス
const (
	PathRoot         = "/"
	PathLogin        = "/login"
	PathPOS          = "/pos"
	PathDashboard    = "/dashboard"
	PathUnauthorized = "/unauthorized"
)

// Action は判定結果の種別を表す。
type Action string

const (
	// ActionRender は要求されたルートをそのまま描画する。
	ActionRender Action = "render"
	// ActionRenderWithPinOverlay はコンテンツの上にPINオーバーレイを重ねて描画する。
	// terminal端末ではオーバーレイ自体がログイン手段となる。
	ActionRenderWithPinOverlay Action = "render_with_pin_overlay"
	// ActionLoading はセッション確認中のプレースホルダ表示を指示する。
	ActionLoading Action = "loading"
	// ActionRedirect はRedirectToへの遷移を指示する。
	ActionRedirect Action = "redirect"
)

// Decision はルーティング判定の結果。
type Decision struct {
	Action     Action `json:"action"`
	RedirectTo string `json:"redirectTo,omitempty"`
}

// SessionState は判定に必要なセッション側の入力。
type SessionState struct {
	IsLoading       bool
	IsAuthenticated bool
	Role            model.Role
}

// Route は判定対象のルート記述子。
type Route struct {
	// Path は要求されたパス。
	Path string
	// RequiredRoles が空でない場合、このルートは列挙されたロール専用。
	RequiredRoles []model.Role
	// ManagerArea は管理画面系のルートであることを示す。
	// CASHIER系ロールはPOSへリダイレクトされる。
	ManagerArea bool
}

// Evaluate は(デバイスモード, セッション, ルート)からルーティング判定を返す。
// 評価は優先順位順で、最初に成立した規則が結果を決める。
func Evaluate(mode model.DeviceModeRecord, sess SessionState, route Route) Decision {
	// 1. terminal端末は常にPOS画面を描画する。未認証ならPINオーバーレイを重ねる。
	//    terminal端末がPOS画面以外へリダイレクトされることはない。
	if mode.Type == model.DeviceModeTerminal {
		if !sess.IsAuthenticated {
			return Decision{Action: ActionRenderWithPinOverlay}
		}
		return Decision{Action: ActionRender}
	}

	// 2. セッション確認中は判定を保留する
	if sess.IsLoading {
		return Decision{Action: ActionLoading}
	}

	// 3. 未認証はログインへ。戻り先として要求パスを保存する。
	if !sess.IsAuthenticated {
		return Decision{Action: ActionRedirect, RedirectTo: loginWithReturn(route.Path)}
	}

	// 4. CASHIER系ロールが管理画面を要求した場合はPOSへ
	if sess.Role.IsCashierLike() && route.ManagerArea {
		return Decision{Action: ActionRedirect, RedirectTo: PathPOS}
	}

	// 5. ルートパスはロール別の初期画面へ
	if route.Path == PathRoot || route.Path == "" {
		if sess.Role.IsCashierLike() {
			return Decision{Action: ActionRedirect, RedirectTo: PathPOS}
		}
		return Decision{Action: ActionRedirect, RedirectTo: PathDashboard}
	}

	// 6. 要求ロール集合に含まれない場合はunauthorizedへ
	if len(route.RequiredRoles) > 0 && !slices.Contains(route.RequiredRoles, sess.Role) {
		return Decision{Action: ActionRedirect, RedirectTo: PathUnauthorized}
	}

	// 7. それ以外は要求ルートを描画する
	return Decision{Action: ActionRender}
}

// loginWithReturn はログイン後の戻り先を保存したログインパスを生成する。
func loginWithReturn(path string) string {
	if path == "" || path == PathRoot || strings.HasPrefix(path, PathLogin) {
		return PathLogin
	}
	return PathLogin + "?from=" + url.QueryEscape(path)
}
