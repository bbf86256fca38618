// Package backend はPOSバックエンドAPIのクライアントを提供する。
// レジ担当者のPIN認証、強制PINリセット、端末一覧の取得を行う。
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/linearpos/posagent/internal/model"
)

// RemoteError はバックエンドが返した非2xxレスポンスを表す。
// MessageはUIにそのまま表示される。
type RemoteError struct {
	StatusCode int
	Message    string
}

// Error はerrorインターフェースを実装する。
func (e *RemoteError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Message)
}

// AuthRequest はPIN認証リクエストのボディ。
type AuthRequest struct {
	TenantID   string `json:"tenantId"`
	BranchID   string `json:"branchId"`
	TerminalID string `json:"terminalId"`
	PIN        string `json:"pin"`
}

// ResetPINRequest は強制PINリセットリクエストのボディ。
type ResetPINRequest struct {
	TenantID   string `json:"tenantId"`
	BranchID   string `json:"branchId"`
	TerminalID string `json:"terminalId"`
	CashierID  string `json:"cashierId"`
	TempPIN    string `json:"tempPin"`
	NewPIN     string `json:"newPin"`
}

// AuthResult はPIN認証・PINリセットのレスポンス。
// RequiresPinResetは認証エンドポイントのみが設定する。
type AuthResult struct {
	User             model.User `json:"user"`
	Token            string     `json:"token"`
	RequiresPinReset bool       `json:"requiresPinReset"`
}

// Terminal はバックエンドに登録された端末を表す。
// モードプロビジョニング画面の一覧表示と再確認に使用する。
type Terminal struct {
	ID       string `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	TenantID string `json:"tenantId"`
	BranchID string `json:"branchId"`
}

// Client はPOSバックエンドAPIのHTTPクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// CashierAuth はPIN認証を実行する。
// 非2xxレスポンスはRemoteErrorとして返し、メッセージはUIがそのまま表示する。
func (c *Client) CashierAuth(ctx context.Context, req AuthRequest) (*AuthResult, error) {
	var result AuthResult
	if err := c.post(ctx, "/cashiers/auth", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ResetPIN は一時PINから恒久PINへのリセットを実行する。
// 成功レスポンスは認証レスポンスと同形で、追加のログイン往復なしにセッションを確立できる。
func (c *Client) ResetPIN(ctx context.Context, req ResetPINRequest) (*AuthResult, error) {
	var result AuthResult
	if err := c.post(ctx, "/cashiers/auth/reset-pin", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListTerminals は登録済み端末の一覧を取得する。
func (c *Client) ListTerminals(ctx context.Context) ([]Terminal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/terminals", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("terminal list request failed",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to list terminals: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.remoteError(resp.StatusCode, body)
	}

	var envelope struct {
		Data []Terminal `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse terminal list: %w", err)
	}
	return envelope.Data, nil
}

// userAgent は全リクエストに付与するUser-Agentヘッダー。
const userAgent = "posagent/1.0"

// post はJSONボディのPOSTを実行し、dataエンベロープをoutへデコードする。
func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("backend request failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to call backend: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("backend returned error status",
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return c.remoteError(resp.StatusCode, respBody)
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("failed to parse response envelope: %w", err)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("failed to parse response data: %w", err)
	}
	return nil
}

// remoteError は非2xxレスポンスのmessageフィールドを取り出してRemoteErrorを生成する。
// messageが読めない場合は空のまま返し、表示側が汎用メッセージで補完する。
func (c *Client) remoteError(status int, body []byte) *RemoteError {
	var payload struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &payload)
	return &RemoteError{StatusCode: status, Message: payload.Message}
}
