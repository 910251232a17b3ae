// Package notify sends Feishu (Lark) IM messages as the bot.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultBaseURL = "https://open.feishu.cn"

// Message types accepted by Send.
const (
	MsgText        = "text"
	MsgInteractive = "interactive"
)

// Card themes are Feishu header templates, e.g. "blue", "green", "red".
const (
	DefaultTitle = "LifeOps"
	DefaultTheme = "blue"
)

// ErrCredentials means the app id or secret is missing.
var ErrCredentials = errors.New("feishu app id and secret are required")

type Config struct {
	AppID     string
	AppSecret string
	BaseURL   string
}

// Messenger holds a tenant access token and refreshes it shortly before it
// expires. It is safe for concurrent use.
type Messenger struct {
	cfg    Config
	client *http.Client
	now    func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

func New(cfg Config, client *http.Client) (*Messenger, error) {
	if cfg.AppID == "" || cfg.AppSecret == "" {
		return nil, ErrCredentials
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Messenger{cfg: cfg, client: client, now: time.Now}, nil
}

// apiResponse is the envelope of every Open Platform response.
type apiResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type APIError struct {
	Status int
	Code   int
	Msg    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("feishu api error: http %d, code %d: %s", e.Status, e.Code, e.Msg)
}

// Card is an interactive message with a coloured header and one markdown
// block.
type Card struct {
	Title   string
	Theme   string
	Content string
}

type cardText struct {
	Tag     string `json:"tag"`
	Content string `json:"content"`
}

type cardHeader struct {
	Title    cardText `json:"title"`
	Template string   `json:"template"`
}

type cardElement struct {
	Tag  string   `json:"tag"`
	Text cardText `json:"text"`
}

func (c Card) MarshalJSON() ([]byte, error) {
	title, theme := c.Title, c.Theme
	if title == "" {
		title = DefaultTitle
	}
	if theme == "" {
		theme = DefaultTheme
	}
	return json.Marshal(struct {
		Header   cardHeader    `json:"header"`
		Elements []cardElement `json:"elements"`
	}{
		Header:   cardHeader{Title: cardText{Tag: "plain_text", Content: title}, Template: theme},
		Elements: []cardElement{{Tag: "div", Text: cardText{Tag: "lark_md", Content: c.Content}}},
	})
}

// SendText sends a plain text message to an open_id.
func (m *Messenger) SendText(ctx context.Context, openID, text string) (string, error) {
	content, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", err
	}
	return m.send(ctx, openID, MsgText, content)
}

// SendCard sends an interactive card to an open_id.
func (m *Messenger) SendCard(ctx context.Context, openID string, card Card) (string, error) {
	content, err := json.Marshal(card)
	if err != nil {
		return "", err
	}
	return m.send(ctx, openID, MsgInteractive, content)
}

// Send dispatches on msgType, which is MsgText or MsgInteractive.
func (m *Messenger) Send(ctx context.Context, openID, msgType string, card Card) (string, error) {
	switch msgType {
	case "", MsgText:
		return m.SendText(ctx, openID, card.Content)
	case MsgInteractive:
		return m.SendCard(ctx, openID, card)
	}
	return "", fmt.Errorf("unknown message type %q (want %q or %q)", msgType, MsgText, MsgInteractive)
}

func (m *Messenger) send(ctx context.Context, openID, msgType string, content []byte) (string, error) {
	if openID == "" {
		return "", fmt.Errorf("recipient open_id is required")
	}
	token, err := m.tenantToken(ctx)
	if err != nil {
		return "", err
	}

	body := map[string]string{
		"receive_id": openID,
		"msg_type":   msgType,
		"content":    string(content),
		"uuid":       uuid.NewString(),
	}
	var out struct {
		apiResponse
		Data struct {
			MessageID string `json:"message_id"`
		} `json:"data"`
	}
	if err := m.post(ctx, "/open-apis/im/v1/messages?receive_id_type=open_id", token, body, &out); err != nil {
		return "", fmt.Errorf("unable to send message: %w", err)
	}
	return out.Data.MessageID, nil
}

// tenantToken returns the cached token, fetching a new one when none is
// cached or it expires within a minute.
func (m *Messenger) tenantToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token != "" && m.now().Add(time.Minute).Before(m.expires) {
		return m.token, nil
	}

	var out struct {
		apiResponse
		TenantAccessToken string `json:"tenant_access_token"`
		Expire            int    `json:"expire"`
	}
	body := map[string]string{"app_id": m.cfg.AppID, "app_secret": m.cfg.AppSecret}
	if err := m.post(ctx, "/open-apis/auth/v3/tenant_access_token/internal", "", body, &out); err != nil {
		return "", fmt.Errorf("unable to get tenant access token: %w", err)
	}
	if out.TenantAccessToken == "" {
		return "", fmt.Errorf("unable to get tenant access token: empty token")
	}
	m.token = out.TenantAccessToken
	m.expires = m.now().Add(time.Duration(out.Expire) * time.Second)
	return m.token, nil
}

// post sends a JSON body and decodes the envelope into out. A non-zero
// code is an *APIError even on HTTP 200.
func (m *Messenger) post(ctx context.Context, path, token string, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	var env apiResponse
	if err := json.Unmarshal(raw, &env); err != nil {
		return &APIError{Status: resp.StatusCode, Code: -1, Msg: strings.TrimSpace(string(raw))}
	}
	if resp.StatusCode != http.StatusOK || env.Code != 0 {
		return &APIError{Status: resp.StatusCode, Code: env.Code, Msg: env.Msg}
	}
	return json.Unmarshal(raw, out)
}
