package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFeishu struct {
	mu         sync.Mutex
	tokenCalls int
	messages   []map[string]string
	auth       []string
	query      []string
	sendCode   int
}

func (f *fakeFeishu) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	switch r.URL.Path {
	case "/open-apis/auth/v3/tenant_access_token/internal":
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["app_secret"] != "secret" {
			_, _ = w.Write([]byte(`{"code": 10014, "msg": "app secret invalid"}`))
			return
		}
		f.tokenCalls++
		_, _ = w.Write([]byte(`{"code": 0, "msg": "ok", "tenant_access_token": "t-123", "expire": 7200}`))

	case "/open-apis/im/v1/messages":
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.messages = append(f.messages, body)
		f.auth = append(f.auth, r.Header.Get("Authorization"))
		f.query = append(f.query, r.URL.RawQuery)
		if f.sendCode != 0 {
			_, _ = w.Write([]byte(`{"code": 230001, "msg": "invalid receive_id"}`))
			return
		}
		_, _ = w.Write([]byte(`{"code": 0, "msg": "success", "data": {"message_id": "om_1"}}`))

	default:
		http.NotFound(w, r)
	}
}

func newMessenger(t *testing.T, api *fakeFeishu, secret string) *Messenger {
	t.Helper()
	ts := httptest.NewServer(api)
	t.Cleanup(ts.Close)
	m, err := New(Config{AppID: "cli_x", AppSecret: secret, BaseURL: ts.URL + "/"}, ts.Client())
	require.NoError(t, err)
	return m
}

func TestSendText(t *testing.T) {
	api := &fakeFeishu{}
	m := newMessenger(t, api, "secret")

	id, err := m.SendText(context.Background(), "ou_1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "om_1", id)

	require.Len(t, api.messages, 1)
	msg := api.messages[0]
	assert.Equal(t, "ou_1", msg["receive_id"])
	assert.Equal(t, MsgText, msg["msg_type"])
	assert.JSONEq(t, `{"text": "hello"}`, msg["content"])
	assert.NotEmpty(t, msg["uuid"])
	assert.Equal(t, "Bearer t-123", api.auth[0])
	assert.Equal(t, "receive_id_type=open_id", api.query[0])
}

func TestSendCard(t *testing.T) {
	api := &fakeFeishu{}
	m := newMessenger(t, api, "secret")

	_, err := m.Send(context.Background(), "ou_1", MsgInteractive, Card{Title: "Daily", Theme: "green", Content: "**done**"})
	require.NoError(t, err)

	msg := api.messages[0]
	assert.Equal(t, MsgInteractive, msg["msg_type"])
	assert.JSONEq(t, `{
		"header": {"title": {"tag": "plain_text", "content": "Daily"}, "template": "green"},
		"elements": [{"tag": "div", "text": {"tag": "lark_md", "content": "**done**"}}]
	}`, msg["content"])
}

func TestCardDefaults(t *testing.T) {
	b, err := json.Marshal(Card{Content: "x"})
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"header": {"title": {"tag": "plain_text", "content": "LifeOps"}, "template": "blue"},
		"elements": [{"tag": "div", "text": {"tag": "lark_md", "content": "x"}}]
	}`, string(b))
}

func TestTokenIsCached(t *testing.T) {
	api := &fakeFeishu{}
	m := newMessenger(t, api, "secret")
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		_, err := m.SendText(context.Background(), "ou_1", "hi")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, api.tokenCalls)

	now = now.Add(2 * time.Hour)
	_, err := m.SendText(context.Background(), "ou_1", "hi")
	require.NoError(t, err)
	assert.Equal(t, 2, api.tokenCalls)

	ids := map[string]bool{}
	for _, msg := range api.messages {
		ids[msg["uuid"]] = true
	}
	assert.Len(t, ids, 4)
}

func TestErrors(t *testing.T) {
	_, err := New(Config{AppID: "cli_x"}, nil)
	assert.ErrorIs(t, err, ErrCredentials)

	m := newMessenger(t, &fakeFeishu{}, "wrong")
	_, err = m.SendText(context.Background(), "ou_1", "hi")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 10014, apiErr.Code)

	m = newMessenger(t, &fakeFeishu{sendCode: 1}, "secret")
	_, err = m.SendText(context.Background(), "ou_1", "hi")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 230001, apiErr.Code)

	_, err = m.SendText(context.Background(), "", "hi")
	assert.Error(t, err)

	_, err = m.Send(context.Background(), "ou_1", "sticker", Card{})
	assert.Error(t, err)
}
