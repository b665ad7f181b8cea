package whatsapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"freelancer-bot/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePayload = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "WABA",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "contacts": [{"wa_id": "96550000001", "profile": {"name": "Sara"}}],
        "messages": [
          {"id": "wamid.1", "from": "96550000001", "timestamp": "1767225600", "type": "text", "text": {"body": "  أبغى مصمم  "}},
          {"id": "wamid.2", "from": "96550000001", "timestamp": "1767225601", "type": "interactive",
           "interactive": {"type": "button_reply", "button_reply": {"id": "accept_freelancer", "title": "موافق"}}}
        ]
      }
    }]
  }, {
    "id": "WABA",
    "changes": [{"field": "messages", "value": {"statuses": [{"id": "wamid.0", "status": "delivered"}]}}]
  }]
}`

func TestExtractMessages(t *testing.T) {
	p, err := ParsePayload([]byte(samplePayload))
	require.NoError(t, err)

	msgs := ExtractMessages(p)
	require.Len(t, msgs, 2)

	assert.Equal(t, "wamid.1", msgs[0].ID)
	assert.Equal(t, "Sara", msgs[0].Name)
	assert.Equal(t, "أبغى مصمم", msgs[0].Text)
	assert.False(t, msgs[0].IsButtonReply())
	assert.Equal(t, int64(1767225600), msgs[0].Timestamp.Unix())

	assert.True(t, msgs[1].IsButtonReply())
	assert.Equal(t, "accept_freelancer", msgs[1].ButtonID)
	assert.Equal(t, models.MessageTypeInteractive, msgs[1].Type)
}

func TestExtractMessagesStatusOnly(t *testing.T) {
	p, err := ParsePayload([]byte(`{"entry":[{"changes":[{"field":"messages","value":{"statuses":[{"id":"x"}]}}]}]}`))
	require.NoError(t, err)
	assert.Empty(t, ExtractMessages(p))
	assert.Empty(t, ExtractMessages(nil))
}

func TestVerifyWebhook(t *testing.T) {
	tests := []struct {
		name   string
		mode   string
		token  string
		wantOK bool
	}{
		{"valid handshake", "subscribe", "secret", true},
		{"wrong token", "subscribe", "nope", false},
		{"wrong mode", "unsubscribe", "secret", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			challenge, ok := VerifyWebhook("secret", tt.mode, tt.token, "12345")
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, "12345", challenge)
			}
		})
	}

	_, ok := VerifyWebhook("", "subscribe", "", "1")
	assert.False(t, ok, "unset verify token must never match")
}

func TestValidSignature(t *testing.T) {
	body := []byte(samplePayload)
	mac := hmac.New(sha256.New, []byte("app-secret"))
	mac.Write(body)
	sig := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	assert.True(t, ValidSignature("app-secret", body, sig))
	assert.False(t, ValidSignature("other", body, sig))
	assert.False(t, ValidSignature("app-secret", body, ""))
}

func TestClientSendsAuthenticatedRequests(t *testing.T) {
	var got []map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v21.0/PNID/messages", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		assert.NoError(t, json.Unmarshal(raw, &body))
		got = append(got, body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.out"}]}`))
	}))
	defer srv.Close()

	c := newClient("tok", srv.URL+"/v21.0/PNID", srv.Client())
	ctx := context.Background()

	require.NoError(t, c.SendMessage(ctx, "96550000001", "hello"))
	require.NoError(t, c.SendInteractiveButtons(ctx, "96550000001", "pick one", []Button{
		{ID: "accept_freelancer", Title: "✅ موافق على هذا المستقل"},
		{ID: "reject_freelancer", Title: "❌ لا"},
	}))
	require.NoError(t, c.MarkAsRead(ctx, "wamid.1"))

	require.Len(t, got, 3)
	assert.Equal(t, "text", got[0]["type"])
	assert.Equal(t, "interactive", got[1]["type"])
	buttons := got[1]["interactive"].(map[string]interface{})["action"].(map[string]interface{})["buttons"].([]interface{})
	require.Len(t, buttons, 2)
	title := buttons[0].(map[string]interface{})["reply"].(map[string]interface{})["title"].(string)
	assert.LessOrEqual(t, len([]rune(title)), maxButtonTitleLen)
	assert.Equal(t, "read", got[2]["status"])
}

func TestClientReportsAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid parameter","type":"OAuthException","code":100}}`))
	}))
	defer srv.Close()

	c := newClient("tok", srv.URL, srv.Client())
	err := c.SendMessage(context.Background(), "1", "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSendFailed))
	assert.Contains(t, err.Error(), "Invalid parameter")
}

func TestClientRejectedRecipientDoesNotOpenBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["to"] == "bad" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"Recipient phone number not in allowed list","code":131030}}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newClient("tok", srv.URL, srv.Client())
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		err := c.SendMessage(ctx, "bad", "x")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrSendFailed))
		assert.False(t, errors.Is(err, ErrUnavailable))
	}
	assert.NoError(t, c.SendMessage(ctx, "96550000001", "hello"))
}

func TestClientServerErrorsOpenBreaker(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newClient("tok", srv.URL, srv.Client())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.True(t, errors.Is(c.SendMessage(ctx, "96550000001", "x"), ErrSendFailed))
	}
	assert.ErrorIs(t, c.SendMessage(ctx, "96550000001", "x"), ErrUnavailable)
	assert.Equal(t, 5, calls)
}
