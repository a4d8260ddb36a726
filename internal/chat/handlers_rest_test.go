package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(svc *Service, authUserID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	group := r.Group("/")
	group.Use(func(c *gin.Context) {
		c.Set("userID", authUserID.String())
		c.Next()
	})
	NewRestHandler(svc).RegisterRoutes(group)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &parsed))
	return w, parsed
}

func TestCreateChatEndpoint_IdempotentStatusCodes(t *testing.T) {
	ms := newMemStore()
	svc := newTestService(ms, &fakeBus{}, 0.2)
	alice := ms.addUser("alice", "")
	bob := ms.addUser("bob", "")
	r := newTestRouter(svc, alice.ID)

	body := fmt.Sprintf(`{"user_id":%q,"participant_ids":[%q]}`, alice.ID, bob.ID)

	w, resp := doJSON(t, r, http.MethodPost, "/chat/create", body)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, true, resp["success"])
	firstID := resp["chat_id"]

	// The same pair again returns 200 with the existing chat id.
	w, resp = doJSON(t, r, http.MethodPost, "/chat/create", body)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Chat already exists", resp["message"])
	assert.Equal(t, firstID, resp["chat_id"])
}

func TestMessagesEndpoint_RoundTrip(t *testing.T) {
	ms := newMemStore()
	svc := newTestService(ms, &fakeBus{}, 0.2)
	alice := ms.addUser("alice", "")
	bob := ms.addUser("bob", "")
	r := newTestRouter(svc, alice.ID)

	chat, _, err := svc.CreateChat(context.Background(), alice.ID, []uuid.UUID{bob.ID}, false, "")
	require.NoError(t, err)

	w, _ := doJSON(t, r, http.MethodPost, "/chat/"+chat.ID.String()+"/messages",
		fmt.Sprintf(`{"sender_id":%q,"message":"hello bob"}`, alice.ID))
	assert.Equal(t, http.StatusCreated, w.Code)

	// A structured location payload is forwarded as raw JSON, not a string.
	w, _ = doJSON(t, r, http.MethodPost, "/chat/"+chat.ID.String()+"/messages",
		fmt.Sprintf(`{"sender_id":%q,"message":{"latitude":52.52,"longitude":13.405},"message_type":"location"}`, alice.ID))
	assert.Equal(t, http.StatusCreated, w.Code)

	w, resp := doJSON(t, r, http.MethodGet, "/chat/"+chat.ID.String()+"/messages", "")
	assert.Equal(t, http.StatusOK, w.Code)
	data, ok := resp["data"].([]interface{})
	require.True(t, ok)
	require.Len(t, data, 2)

	first := data[0].(map[string]interface{})
	second := data[1].(map[string]interface{})
	assert.Equal(t, "hello bob", first["content"])
	assert.Equal(t, "{latitude:52.52,longitude:13.405}", second["content"])
}

func TestJoinLocalGroupEndpoint_ZeroCoordinates(t *testing.T) {
	ms := newMemStore()
	svc := newTestService(ms, &fakeBus{}, 0.2)
	alice := ms.addUser("alice", "")
	r := newTestRouter(svc, alice.ID)

	// Latitude 0 is the equator, not a missing field.
	body := fmt.Sprintf(`{"userId":%q,"latitude":0,"longitude":6.73}`, alice.ID)
	w, resp := doJSON(t, r, http.MethodPost, "/chat/local-groups/join", body)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, true, resp["success"])

	// A coordinate that is actually absent still fails validation.
	w, _ = doJSON(t, r, http.MethodPost, "/chat/local-groups/join",
		fmt.Sprintf(`{"userId":%q,"latitude":0}`, alice.ID))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestErrorMapping(t *testing.T) {
	ms := newMemStore()
	svc := newTestService(ms, &fakeBus{}, 0.2)
	alice := ms.addUser("alice", "")
	bob := ms.addUser("bob", "")
	carol := ms.addUser("carol", "")
	r := newTestRouter(svc, alice.ID)

	// Unknown chat -> 404.
	w, _ := doJSON(t, r, http.MethodGet, "/chat/"+uuid.NewString()+"/messages", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Non-owner removal -> 403.
	chat, _, err := svc.CreateChat(context.Background(), alice.ID, []uuid.UUID{bob.ID, carol.ID}, true, "trio")
	require.NoError(t, err)
	w, _ = doJSON(t, r, http.MethodDelete,
		fmt.Sprintf("/chat/%s/remove-member?user_id=%s&requested_by=%s", chat.ID, carol.ID, bob.ID), "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Owner self-removal -> 400. requested_by falls back to the token user.
	w, _ = doJSON(t, r, http.MethodDelete,
		fmt.Sprintf("/chat/%s/remove-member?user_id=%s", chat.ID, alice.ID), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Owner removing a member -> 200.
	w, _ = doJSON(t, r, http.MethodDelete,
		fmt.Sprintf("/chat/%s/remove-member?user_id=%s", chat.ID, bob.ID), "")
	assert.Equal(t, http.StatusOK, w.Code)
}
