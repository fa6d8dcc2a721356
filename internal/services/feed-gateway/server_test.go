package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pulseboard/feedsync/internal/domain/notification"
	"github.com/pulseboard/feedsync/internal/feed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type memRepo struct {
	mu   sync.Mutex
	rows map[int64]*notification.Notification
}

func (f *memRepo) ListByRecipient(_ context.Context, recipientID int64, limit int) ([]*notification.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*notification.Notification
	for _, n := range f.rows {
		if n.RecipientID == recipientID {
			cp := *n
			out = append(out, &cp)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *memRepo) GetByID(_ context.Context, id, recipientID int64) (*notification.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.rows[id]; ok && n.RecipientID == recipientID {
		cp := *n
		return &cp, nil
	}
	return nil, errors.New("not found")
}

func (f *memRepo) MarkRead(_ context.Context, id, recipientID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.rows[id]; ok && n.RecipientID == recipientID {
		n.IsRead = true
	}
	return nil
}

func (f *memRepo) MarkAllRead(_ context.Context, recipientID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.rows {
		if n.RecipientID == recipientID {
			n.IsRead = true
		}
	}
	return nil
}

func seedRepo() *memRepo {
	rows := map[int64]*notification.Notification{}
	for i := int64(1); i <= 3; i++ {
		rows[i] = &notification.Notification{
			ID:          i,
			RecipientID: 7,
			Type:        notification.TypeMention,
			Title:       "you were mentioned",
			IsRead:      i == 2,
			CreatedAt:   time.Unix(1700000000+i, 0).UTC(),
		}
	}
	return &memRepo{rows: rows}
}

func token(t *testing.T, userID int64) string {
	t.Helper()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		UserID: userID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func setup(t *testing.T) (*Server, *memRepo) {
	t.Helper()
	repo := seedRepo()
	sessions := feed.NewSessions(zaptest.NewLogger(t), repo, nil, feed.Config{})
	t.Cleanup(sessions.CloseAll)
	return NewServer(zaptest.NewLogger(t), sessions, testSecret), repo
}

func do(t *testing.T, s *Server, method, path, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeFeed(t *testing.T, w *httptest.ResponseRecorder) feedResponse {
	t.Helper()
	var resp feedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestAuthRequired(t *testing.T) {
	s, _ := setup(t)

	w := do(t, s, http.MethodGet, "/v1/feed", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, s, http.MethodGet, "/v1/feed", "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionLifecycle(t *testing.T) {
	s, _ := setup(t)
	tok := token(t, 7)

	// no session yet
	w := do(t, s, http.MethodGet, "/v1/feed", tok)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, s, http.MethodPost, "/v1/session", tok)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeFeed(t, w)
	assert.NotEmpty(t, resp.SessionID)
	assert.Len(t, resp.Items, 3)
	assert.Equal(t, 2, resp.UnreadCount)

	w = do(t, s, http.MethodDelete, "/v1/session", tok)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, s, http.MethodGet, "/v1/feed", tok)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMarkAsRead(t *testing.T) {
	s, repo := setup(t)
	tok := token(t, 7)

	w := do(t, s, http.MethodPost, "/v1/session", tok)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, s, http.MethodPost, "/v1/notifications/1/read", tok)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeFeed(t, w)
	assert.Equal(t, 1, resp.UnreadCount)

	repo.mu.Lock()
	assert.True(t, repo.rows[1].IsRead)
	repo.mu.Unlock()

	// flipping the same id again must not drive the counter below truth
	w = do(t, s, http.MethodPost, "/v1/notifications/1/read", tok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decodeFeed(t, w).UnreadCount)

	w = do(t, s, http.MethodPost, "/v1/notifications/abc/read", tok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMarkAllAsRead(t *testing.T) {
	s, _ := setup(t)
	tok := token(t, 7)

	w := do(t, s, http.MethodPost, "/v1/session", tok)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, s, http.MethodPost, "/v1/notifications/read-all", tok)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeFeed(t, w)
	assert.Equal(t, 0, resp.UnreadCount)
	for _, n := range resp.Items {
		assert.True(t, n.IsRead)
	}
}

func TestRefreshReplacesWindow(t *testing.T) {
	s, repo := setup(t)
	tok := token(t, 7)

	w := do(t, s, http.MethodPost, "/v1/session", tok)
	require.Equal(t, http.StatusOK, w.Code)

	repo.mu.Lock()
	repo.rows[9] = &notification.Notification{
		ID: 9, RecipientID: 7, Type: notification.TypeVote,
		Title: "new vote", CreatedAt: time.Now().UTC(),
	}
	repo.mu.Unlock()

	w = do(t, s, http.MethodPost, "/v1/feed/refresh", tok)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeFeed(t, w)
	assert.Len(t, resp.Items, 4)
	assert.Equal(t, 3, resp.UnreadCount)
}

func TestSessionsAreScopedByRecipient(t *testing.T) {
	s, _ := setup(t)

	w := do(t, s, http.MethodPost, "/v1/session", token(t, 7))
	require.Equal(t, http.StatusOK, w.Code)

	// another user has no session and an empty feed of their own
	w = do(t, s, http.MethodPost, "/v1/session", token(t, 8))
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeFeed(t, w)
	assert.Empty(t, resp.Items)
	assert.Equal(t, 0, resp.UnreadCount)
}
