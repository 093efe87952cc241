package testutil

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/dalemusser/huddle/internal/domain/models"
)

// TestContext returns a context with a generous timeout for test
// operations against the store.
func TestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

// WithChiURLParam adds a chi URL parameter to the request context.
// Use this in handler tests that call handlers directly instead of
// going through the router.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// Identity returns a test identity with a stable uid.
func Identity(uid, name string) models.Identity {
	return models.Identity{
		UID:         uid,
		DisplayName: name,
		Email:       uid + "@test.local",
	}
}

// ActivityFields returns the field map for a room document the way the
// room creation path writes it. endIn is relative to now so tests can
// make rooms that are live or already expired.
func ActivityFields(t *testing.T, creator models.Identity, title string, endIn time.Duration) bson.M {
	t.Helper()
	return bson.M{
		"title":        title,
		"description":  "",
		"creator_id":   creator.UID,
		"creator_name": creator.DisplayName,
		"end_time":     time.Now().UTC().Add(endIn),
		"participants": []string{creator.UID},
	}
}
