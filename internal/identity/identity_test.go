package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newProvider(t *testing.T) *JWTProvider {
	t.Helper()
	p, err := NewJWTProvider("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewJWTProvider: %v", err)
	}
	return p
}

func TestIssueAndVerify(t *testing.T) {
	p := newProvider(t)
	team := uuid.New()
	want := Actor{ID: uuid.New(), Role: RoleMember, TeamID: &team}

	tok, err := p.Issue(want)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	got, err := p.Verify(context.Background(), tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got.ID != want.ID || got.Role != RoleMember || got.TeamID == nil || *got.TeamID != team {
		t.Errorf("actor: got %+v, want %+v", got, want)
	}
	if !got.CanActForTeam(team) || got.CanActForTeam(uuid.New()) {
		t.Error("member should act only for their own team")
	}
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	other, _ := NewJWTProvider("other-secret", time.Hour)
	tok, _ := other.Issue(Actor{ID: uuid.New(), Role: RoleAdmin})
	if _, err := newProvider(t).Verify(context.Background(), tok); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("got %v, want ErrUnauthenticated", err)
	}
}

func TestMiddleware(t *testing.T) {
	p := newProvider(t)
	admin := Actor{ID: uuid.New(), Role: RoleAdmin}
	tok, _ := p.Issue(admin)

	var seen *Actor
	h := Middleware(p)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ActorFromCtx(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: got %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("valid token: got %d, want 204", rec.Code)
	}
	if seen == nil || seen.ID != admin.ID || !seen.IsAdmin() {
		t.Errorf("actor in context: got %+v", seen)
	}
}

func TestRequireAdmin(t *testing.T) {
	h := RequireAdmin(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(WithActor(req.Context(), &Actor{ID: uuid.New(), Role: RoleMember}))
	rec := httptest.NewRecorder()
	h(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("member: got %d, want 403", rec.Code)
	}
}
