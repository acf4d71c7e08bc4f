package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	pkgAuth "github.com/angelmondragon/dashbite-backend/pkg/auth"
	"github.com/angelmondragon/dashbite-backend/pkg/events"
)

type stubRevoker struct {
	revoked string
	err     error
}

func (s *stubRevoker) Revoke(_ context.Context, accessID string) error {
	s.revoked = accessID
	return s.err
}

func logoutRequest(p *pkgAuth.Principal) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	if p != nil {
		req = req.WithContext(pkgAuth.WithPrincipal(req.Context(), *p))
	}
	return req
}

func TestAuthLogoutRevokesAndSignals(t *testing.T) {
	revoker := &stubRevoker{}
	bus := events.NewBus()
	defer bus.Close()
	var seen []events.Change
	bus.Subscribe(func(c events.Change) { seen = append(seen, c) })

	resp := httptest.NewRecorder()
	AuthLogout(revoker, bus, nil).ServeHTTP(resp, logoutRequest(&pkgAuth.Principal{UserID: "user-1", SessionID: "jti-1"}))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if revoker.revoked != "jti-1" {
		t.Fatalf("expected jti-1 revoked, got %q", revoker.revoked)
	}
	if len(seen) != 1 || seen[0].Op != events.OpLogout || seen[0].CartKey != "user-1" {
		t.Fatalf("unexpected bus changes %+v", seen)
	}
}

func TestAuthLogoutFailures(t *testing.T) {
	resp := httptest.NewRecorder()
	AuthLogout(&stubRevoker{}, nil, nil).ServeHTTP(resp, logoutRequest(nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	AuthLogout(&stubRevoker{err: errors.New("redis down")}, nil, nil).
		ServeHTTP(resp, logoutRequest(&pkgAuth.Principal{UserID: "user-1", SessionID: "jti-1"}))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	AuthLogout(nil, nil, nil).ServeHTTP(resp, logoutRequest(nil))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", resp.Code)
	}
}
