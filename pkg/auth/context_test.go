package auth

import (
	"context"
	"testing"
)

func TestContextSession(t *testing.T) {
	var session ContextSession

	if session.IsAuthenticated(context.Background()) {
		t.Fatal("expected anonymous context")
	}

	ctx := WithPrincipal(context.Background(), Principal{UserID: "user-1", SessionID: "jti-1"})
	if !session.IsAuthenticated(ctx) {
		t.Fatal("expected authenticated context")
	}
	if id, ok := session.CurrentUserID(ctx); !ok || id != "user-1" {
		t.Fatalf("unexpected user id %q (%v)", id, ok)
	}

	blank := WithPrincipal(context.Background(), Principal{UserID: "  "})
	if session.IsAuthenticated(blank) {
		t.Fatal("blank user id must not authenticate")
	}
}
