package instance

import "testing"

func TestGetIDPrefersExplicitID(t *testing.T) {
	t.Setenv("DASHBITE_INSTANCE_ID", "api-7")
	t.Setenv("DYNO", "web.1")
	if got := GetID(); got != "api-7" {
		t.Fatalf("expected api-7 got %q", got)
	}
}

func TestGetIDFallsBackToDyno(t *testing.T) {
	t.Setenv("DASHBITE_INSTANCE_ID", "")
	t.Setenv("DYNO", "web.1")
	if got := GetID(); got != "web.1" {
		t.Fatalf("expected web.1 got %q", got)
	}
}

func TestGetIDNeverEmpty(t *testing.T) {
	t.Setenv("DASHBITE_INSTANCE_ID", "")
	t.Setenv("DYNO", "")
	if GetID() == "" {
		t.Fatal("expected a non-empty instance id")
	}
}
