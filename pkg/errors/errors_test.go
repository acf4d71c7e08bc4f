package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
		{code: CodeStorage, status: http.StatusServiceUnavailable, publicMsg: "cart identity storage unavailable", retryable: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestHasCodeWalksWrappedChain(t *testing.T) {
	typed := Wrap(CodeStorage, stdErrors.New("disk gone"), "read device key")
	outer := fmt.Errorf("resolve cart: %w", typed)

	if !HasCode(outer, CodeStorage) {
		t.Fatalf("expected storage code in chain")
	}
	if HasCode(outer, CodeNotFound) {
		t.Fatalf("unexpected not found code")
	}
	if HasCode(stdErrors.New("plain"), CodeStorage) {
		t.Fatalf("plain errors carry no code")
	}
}

func TestDumpCollectsDriverDetails(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_cart_lines_key_item", TableName: "cart_lines"}
	dump := Dump(Wrap(CodeDependency, fmt.Errorf("upsert: %w", pgErr), "upsert cart line"))
	if dump.Code != CodeDependency || dump.PGCode != "23505" || dump.PGConstraint != "ux_cart_lines_key_item" {
		t.Fatalf("unexpected postgres dump %+v", dump)
	}
	if len(dump.Chain) < 2 {
		t.Fatalf("expected wrapped chain entries, got %v", dump.Chain)
	}

	sqliteErr := sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}
	dump = Dump(fmt.Errorf("insert: %w", sqliteErr))
	if dump.SQLiteCode != int(sqlite3.ErrConstraint) || dump.SQLiteExtendedCode != int(sqlite3.ErrConstraintUnique) {
		t.Fatalf("unexpected sqlite dump %+v", dump)
	}

	if Dump(nil).TopMessage != "" {
		t.Fatal("expected empty dump for nil error")
	}
}
