package pathcall

import (
	"errors"
	"testing"
)

func TestRegistrationExportsPropagateErrors(t *testing.T) {
	var e *Engine
	if _, err := e.Register(Registration{}); !errors.Is(err, ErrEngineRequired) {
		t.Fatalf("expected engine required error, got %v", err)
	}
	if err := e.Subscribe("accounts.users.signup", "invoices", "welcome", nil); !errors.Is(err, ErrEngineRequired) {
		t.Fatalf("expected engine required error, got %v", err)
	}
}

func TestPathExports(t *testing.T) {
	p := ParsePath("billing.invoices.create")
	if p.Service != "billing" || p.Controller != "invoices" || p.Endpoint != "create" {
		t.Fatalf("unexpected path %+v", p)
	}
	if ServiceOf("billing.invoices.create") != "billing" {
		t.Fatal("expected service segment")
	}
}

func TestEncodingExportAliases(t *testing.T) {
	payload := map[string]string{"hello": "world"}
	if _, err := MarshalJSON(payload); err != nil {
		t.Fatalf("marshal alias failed: %v", err)
	}
	if err := UnmarshalJSON([]byte(`{"hello":"world"}`), &payload); err != nil {
		t.Fatalf("unmarshal alias failed: %v", err)
	}
	if err := UnmarshalJSONString(`{"hello":"world"}`, &payload); err != nil {
		t.Fatalf("unmarshal string alias failed: %v", err)
	}
}

func TestStatusConstants(t *testing.T) {
	if StatusSuccess != "success" {
		t.Fatalf("expected StatusSuccess to be 'success', got %q", StatusSuccess)
	}
	if StatusValidationError != "validationError" {
		t.Fatalf("expected StatusValidationError to be 'validationError', got %q", StatusValidationError)
	}
	if SocketMessage != "message" {
		t.Fatalf("expected SocketMessage to be 'message', got %q", SocketMessage)
	}
}

func TestLoggerExports(t *testing.T) {
	logger := NopLogger()
	logger.Info("boot", LogFields{"component": "test"})
}

func TestIDExport(t *testing.T) {
	if len(NewID()) != 26 {
		t.Fatal("expected 26 character ULID")
	}
}
