package policy

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

var matrix = []struct {
	name    string
	roles   []Role
	action  Action
	allowed bool
}{
	{"admin can send", []Role{RoleAdmin}, ActionNotificationSend, true},
	{"admin can acknowledge", []Role{RoleAdmin}, ActionNotificationAcknowledge, true},
	{"communications can send", []Role{RoleCommunications}, ActionNotificationSend, true},
	{"communications can export", []Role{RoleCommunications}, ActionNotificationExport, true},
	{"communications can write drafts", []Role{RoleCommunications}, ActionDraftWrite, true},
	{"manager can read", []Role{RoleManager}, ActionNotificationRead, true},
	{"manager cannot send", []Role{RoleManager}, ActionNotificationSend, false},
	{"manager cannot write drafts", []Role{RoleManager}, ActionDraftWrite, false},
	{"staff can acknowledge", []Role{RoleStaff}, ActionNotificationAcknowledge, true},
	{"staff cannot read history", []Role{RoleStaff}, ActionNotificationRead, false},
	{"staff cannot read directory", []Role{RoleStaff}, ActionDirectoryRead, false},
	{"combined roles", []Role{RoleStaff, RoleManager}, ActionNotificationExport, true},
	{"no roles", nil, ActionNotificationRead, false},
	{"unknown role", []Role{"contractor"}, ActionNotificationAcknowledge, false},
}

func TestHardcodedPolicyEngine(t *testing.T) {
	engine := NewHardcodedPolicyEngine()
	for _, tt := range matrix {
		t.Run(tt.name, func(t *testing.T) {
			result, err := engine.Check(context.Background(), &PolicyContext{UserID: "u1", Roles: tt.roles, Action: tt.action})
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if result.Allowed != tt.allowed {
				t.Errorf("Expected allowed=%v, got %v (%s)", tt.allowed, result.Allowed, result.Reason)
			}
		})
	}
}

func TestOPAPolicyEngine(t *testing.T) {
	engine, err := NewOPAPolicyEngine(context.Background(), "")
	if err != nil {
		t.Fatalf("Failed to compile policy: %v", err)
	}
	for _, tt := range matrix {
		t.Run(tt.name, func(t *testing.T) {
			result, err := engine.Check(context.Background(), &PolicyContext{UserID: "u1", Roles: tt.roles, Action: tt.action})
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if result.Allowed != tt.allowed {
				t.Errorf("Expected allowed=%v, got %v", tt.allowed, result.Allowed)
			}
			if tt.allowed && len(result.Rules) == 0 {
				t.Error("Expected matched rules for an allowed decision")
			}
		})
	}
}

func TestOPAPolicyEngineCustomModule(t *testing.T) {
	module := `package notify.authz

default allow := false

allow if input.action == "notification.read"

matched contains "custom" if allow
`
	engine, err := NewOPAPolicyEngine(context.Background(), module)
	if err != nil {
		t.Fatalf("Failed to compile policy: %v", err)
	}

	result, err := engine.Check(context.Background(), &PolicyContext{Action: ActionNotificationRead})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Allowed || len(result.Rules) != 1 || result.Rules[0] != "custom" {
		t.Errorf("Unexpected result: %+v", result)
	}
}

func TestOPAPolicyEngineInvalidModule(t *testing.T) {
	if _, err := NewOPAPolicyEngine(context.Background(), "package broken\nallow if {"); err == nil {
		t.Error("Expected compile error")
	}
}

func TestPolicyMiddleware_Check(t *testing.T) {
	m := NewPolicyMiddleware(NewHardcodedPolicyEngine(), zap.NewNop())

	if err := m.Check(context.Background(), &PolicyContext{Roles: []Role{RoleCommunications}, Action: ActionNotificationSend}); err != nil {
		t.Errorf("Expected allowed, got %v", err)
	}

	err := m.Check(context.Background(), &PolicyContext{Roles: []Role{RoleStaff}, Action: ActionNotificationSend})
	if !errors.Is(err, ErrDenied) {
		t.Errorf("Expected ErrDenied, got %v", err)
	}
}
