package policy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Action represents an action that can be policy-controlled
type Action string

const (
	ActionNotificationSend        Action = "notification.send"
	ActionNotificationRead        Action = "notification.read"
	ActionNotificationExport      Action = "notification.export"
	ActionNotificationAcknowledge Action = "notification.acknowledge"
	ActionDraftWrite              Action = "draft.write"
	ActionDirectoryRead           Action = "directory.read"
)

// Role represents a user role
type Role string

const (
	RoleAdmin          Role = "admin"
	RoleCommunications Role = "communications"
	RoleManager        Role = "manager"
	RoleStaff          Role = "staff"
)

// ErrDenied is wrapped by PolicyMiddleware.Check when a request is refused.
var ErrDenied = errors.New("denied")

// PolicyContext contains the context for policy evaluation
type PolicyContext struct {
	UserID   string
	Roles    []Role
	Resource map[string]interface{}
	Action   Action
}

// PolicyResult contains the result of a policy check
type PolicyResult struct {
	Allowed bool
	Reason  string
	Rules   []string // Which rules matched
}

// PolicyEngine is the interface for policy evaluation
type PolicyEngine interface {
	Check(ctx context.Context, pctx *PolicyContext) (*PolicyResult, error)
}

// permissions is the role matrix shared by both engines. Admin is implicit.
var permissions = map[Role][]Action{
	RoleCommunications: {
		ActionNotificationSend,
		ActionNotificationRead,
		ActionNotificationExport,
		ActionDraftWrite,
		ActionDirectoryRead,
	},
	RoleManager: {
		ActionNotificationRead,
		ActionNotificationExport,
		ActionNotificationAcknowledge,
		ActionDirectoryRead,
	},
	RoleStaff: {
		ActionNotificationAcknowledge,
	},
}

// HardcodedPolicyEngine evaluates the built-in role matrix.
type HardcodedPolicyEngine struct{}

// NewHardcodedPolicyEngine creates a new hardcoded policy engine
func NewHardcodedPolicyEngine() *HardcodedPolicyEngine {
	return &HardcodedPolicyEngine{}
}

// Check evaluates hardcoded policies
func (e *HardcodedPolicyEngine) Check(ctx context.Context, pctx *PolicyContext) (*PolicyResult, error) {
	result := &PolicyResult{
		Allowed: false,
		Rules:   make([]string, 0),
	}

	for _, role := range pctx.Roles {
		if e.roleAllowsAction(role, pctx.Action) {
			result.Allowed = true
			result.Reason = fmt.Sprintf("allowed by role: %s", role)
			result.Rules = append(result.Rules, fmt.Sprintf("role:%s", role))
			return result, nil
		}
	}

	result.Reason = "no matching policy found"
	return result, nil
}

// roleAllowsAction checks if a role permits an action
func (e *HardcodedPolicyEngine) roleAllowsAction(role Role, action Action) bool {
	if role == RoleAdmin {
		return true
	}
	for _, allowed := range permissions[role] {
		if allowed == action {
			return true
		}
	}
	return false
}

// PolicyMiddleware wraps handlers with policy checks
type PolicyMiddleware struct {
	engine PolicyEngine
	logger *zap.Logger
}

// NewPolicyMiddleware creates a new policy middleware. Decisions are written
// to logger as audit entries.
func NewPolicyMiddleware(engine PolicyEngine, logger *zap.Logger) *PolicyMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolicyMiddleware{engine: engine, logger: logger.Named("policy")}
}

// Check performs a policy check and returns an error wrapping ErrDenied if
// the action is refused.
func (m *PolicyMiddleware) Check(ctx context.Context, pctx *PolicyContext) error {
	result, err := m.engine.Check(ctx, pctx)
	if err != nil {
		return fmt.Errorf("policy check failed: %w", err)
	}

	m.audit(PolicyAuditLog{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		UserID:    pctx.UserID,
		Action:    pctx.Action,
		Allowed:   result.Allowed,
		Reason:    result.Reason,
		Rules:     result.Rules,
	})

	if !result.Allowed {
		return fmt.Errorf("%w: %s", ErrDenied, result.Reason)
	}
	return nil
}

// PolicyAuditLog is one policy decision.
type PolicyAuditLog struct {
	Timestamp string   `json:"timestamp"`
	UserID    string   `json:"userId"`
	Action    Action   `json:"action"`
	Allowed   bool     `json:"allowed"`
	Reason    string   `json:"reason"`
	Rules     []string `json:"rules,omitempty"`
}

func (m *PolicyMiddleware) audit(entry PolicyAuditLog) {
	level := zap.DebugLevel
	if !entry.Allowed {
		level = zap.InfoLevel
	}
	if ce := m.logger.Check(level, "policy decision"); ce != nil {
		ce.Write(
			zap.String("timestamp", entry.Timestamp),
			zap.String("user_id", entry.UserID),
			zap.String("action", string(entry.Action)),
			zap.Bool("allowed", entry.Allowed),
			zap.String("reason", entry.Reason),
			zap.Strings("rules", entry.Rules),
		)
	}
}
