// Package authz holds the pure access decision logic for the role
// directory. The engine performs no I/O of its own; membership lookups go
// through a callback backed by the role store.
package authz

import (
	"context"
	"fmt"

	"github.com/roledir/roledir/internal/shared"
)

// Operation is a CRUD operation requested against a role.
type Operation string

// Operations the engine decides on.
const (
	OpRead   Operation = "read"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// MemberFunc reports whether a user is in the members set of a role.
type MemberFunc func(ctx context.Context, roleID, userID string) (bool, error)

// Target is the engine's view of the role a request addresses. For create
// it describes the requested role_id; for the other operations it is the
// stored document, or Exists=false when there is none.
type Target struct {
	RoleID   string
	Exists   bool
	Owner    string
	Updaters []string
}

// DefaultGateRole is the conventional gate role id. Its members set is the
// whitelist of users permitted to use the service at all.
const DefaultGateRole = "kbase_users"

// Engine decides whether a resolved caller may perform an operation. It is
// stateless and safe for concurrent use.
type Engine struct {
	gateRole string
}

// NewEngine constructs an Engine gated on the given role id. An empty id
// falls back to DefaultGateRole.
func NewEngine(gateRole string) *Engine {
	if gateRole == "" {
		gateRole = DefaultGateRole
	}
	return &Engine{gateRole: gateRole}
}

// GateRole returns the configured gate role id.
func (e *Engine) GateRole() string { return e.gateRole }

// Decide returns nil when the operation is allowed, or a typed error
// naming the specific denial: ErrUnauthenticated, ForbiddenError,
// ErrNotFound or ErrDuplicate. Not-found is only observable once the
// caller has cleared the checks that precede existence.
func (e *Engine) Decide(ctx context.Context, op Operation, caller string, target Target, memberOf MemberFunc) error {
	if caller == "" {
		return shared.ErrUnauthenticated
	}
	switch op {
	case OpRead:
		return e.requireGateMember(ctx, caller, target.RoleID, memberOf)
	case OpCreate:
		if err := e.requireGateMember(ctx, caller, target.RoleID, memberOf); err != nil {
			return err
		}
		if target.Exists {
			return shared.ErrDuplicate
		}
		return nil
	case OpUpdate:
		if !target.Exists {
			return shared.ErrNotFound
		}
		if caller == target.Owner {
			return nil
		}
		for _, u := range target.Updaters {
			if caller == u {
				return nil
			}
		}
		return &shared.ForbiddenError{Reason: shared.ReasonNotOwnerOrUpdater, RoleID: target.RoleID, UserID: caller}
	case OpDelete:
		if !target.Exists {
			return shared.ErrNotFound
		}
		if caller != target.Owner {
			return &shared.ForbiddenError{Reason: shared.ReasonNotOwner, RoleID: target.RoleID, UserID: caller}
		}
		return nil
	default:
		return fmt.Errorf("authz: unknown operation %q", op)
	}
}

func (e *Engine) requireGateMember(ctx context.Context, caller, roleID string, memberOf MemberFunc) error {
	ok, err := memberOf(ctx, e.gateRole, caller)
	if err != nil {
		return fmt.Errorf("authz: gate membership check: %w", err)
	}
	if !ok {
		return &shared.ForbiddenError{Reason: shared.ReasonNotGateMember, RoleID: roleID, UserID: caller}
	}
	return nil
}
