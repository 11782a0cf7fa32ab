package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roledir/roledir/internal/authz"
	"github.com/roledir/roledir/internal/shared"
)

// RootReadPolicy picks what a read with neither a role_id nor a predicate
// returns. This is an explicit policy choice of the deployment, not an
// implicit behavior.
type RootReadPolicy string

// Root read policies.
const (
	// RootReadHelp returns a fixed capabilities description.
	RootReadHelp RootReadPolicy = "help"
	// RootReadList enumerates all known role_ids.
	RootReadList RootReadPolicy = "list"
)

// Service ties the decision engine to a store and owns the role document
// lifecycle. All authorization goes through the engine before any store
// mutation or read.
type Service struct {
	store  Store
	engine *authz.Engine
	logger *slog.Logger
	policy RootReadPolicy
}

// NewService constructs a Service. An empty policy defaults to RootReadHelp.
func NewService(store Store, engine *authz.Engine, logger *slog.Logger, policy RootReadPolicy) *Service {
	if policy == "" {
		policy = RootReadHelp
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, engine: engine, logger: logger, policy: policy}
}

// MemberOf reports whether a user is in the members set of a role. A
// missing role simply means no membership.
func (s *Service) MemberOf(ctx context.Context, roleID, userID string) (bool, error) {
	doc, err := s.store.Get(ctx, roleID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("roles: membership check %q: %w", roleID, err)
	}
	return doc.HasMember(userID), nil
}

// UserRoles returns the role_ids the user is a member of.
func (s *Service) UserRoles(ctx context.Context, userID string) ([]string, error) {
	docs, err := s.store.Query(ctx, Predicate{Conditions: []Condition{
		{Field: "members", Op: OpContains, Value: userID},
	}})
	if err != nil {
		return nil, fmt.Errorf("roles: user roles for %q: %w", userID, err)
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.RoleID)
	}
	return ids, nil
}

// Get returns one role document by id. The gate check runs before the
// lookup, so callers outside the gate role cannot probe for existence.
func (s *Service) Get(ctx context.Context, caller, roleID string) (Document, error) {
	if err := s.engine.Decide(ctx, authz.OpRead, caller, authz.Target{RoleID: roleID}, s.MemberOf); err != nil {
		return Document{}, err
	}
	doc, err := s.store.Get(ctx, roleID)
	if err != nil {
		return Document{}, err
	}
	doc.Normalize()
	return doc, nil
}

// Query returns the projected documents matching a predicate. Results are
// built from document fields only; store-internal identifiers are never
// present.
func (s *Service) Query(ctx context.Context, caller string, p Predicate, proj Projection) ([]map[string]any, error) {
	if err := s.engine.Decide(ctx, authz.OpRead, caller, authz.Target{}, s.MemberOf); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := proj.Validate(); err != nil {
		return nil, err
	}
	docs, err := s.store.Query(ctx, p)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		out = append(out, proj.Apply(d))
	}
	return out, nil
}

// Root serves a read with neither role_id nor predicate according to the
// configured policy.
func (s *Service) Root(ctx context.Context, caller string) (any, error) {
	if err := s.engine.Decide(ctx, authz.OpRead, caller, authz.Target{}, s.MemberOf); err != nil {
		return nil, err
	}
	if s.policy == RootReadList {
		docs, err := s.store.Query(ctx, Predicate{})
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(docs))
		for _, d := range docs {
			ids = append(ids, d.RoleID)
		}
		return map[string]any{"role_ids": ids}, nil
	}
	return helpDocument(s.engine.GateRole()), nil
}

// Create stores a new role. The owner is always the resolved caller; any
// client-supplied owner is discarded.
func (s *Service) Create(ctx context.Context, caller string, doc Document) (Document, error) {
	if err := doc.Validate(); err != nil {
		return Document{}, err
	}
	exists := true
	if _, err := s.store.Get(ctx, doc.RoleID); err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			return Document{}, err
		}
		exists = false
	}
	target := authz.Target{RoleID: doc.RoleID, Exists: exists}
	if err := s.engine.Decide(ctx, authz.OpCreate, caller, target, s.MemberOf); err != nil {
		return Document{}, err
	}
	doc.Owner = caller
	doc.Normalize()
	// The store's atomic insert is the authority on duplicates; the
	// engine's existence check above can lose a race.
	if err := s.store.Insert(ctx, doc); err != nil {
		return Document{}, err
	}
	s.logger.Info("role created", slog.String("role_id", doc.RoleID), slog.String("owner", caller))
	return doc, nil
}

// Update merges a partial update over the stored document. Only the owner
// or a listed updater may modify; role_id and role_owner survive any
// payload.
func (s *Service) Update(ctx context.Context, caller, roleID string, upd Update) (Document, error) {
	existing, err := s.store.Get(ctx, roleID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Document{}, s.engine.Decide(ctx, authz.OpUpdate, caller, authz.Target{RoleID: roleID}, s.MemberOf)
		}
		return Document{}, err
	}
	target := authz.Target{RoleID: roleID, Exists: true, Owner: existing.Owner, Updaters: existing.Updaters}
	if err := s.engine.Decide(ctx, authz.OpUpdate, caller, target, s.MemberOf); err != nil {
		return Document{}, err
	}
	merged := Merge(existing, upd)
	if err := merged.Validate(); err != nil {
		return Document{}, err
	}
	if err := s.store.Replace(ctx, merged); err != nil {
		return Document{}, err
	}
	s.logger.Info("role updated", slog.String("role_id", roleID), slog.String("by", caller))
	return merged, nil
}

// Remove deletes a role. Only the owner, by identity, may delete.
func (s *Service) Remove(ctx context.Context, caller, roleID string) error {
	existing, err := s.store.Get(ctx, roleID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return s.engine.Decide(ctx, authz.OpDelete, caller, authz.Target{RoleID: roleID}, s.MemberOf)
		}
		return err
	}
	target := authz.Target{RoleID: roleID, Exists: true, Owner: existing.Owner, Updaters: existing.Updaters}
	if err := s.engine.Decide(ctx, authz.OpDelete, caller, target, s.MemberOf); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, roleID); err != nil {
		return err
	}
	s.logger.Info("role deleted", slog.String("role_id", roleID), slog.String("by", caller))
	return nil
}

// helpDocument describes the service contract for root reads under the
// help policy.
func helpDocument(gateRole string) map[string]any {
	return map[string]any{
		"id": "Role Directory",
		"resources": map[string]string{
			"role_id":      "Unique human readable identifier for role (required)",
			"description":  "Description of the role (required)",
			"role_owner":   "Owner (creator) of this role",
			"role_updater": "User ids that can update this role",
			"members":      "A list of the user ids who are members of this group",
			"read":         "List of object ids that this role allows read privs",
			"modify":       "List of object ids that this role allows modify privs",
			"delete":       "List of object ids that this role allows delete privs",
			"impersonate":  "List of user ids that this role allows impersonate privs",
			"grant":        "List of role ids that this role allows grant privs",
			"create":       "List of object ids that this role allows create privs",
		},
		"usage": fmt.Sprintf(
			"Read and create are open to authenticated members of %q. "+
				"Update requires ownership or membership in the target document's role_updater list. "+
				"Delete requires ownership. "+
				"Reads accept 'filter' (structured predicate) and 'fields' (projection) parameters.",
			gateRole),
	}
}
