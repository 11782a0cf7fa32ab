package roles

import (
	"fmt"
	"regexp"

	"github.com/roledir/roledir/internal/shared"
)

// MatchOp is a predicate operator. The predicate language is deliberately
// bounded: equality, regex match and set membership on named fields, so
// callers can filter without the store accepting free-form query documents.
type MatchOp string

// Supported operators.
const (
	OpEquals   MatchOp = "eq"
	OpRegex    MatchOp = "regex"
	OpContains MatchOp = "contains"
)

// Condition matches one field against one value.
type Condition struct {
	Field string  `json:"field"`
	Op    MatchOp `json:"op"`
	Value string  `json:"value"`
}

// Predicate is a conjunction of conditions. The empty predicate matches
// every document.
type Predicate struct {
	Conditions []Condition `json:"conditions"`
}

// scalarFields and setFields partition the queryable document fields.
var scalarFields = map[string]func(Document) string{
	"role_id":     func(d Document) string { return d.RoleID },
	"description": func(d Document) string { return d.Description },
	"role_owner":  func(d Document) string { return d.Owner },
}

var setFields = map[string]func(Document) []string{
	"role_updater": func(d Document) []string { return d.Updaters },
	"members":      func(d Document) []string { return d.Members },
	"read":         func(d Document) []string { return d.Read },
	"modify":       func(d Document) []string { return d.Modify },
	"delete":       func(d Document) []string { return d.Delete },
	"impersonate":  func(d Document) []string { return d.Impersonate },
	"grant":        func(d Document) []string { return d.Grant },
	"create":       func(d Document) []string { return d.Create },
}

// IsSetField reports whether the named queryable field holds a set.
func IsSetField(name string) bool {
	_, ok := setFields[name]
	return ok
}

// KnownField reports whether the name is queryable at all.
func KnownField(name string) bool {
	if _, ok := scalarFields[name]; ok {
		return true
	}
	return IsSetField(name)
}

// Validate rejects unknown fields, unknown operators and unparseable
// regular expressions before anything reaches a store.
func (p Predicate) Validate() error {
	for _, c := range p.Conditions {
		if !KnownField(c.Field) {
			return &shared.ValidationError{Field: c.Field, Detail: "unknown query field"}
		}
		switch c.Op {
		case OpEquals, OpContains:
		case OpRegex:
			if _, err := regexp.Compile(c.Value); err != nil {
				return &shared.ValidationError{Field: c.Field, Detail: fmt.Sprintf("bad regex: %v", err)}
			}
			if IsSetField(c.Field) {
				return &shared.ValidationError{Field: c.Field, Detail: "regex match applies to scalar fields only"}
			}
		default:
			return &shared.ValidationError{Field: c.Field, Detail: fmt.Sprintf("unknown operator %q", c.Op)}
		}
		if c.Op == OpContains && !IsSetField(c.Field) {
			return &shared.ValidationError{Field: c.Field, Detail: "contains applies to set fields only"}
		}
		if c.Op == OpEquals && IsSetField(c.Field) {
			return &shared.ValidationError{Field: c.Field, Detail: "equality applies to scalar fields; use contains"}
		}
	}
	return nil
}

// Matches evaluates the predicate against a document. The predicate must
// have been validated.
func (p Predicate) Matches(d Document) bool {
	for _, c := range p.Conditions {
		if !c.matches(d) {
			return false
		}
	}
	return true
}

func (c Condition) matches(d Document) bool {
	switch c.Op {
	case OpEquals:
		get, ok := scalarFields[c.Field]
		return ok && get(d) == c.Value
	case OpRegex:
		get, ok := scalarFields[c.Field]
		if !ok {
			return false
		}
		re, err := regexp.Compile(c.Value)
		if err != nil {
			return false
		}
		return re.MatchString(get(d))
	case OpContains:
		get, ok := setFields[c.Field]
		if !ok {
			return false
		}
		for _, v := range get(d) {
			if v == c.Value {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Projection is a field allow-list applied to query results. Empty means
// every field.
type Projection []string

// Validate rejects unknown field names.
func (p Projection) Validate() error {
	for _, f := range p {
		if !KnownField(f) {
			return &shared.ValidationError{Field: f, Detail: "unknown projection field"}
		}
	}
	return nil
}

// Apply converts a document to its projected map form. Store-internal
// identifiers never appear: the map is built from the document fields, not
// the stored record.
func (p Projection) Apply(d Document) map[string]any {
	d.Normalize()
	full := map[string]any{
		"role_id":      d.RoleID,
		"description":  d.Description,
		"role_owner":   d.Owner,
		"role_updater": d.Updaters,
		"members":      d.Members,
		"read":         d.Read,
		"modify":       d.Modify,
		"delete":       d.Delete,
		"impersonate":  d.Impersonate,
		"grant":        d.Grant,
		"create":       d.Create,
	}
	if len(p) == 0 {
		return full
	}
	out := make(map[string]any, len(p))
	for _, f := range p {
		if v, ok := full[f]; ok {
			out[f] = v
		}
	}
	return out
}
