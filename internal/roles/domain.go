// Package roles implements the role directory: role documents, their
// validation and lifecycle, a bounded query predicate, and the stores
// they live in.
package roles

import (
	"github.com/roledir/roledir/internal/shared"
)

// Document is one role: a named set of members and privilege grants.
//
// role_id and role_owner are immutable after creation; the owner is set by
// the system from the resolved caller identity, never client-supplied.
// The privilege lists hold opaque object/role ids scoped to this role;
// create is a privilege list like the others.
type Document struct {
	RoleID      string   `json:"role_id"`
	Description string   `json:"description"`
	Owner       string   `json:"role_owner"`
	Updaters    []string `json:"role_updater"`
	Members     []string `json:"members"`
	Read        []string `json:"read"`
	Modify      []string `json:"modify"`
	Delete      []string `json:"delete"`
	Impersonate []string `json:"impersonate"`
	Grant       []string `json:"grant"`
	Create      []string `json:"create"`
}

// Validate checks the required fields. Absence is a validation error, not
// a crash.
func (d *Document) Validate() error {
	if d.RoleID == "" {
		return &shared.ValidationError{Field: "role_id"}
	}
	if d.Description == "" {
		return &shared.ValidationError{Field: "description"}
	}
	return nil
}

// Normalize replaces nil sets with empty ones so stored and serialized
// documents always carry every field.
func (d *Document) Normalize() {
	for _, set := range []*[]string{
		&d.Updaters, &d.Members, &d.Read, &d.Modify,
		&d.Delete, &d.Impersonate, &d.Grant, &d.Create,
	} {
		if *set == nil {
			*set = []string{}
		}
	}
}

// Clone returns a deep copy.
func (d Document) Clone() Document {
	out := d
	out.Updaters = cloneSet(d.Updaters)
	out.Members = cloneSet(d.Members)
	out.Read = cloneSet(d.Read)
	out.Modify = cloneSet(d.Modify)
	out.Delete = cloneSet(d.Delete)
	out.Impersonate = cloneSet(d.Impersonate)
	out.Grant = cloneSet(d.Grant)
	out.Create = cloneSet(d.Create)
	return out
}

// HasMember reports whether a user id is in the members set.
func (d Document) HasMember(userID string) bool {
	for _, m := range d.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// Update is a partial update: only fields present in the payload replace
// stored values. role_id and role_owner are not represented here; clients
// attempting to set them are ignored rather than erroring.
type Update struct {
	Description *string   `json:"description"`
	Updaters    *[]string `json:"role_updater"`
	Members     *[]string `json:"members"`
	Read        *[]string `json:"read"`
	Modify      *[]string `json:"modify"`
	Delete      *[]string `json:"delete"`
	Impersonate *[]string `json:"impersonate"`
	Grant       *[]string `json:"grant"`
	Create      *[]string `json:"create"`
}

// Merge overlays an update on a stored document. Fields absent from the
// update retain their prior values; role_id and role_owner always do.
func Merge(existing Document, upd Update) Document {
	out := existing.Clone()
	if upd.Description != nil {
		out.Description = *upd.Description
	}
	if upd.Updaters != nil {
		out.Updaters = cloneSet(*upd.Updaters)
	}
	if upd.Members != nil {
		out.Members = cloneSet(*upd.Members)
	}
	if upd.Read != nil {
		out.Read = cloneSet(*upd.Read)
	}
	if upd.Modify != nil {
		out.Modify = cloneSet(*upd.Modify)
	}
	if upd.Delete != nil {
		out.Delete = cloneSet(*upd.Delete)
	}
	if upd.Impersonate != nil {
		out.Impersonate = cloneSet(*upd.Impersonate)
	}
	if upd.Grant != nil {
		out.Grant = cloneSet(*upd.Grant)
	}
	if upd.Create != nil {
		out.Create = cloneSet(*upd.Create)
	}
	out.Normalize()
	return out
}

func cloneSet(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
