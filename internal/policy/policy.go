// Package policy decides whether a user may read, modify or manage a resource
// given its resolved ownership chain. Functions here never touch storage.
package policy

import (
	"github.com/chirino/collection-service/internal/model"
	registrystore "github.com/chirino/collection-service/internal/registry/store"
	"github.com/google/uuid"
)

// Kind names a resource type in an ownership chain.
type Kind string

const (
	KindCollection Kind = "collection"
	KindChat       Kind = "chat"
	KindRelation   Kind = "relation"
	KindNode       Kind = "node"
	KindEdge       Kind = "edge"
)

// Link is one resolved resource of an ownership chain.
type Link struct {
	Kind      Kind
	ID        uuid.UUID
	CreatedBy string
}

// Ancestry is an immutable snapshot of a resource and its ancestors, root
// (collection) first. Delegated is the acting user's explicit grant on the
// root collection, or empty when none exists.
type Ancestry struct {
	chain     []Link
	delegated model.PermissionLevel
}

// ForCollection starts a chain rooted at the given collection.
func ForCollection(id uuid.UUID, createdBy string) Ancestry {
	return Ancestry{chain: []Link{{Kind: KindCollection, ID: id, CreatedBy: createdBy}}}
}

// Child returns a new chain extended by one descendant.
func (a Ancestry) Child(kind Kind, id uuid.UUID, createdBy string) Ancestry {
	chain := make([]Link, len(a.chain), len(a.chain)+1)
	copy(chain, a.chain)
	return Ancestry{
		chain:     append(chain, Link{Kind: kind, ID: id, CreatedBy: createdBy}),
		delegated: a.delegated,
	}
}

// WithDelegated returns a copy carrying the acting user's explicit grant.
func (a Ancestry) WithDelegated(level model.PermissionLevel) Ancestry {
	return Ancestry{chain: a.chain, delegated: level}
}

// Delegated returns the acting user's explicit grant, if any.
func (a Ancestry) Delegated() model.PermissionLevel { return a.delegated }

// Resource returns the leaf of the chain.
func (a Ancestry) Resource() Link {
	if len(a.chain) == 0 {
		return Link{}
	}
	return a.chain[len(a.chain)-1]
}

// Root returns the collection at the top of the chain.
func (a Ancestry) Root() Link {
	if len(a.chain) == 0 {
		return Link{}
	}
	return a.chain[0]
}

// Parent returns the chain without its leaf.
func (a Ancestry) Parent() (Ancestry, bool) {
	if len(a.chain) < 2 {
		return Ancestry{}, false
	}
	return Ancestry{chain: a.chain[:len(a.chain)-1], delegated: a.delegated}, true
}

// CanAccess reports whether user created the resource or can access its parent.
func CanAccess(a Ancestry, user string) bool {
	if user == "" || len(a.chain) == 0 {
		return false
	}
	if a.Resource().CreatedBy == user {
		return true
	}
	parent, ok := a.Parent()
	return ok && CanAccess(parent, user)
}

// CanModify reports whether user created the resource or can modify its parent.
func CanModify(a Ancestry, user string) bool {
	if user == "" || len(a.chain) == 0 {
		return false
	}
	if a.Resource().CreatedBy == user {
		return true
	}
	parent, ok := a.Parent()
	return ok && CanModify(parent, user)
}

// IsOwner reports whether user created the root collection or holds an explicit OWNER grant.
func IsOwner(a Ancestry, user string) bool {
	if user == "" || len(a.chain) == 0 {
		return false
	}
	return a.Root().CreatedBy == user || a.delegated.IsAtLeast(model.PermissionOwner)
}

// Capability is what an operation needs from the caller.
type Capability int

const (
	Read Capability = iota
	Write
	Manage
)

func (c Capability) String() string {
	switch c {
	case Read:
		return "read"
	case Write:
		return "modify"
	case Manage:
		return "manage permissions of"
	default:
		return "access"
	}
}

// Level returns the delegated level that grants the capability.
func (c Capability) Level() model.PermissionLevel {
	switch c {
	case Read:
		return model.PermissionViewer
	case Write:
		return model.PermissionEditor
	default:
		return model.PermissionOwner
	}
}

// Authorize combines the ownership chain with the caller's delegated level.
// It returns an AuthorizationError naming the leaf resource when denied.
func Authorize(a Ancestry, user string, c Capability) error {
	if allowed(a, user, c) {
		return nil
	}
	res := a.Resource()
	return &registrystore.AuthorizationError{Action: c.String(), Resource: string(res.Kind), ID: res.ID.String()}
}

func allowed(a Ancestry, user string, c Capability) bool {
	if user == "" {
		return false
	}
	switch c {
	case Read:
		return CanAccess(a, user) || a.delegated.IsAtLeast(c.Level())
	case Write:
		return CanModify(a, user) || a.delegated.IsAtLeast(c.Level())
	case Manage:
		return IsOwner(a, user)
	}
	return false
}
