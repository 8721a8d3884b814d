// Package node provides the node content entity and its translation controller.
package node

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/sectrean/servicekit/core/entity"
)

// EntityType is the entity type id of nodes.
const EntityType = "node"

// Node access permissions. Per-type permissions are built with [TypePermission].
const (
	PermissionBypass             = "bypass node access"
	PermissionAccessContent      = "access content"
	PermissionViewOwnUnpublished = "view own unpublished content"
)

// Node operations.
const (
	OpView   = "view"
	OpUpdate = "update"
	OpDelete = "delete"
	OpCreate = "create"
)

// Node is a piece of content.
type Node struct {
	NID       string
	Type      string
	Title     string
	Langcode  string
	UID       string
	Published bool
	Fields    map[string]any
}

var _ entity.Entity = (*Node)(nil)

func (n *Node) ID() string         { return n.NID }
func (n *Node) EntityType() string { return EntityType }
func (n *Node) Bundle() string     { return n.Type }
func (n *Node) Label() string      { return n.Title }
func (n *Node) Language() string   { return n.Langcode }

// Field returns a field value. The base fields are available by name.
func (n *Node) Field(name string) any {
	switch name {
	case "nid":
		return n.NID
	case "type":
		return n.Type
	case "title":
		return n.Title
	case "langcode":
		return n.Langcode
	case "uid":
		return n.UID
	case "status":
		return n.Published
	default:
		return n.Fields[name]
	}
}

// TypePermission returns the permission for an operation on nodes of one
// type, like "edit any article content".
func TypePermission(op, nodeType string) string {
	switch op {
	case OpUpdate:
		return "edit any " + nodeType + " content"
	case OpDelete:
		return "delete any " + nodeType + " content"
	case OpCreate:
		return "create " + nodeType + " content"
	default:
		return ""
	}
}

func ownPermission(op, nodeType string) string {
	switch op {
	case OpUpdate:
		return "edit own " + nodeType + " content"
	case OpDelete:
		return "delete own " + nodeType + " content"
	default:
		return ""
	}
}

// Access returns true if the account on ctx may perform op on n.
func Access(ctx context.Context, op string, n *Node) bool {
	account := entity.AccountFromContext(ctx)
	if account.HasPermission(PermissionBypass) {
		return true
	}
	if !account.HasPermission(PermissionAccessContent) {
		return false
	}

	own := account.UID != entity.Anonymous.UID && account.UID == n.UID
	switch op {
	case OpView:
		return n.Published || (own && account.HasPermission(PermissionViewOwnUnpublished))
	case OpCreate:
		return account.HasPermission(TypePermission(op, n.Type))
	case OpUpdate, OpDelete:
		return account.HasPermission(TypePermission(op, n.Type)) ||
			(own && account.HasPermission(ownPermission(op, n.Type)))
	default:
		return false
	}
}

// Types holds the human-readable names of node types.
type Types struct {
	mu     sync.RWMutex
	labels map[string]string
}

// NewTypes creates an empty [Types].
func NewTypes() *Types {
	return &Types{labels: make(map[string]string)}
}

// Add sets the name of a node type.
func (t *Types) Add(nodeType, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.labels[nodeType] = name
}

// Label returns the name of a node type, or the type itself.
func (t *Types) Label(nodeType string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if l, ok := t.labels[nodeType]; ok {
		return l
	}
	return nodeType
}

// IDs returns the node types in order.
func (t *Types) IDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Sorted(maps.Keys(t.labels))
}
