// Namespace and table identifier parsing and validation.
package types

import (
	"fmt"
	"strings"
)

// NamespaceSeparator joins namespace segments and the table name in the
// canonical dotted form.
const NamespaceSeparator = "."

// namespaceKeySeparator joins segments in Key. It is the ASCII unit separator,
// which the REST protocol also uses to encode multi-level namespaces in paths.
const namespaceKeySeparator = "\x1f"

// Namespace is an ordered, non-empty sequence of non-empty segments.
// Treat values as immutable; use Clone before modifying.
type Namespace []string

// NewNamespace validates segments and returns them as a Namespace.
// Returns ErrMalformedIdentifier if there are no segments or any segment is empty.
func NewNamespace(segments ...string) (Namespace, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: namespace must have at least one segment", ErrMalformedIdentifier)
	}
	for i, s := range segments {
		if s == "" {
			return nil, fmt.Errorf("%w: namespace segment %d is empty", ErrMalformedIdentifier, i)
		}
	}
	ns := make(Namespace, len(segments))
	copy(ns, segments)
	return ns, nil
}

// ParseNamespace splits a dotted string into a Namespace.
func ParseNamespace(text string) (Namespace, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: empty namespace", ErrMalformedIdentifier)
	}
	return NewNamespace(strings.Split(text, NamespaceSeparator)...)
}

// NamespaceFromKey is the inverse of Namespace.Key.
func NamespaceFromKey(key string) (Namespace, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: empty namespace", ErrMalformedIdentifier)
	}
	return NewNamespace(strings.Split(key, namespaceKeySeparator)...)
}

// String returns the dotted form of the namespace.
func (n Namespace) String() string {
	return strings.Join(n, NamespaceSeparator)
}

// Key returns a canonical string usable as a map key. Unlike String it is
// unambiguous for segments that contain dots.
func (n Namespace) Key() string {
	return strings.Join(n, namespaceKeySeparator)
}

// Equal reports whether both namespaces have the same segments in order.
func (n Namespace) Equal(other Namespace) bool {
	if len(n) != len(other) {
		return false
	}
	for i := range n {
		if n[i] != other[i] {
			return false
		}
	}
	return true
}

// Parent returns the namespace without its last segment, or nil for a
// top-level namespace.
func (n Namespace) Parent() Namespace {
	if len(n) <= 1 {
		return nil
	}
	return n.Clone()[:len(n)-1]
}

// IsChildOf reports whether n sits directly under parent. Every top-level
// namespace is a child of the nil parent.
func (n Namespace) IsChildOf(parent Namespace) bool {
	if len(n) != len(parent)+1 {
		return false
	}
	return n[:len(parent)].Equal(parent)
}

// Clone returns a copy that does not share the backing array.
func (n Namespace) Clone() Namespace {
	if n == nil {
		return nil
	}
	out := make(Namespace, len(n))
	copy(out, n)
	return out
}

// TableIdentifier names a table: a namespace with at least one segment plus
// exactly one table name.
type TableIdentifier struct {
	Namespace Namespace
	Name      string
}

// Parse splits a dotted identifier such as "db.schema.orders". The last
// segment is the table name. Returns ErrMalformedIdentifier if fewer than two
// segments result or any segment is empty.
func Parse(text string) (TableIdentifier, error) {
	parts := strings.Split(text, NamespaceSeparator)
	if len(parts) < 2 {
		return TableIdentifier{}, fmt.Errorf("%w: %q needs a namespace and a name", ErrMalformedIdentifier, text)
	}
	return FromParts(parts[:len(parts)-1], parts[len(parts)-1])
}

// FromParts builds an identifier from explicit namespace segments and a name.
func FromParts(namespace []string, name string) (TableIdentifier, error) {
	ns, err := NewNamespace(namespace...)
	if err != nil {
		return TableIdentifier{}, err
	}
	if name == "" {
		return TableIdentifier{}, fmt.Errorf("%w: empty table name", ErrMalformedIdentifier)
	}
	return TableIdentifier{Namespace: ns, Name: name}, nil
}

// FromServiceEntry converts a listing entry returned by a catalog service
// (namespace segments plus bare name) into an identifier. The name is
// appended as the final segment and the whole sequence is resolved.
func FromServiceEntry(namespace []string, name string) (TableIdentifier, error) {
	segments := make([]string, 0, len(namespace)+1)
	segments = append(segments, namespace...)
	segments = append(segments, name)
	if len(segments) < 2 {
		return TableIdentifier{}, fmt.Errorf("%w: service entry %q has no namespace", ErrMalformedIdentifier, name)
	}
	return FromParts(segments[:len(segments)-1], segments[len(segments)-1])
}

// String returns the dotted form, e.g. "db.orders".
func (id TableIdentifier) String() string {
	return id.Namespace.String() + NamespaceSeparator + id.Name
}

// Equal reports whether both identifiers name the same table.
func (id TableIdentifier) Equal(other TableIdentifier) bool {
	return id.Name == other.Name && id.Namespace.Equal(other.Namespace)
}

// Key returns a canonical map key for the identifier.
func (id TableIdentifier) Key() string {
	return id.Namespace.Key() + namespaceKeySeparator + id.Name
}

// Segments returns the namespace segments followed by the name.
func (id TableIdentifier) Segments() []string {
	out := make([]string, 0, len(id.Namespace)+1)
	out = append(out, id.Namespace...)
	return append(out, id.Name)
}
