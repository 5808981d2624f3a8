// Package memory provides an in-process catalog service that satisfies
// types.Transport. It honors the same requirements and error contract as
// the SQLite and REST services and is used to exercise the commit protocol
// deterministically.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/mesh-intelligence/icecat/pkg/types"
)

var _ types.Transport = (*Transport)(nil)

type namespaceEntry struct {
	ns    types.Namespace
	props map[string]string
}

type tableEntry struct {
	ns       types.Namespace
	name     string
	location string
}

// Transport is a map-backed catalog service. All methods are safe for
// concurrent use; a commit's requirement check and pointer swap happen
// under one lock.
type Transport struct {
	mu         sync.Mutex
	namespaces map[string]*namespaceEntry
	nsOrder    []string
	tables     map[string]*tableEntry
	order      []string
}

// NewTransport creates an empty service.
func NewTransport() *Transport {
	return &Transport{
		namespaces: make(map[string]*namespaceEntry),
		tables:     make(map[string]*tableEntry),
	}
}

func tableKey(ns types.Namespace, name string) string {
	return types.TableIdentifier{Namespace: ns, Name: name}.Key()
}

// ListNamespaces returns the direct children of parent in creation order.
func (t *Transport) ListNamespaces(ctx context.Context, parent types.Namespace) (*types.ListNamespacesResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(parent) > 0 {
		if _, ok := t.namespaces[parent.Key()]; !ok {
			return nil, fmt.Errorf("%w: namespace %s", types.ErrNotFound, parent)
		}
	}
	out := [][]string{}
	for _, key := range t.nsOrder {
		e := t.namespaces[key]
		if e.ns.IsChildOf(parent) {
			out = append(out, e.ns.Clone())
		}
	}
	return &types.ListNamespacesResponse{Namespaces: out}, nil
}

// CreateNamespace adds ns. Multi-level namespaces need an existing parent.
func (t *Transport) CreateNamespace(ctx context.Context, ns types.Namespace, props map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	key := ns.Key()
	if _, ok := t.namespaces[key]; ok {
		return fmt.Errorf("%w: namespace %s", types.ErrAlreadyExists, ns)
	}
	if parent := ns.Parent(); parent != nil {
		if _, ok := t.namespaces[parent.Key()]; !ok {
			return fmt.Errorf("%w: parent namespace %s", types.ErrNotFound, parent)
		}
	}
	cp := make(map[string]string, len(props))
	for k, v := range props {
		cp[k] = v
	}
	t.namespaces[key] = &namespaceEntry{ns: ns.Clone(), props: cp}
	t.nsOrder = append(t.nsOrder, key)
	return nil
}

// DropNamespace removes an empty namespace.
func (t *Transport) DropNamespace(ctx context.Context, ns types.Namespace) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	key := ns.Key()
	if _, ok := t.namespaces[key]; !ok {
		return fmt.Errorf("%w: namespace %s", types.ErrNotFound, ns)
	}
	for _, e := range t.namespaces {
		if e.ns.IsChildOf(ns) {
			return fmt.Errorf("%w: namespace %s has child namespaces", types.ErrInvalidRequest, ns)
		}
	}
	for _, e := range t.tables {
		if e.ns.Equal(ns) {
			return fmt.Errorf("%w: namespace %s is not empty", types.ErrInvalidRequest, ns)
		}
	}
	delete(t.namespaces, key)
	t.nsOrder = removeKey(t.nsOrder, key)
	return nil
}

// ListTables returns the tables in ns in creation order.
func (t *Transport) ListTables(ctx context.Context, ns types.Namespace) (*types.ListTablesResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.namespaces[ns.Key()]; !ok {
		return nil, fmt.Errorf("%w: namespace %s", types.ErrNotFound, ns)
	}
	out := []types.TableEntry{}
	for _, key := range t.order {
		e := t.tables[key]
		if e.ns.Equal(ns) {
			out = append(out, types.TableEntry{Namespace: e.ns.Clone(), Name: e.name})
		}
	}
	return &types.ListTablesResponse{Identifiers: out}, nil
}

// TableExists returns nil if the table exists.
func (t *Transport) TableExists(ctx context.Context, ns types.Namespace, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.tables[tableKey(ns, name)]; !ok {
		return fmt.Errorf("%w: table %s.%s", types.ErrNotFound, ns, name)
	}
	return nil
}

// DropTable removes the pointer entry. purge has no extra effect because
// the service holds no files.
func (t *Transport) DropTable(ctx context.Context, ns types.Namespace, name string, _ bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	key := tableKey(ns, name)
	if _, ok := t.tables[key]; !ok {
		return fmt.Errorf("%w: table %s.%s", types.ErrNotFound, ns, name)
	}
	delete(t.tables, key)
	t.order = removeKey(t.order, key)
	return nil
}

// LoadTable returns the current pointer.
func (t *Transport) LoadTable(ctx context.Context, ns types.Namespace, name string) (*types.LoadTableResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.tables[tableKey(ns, name)]
	if !ok {
		return nil, fmt.Errorf("%w: table %s.%s", types.ErrNotFound, ns, name)
	}
	return &types.LoadTableResponse{MetadataLocation: e.location}, nil
}

// CreateTable registers a new pointer.
func (t *Transport) CreateTable(ctx context.Context, ns types.Namespace, req types.CreateTableRequest) (*types.LoadTableResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Name == "" || req.MetadataLocation == "" {
		return nil, fmt.Errorf("%w: create needs a name and a metadata location", types.ErrInvalidRequest)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.namespaces[ns.Key()]; !ok {
		return nil, fmt.Errorf("%w: namespace %s", types.ErrNotFound, ns)
	}
	key := tableKey(ns, req.Name)
	if _, ok := t.tables[key]; ok {
		return nil, fmt.Errorf("%w: table %s.%s", types.ErrAlreadyExists, ns, req.Name)
	}
	if err := types.CheckRequirements(req.Requirements, false, ""); err != nil {
		return nil, err
	}
	t.tables[key] = &tableEntry{ns: ns.Clone(), name: req.Name, location: req.MetadataLocation}
	t.order = append(t.order, key)
	return &types.LoadTableResponse{MetadataLocation: req.MetadataLocation}, nil
}

// UpdateTable checks the requirements against the current pointer and swaps
// it in the same critical section.
func (t *Transport) UpdateTable(ctx context.Context, ns types.Namespace, name string, req types.CommitTableRequest) (*types.CommitTableResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	next, err := types.PointerFromUpdates(req.Updates)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.tables[tableKey(ns, name)]
	if !ok {
		return nil, fmt.Errorf("%w: table %s.%s", types.ErrNotFound, ns, name)
	}
	if err := types.CheckRequirements(req.Requirements, true, e.location); err != nil {
		return nil, err
	}
	e.location = next
	return &types.CommitTableResponse{MetadataLocation: next}, nil
}

// RenameTable moves an entry; the destination namespace must exist and the
// destination name must be free.
func (t *Transport) RenameTable(ctx context.Context, from, to types.TableIdentifier) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	fromKey, toKey := from.Key(), to.Key()
	e, ok := t.tables[fromKey]
	if !ok {
		return fmt.Errorf("%w: table %s", types.ErrNotFound, from)
	}
	if _, ok := t.namespaces[to.Namespace.Key()]; !ok {
		return fmt.Errorf("%w: namespace %s", types.ErrNotFound, to.Namespace)
	}
	if _, ok := t.tables[toKey]; ok {
		return fmt.Errorf("%w: table %s", types.ErrAlreadyExists, to)
	}
	delete(t.tables, fromKey)
	e.ns, e.name = to.Namespace.Clone(), to.Name
	t.tables[toKey] = e
	for i, k := range t.order {
		if k == fromKey {
			t.order[i] = toKey
		}
	}
	return nil
}

func removeKey(keys []string, key string) []string {
	out := keys[:0]
	for _, k := range keys {
		if k != key {
			out = append(out, k)
		}
	}
	return out
}
