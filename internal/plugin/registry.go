// Package plugin provides the per-adapter extension points used while mapping CSV rows.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Type identifies an extension point.
type Type string

const (
	// TypeFieldProcessor transforms a single field value before it is mapped.
	TypeFieldProcessor Type = "field_processor"

	// TypePersonLookup overrides how an existing CRM person is located.
	TypePersonLookup Type = "person_lookup"

	// TypeRowTransformer rewrites the raw row before canonical mapping.
	TypeRowTransformer Type = "row_transformer"
)

// Valid reports whether t is a known plugin type.
func (t Type) Valid() bool {
	switch t {
	case TypeFieldProcessor, TypePersonLookup, TypeRowTransformer:
		return true
	default:
		return false
	}
}

// RowTransformer receives a copy of the raw row and returns the row the mapper should use.
// Control state is set through signals rather than magic keys.
type RowTransformer func(row map[string]string, signals *Signals) (map[string]string, error)

// FieldProcessor returns the value to use for field, given its raw value and the full row.
type FieldProcessor func(field string, value string, row map[string]string) (string, error)

// PersonLookup resolves the CRM person for a donor. It may call fallback to run the
// default email based lookup.
type PersonLookup func(
	ctx context.Context,
	query *PersonQuery,
	people PeopleDirectory,
	fallback DefaultLookup,
) (personID string, found bool, message string)

// DefaultLookup is the built-in person lookup offered to PersonLookup plugins.
type DefaultLookup func(ctx context.Context, query *PersonQuery) (personID string, found bool, message string)

// PeopleDirectory is the subset of the CRM people API available to lookup plugins.
type PeopleDirectory interface {
	// PersonIDByEmail returns the id of the person matching email.
	PersonIDByEmail(ctx context.Context, email string) (string, error)

	// PersonIDByExternalID returns the id and email of the person with the given external id.
	PersonIDByExternalID(ctx context.Context, externalID string) (string, string, error)
}

// PersonQuery describes the donor being resolved. Lookup plugins may update Email;
// the import service copies it back onto the donation record.
type PersonQuery struct {
	// CheckNumber is the source transaction identifier, if any.
	CheckNumber string

	// Email is the donor email address.
	Email string

	// Fields holds the (transformed) raw row.
	Fields map[string]string

	// FirstName is the donor first name.
	FirstName string

	// LastName is the donor last name.
	LastName string
}

// Plugin is a named callable registered for an adapter.
type Plugin struct {
	// FieldProcessor is set when Type is TypeFieldProcessor.
	FieldProcessor FieldProcessor

	// Name identifies the plugin in logs.
	Name string

	// PersonLookup is set when Type is TypePersonLookup.
	PersonLookup PersonLookup

	// RowTransformer is set when Type is TypeRowTransformer.
	RowTransformer RowTransformer

	// Type is the extension point the plugin serves.
	Type Type
}

// Registry maps adapter names to their plugins in registration order.
// The zero value is not usable; create one with NewRegistry.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string][]Plugin
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string][]Plugin)}
}

// Add registers p for adapter. Registering a plugin with the same name and type again
// replaces the earlier entry in place, so repeated loads do not duplicate work.
func (r *Registry) Add(adapter string, p Plugin) error {
	if err := checkRegistration(adapter, p); err != nil {
		return err
	}
	key := adapterKey(adapter)

	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.plugins[key] {
		if existing.Name == p.Name && existing.Type == p.Type {
			r.plugins[key][i] = p
			return nil
		}
	}
	r.plugins[key] = append(r.plugins[key], p)
	return nil
}

// Get returns the plugins registered for adapter, in registration order. An empty
// pluginType returns every plugin for the adapter across all types.
func (r *Registry) Get(adapter string, pluginType Type) []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Plugin
	for _, p := range r.plugins[adapterKey(adapter)] {
		if pluginType == "" || p.Type == pluginType {
			out = append(out, p)
		}
	}
	return out
}

// Clear removes the registrations for adapter, or for every adapter when adapter is empty.
func (r *Registry) Clear(adapter string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if adapter == "" {
		r.plugins = make(map[string][]Plugin)
		return
	}
	delete(r.plugins, adapterKey(adapter))
}

// Register adds fn to the registry and returns it unchanged, so plugins can be
// registered inline where they are defined. It panics if the registration is invalid.
func Register[F RowTransformer | FieldProcessor | PersonLookup](r *Registry, adapter string, name string, fn F) F {
	p := Plugin{Name: name}
	switch f := any(fn).(type) {
	case RowTransformer:
		p.Type, p.RowTransformer = TypeRowTransformer, f
	case FieldProcessor:
		p.Type, p.FieldProcessor = TypeFieldProcessor, f
	case PersonLookup:
		p.Type, p.PersonLookup = TypePersonLookup, f
	}
	if err := r.Add(adapter, p); err != nil {
		panic(fmt.Sprintf("registering plugin %s: %v", name, err))
	}
	return fn
}

// checkRegistration reports why p cannot be registered for adapter.
func checkRegistration(adapter string, p Plugin) error {
	if adapterKey(adapter) == "" {
		return errors.New("adapter name is required")
	}
	if !p.Type.Valid() {
		return fmt.Errorf("unknown plugin type %q", p.Type)
	}
	if p.Name == "" {
		return errors.New("plugin name is required")
	}
	if !p.hasFunc() {
		return fmt.Errorf("plugin %s has no %s function", p.Name, p.Type)
	}
	return nil
}

func (p Plugin) hasFunc() bool {
	switch p.Type {
	case TypeRowTransformer:
		return p.RowTransformer != nil
	case TypeFieldProcessor:
		return p.FieldProcessor != nil
	case TypePersonLookup:
		return p.PersonLookup != nil
	default:
		return false
	}
}

func adapterKey(adapter string) string {
	return strings.ToLower(strings.TrimSpace(adapter))
}
