package addressbook

import (
	"errors"
	"fmt"

	"github.com/fortiblox/testsvm/pkg/types"
)

// Registration errors.
var (
	// ErrDuplicateLabel is returned when a label is already bound to another key.
	ErrDuplicateLabel = errors.New("label already registered to a different key")

	// ErrDuplicateKey is returned when a key is already bound to another label.
	ErrDuplicateKey = errors.New("key already registered under a different label")

	// ErrConflict is returned when a key and label are registered with a
	// different role.
	ErrConflict = errors.New("key and label already registered with a different role")

	// ErrInvalidRole is returned when a role's metadata is incomplete.
	ErrInvalidRole = errors.New("invalid role")
)

// RegisteredAddress binds a key to a label and a role.
type RegisteredAddress struct {
	Key   types.Pubkey
	Label string
	Role  Role
}

// String renders "label (key) [tag]".
func (a RegisteredAddress) String() string {
	return fmt.Sprintf("%s (%s) %s", a.Label, a.Key, a.Role.Tag())
}

// RegistrationError is returned by Register. Kind is one of ErrDuplicateLabel,
// ErrDuplicateKey or ErrConflict, and Existing is the registration that
// blocked the new one.
type RegistrationError struct {
	Kind     error
	Key      types.Pubkey
	Label    string
	Existing RegisteredAddress
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("register %q (%s): %v: existing %s", e.Label, e.Key, e.Kind, e.Existing)
}

func (e *RegistrationError) Unwrap() error {
	return e.Kind
}

// Registry holds label, key and role triples indexed both ways. Iteration
// follows registration order. A Registry is not safe for concurrent use.
type Registry struct {
	entries []RegisteredAddress
	byKey   map[types.Pubkey]int
	byLabel map[string]int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byKey:   make(map[types.Pubkey]int),
		byLabel: make(map[string]int),
	}
}

// Register binds key to label with role. Registering an identical triple
// again is a no-op. On error the registry is unchanged.
func (r *Registry) Register(key types.Pubkey, label string, role Role) error {
	if err := r.Check(key, label, role); err != nil {
		return err
	}
	if r.Contains(key) {
		return nil
	}

	if pda, ok := role.(PDARole); ok {
		pda.Seeds = append([]string(nil), pda.Seeds...)
		role = pda
	}
	r.entries = append(r.entries, RegisteredAddress{Key: key, Label: label, Role: role})
	r.byKey[key] = len(r.entries) - 1
	r.byLabel[label] = len(r.entries) - 1
	return nil
}

// Check returns the error Register would return, without registering.
func (r *Registry) Check(key types.Pubkey, label string, role Role) error {
	if label == "" {
		return fmt.Errorf("%w: empty label for %s", ErrInvalidRole, key)
	}
	if role == nil {
		return fmt.Errorf("%w: nil role for %s", ErrInvalidRole, key)
	}
	if err := role.validate(); err != nil {
		return err
	}

	if i, ok := r.byLabel[label]; ok && r.entries[i].Key != key {
		return &RegistrationError{Kind: ErrDuplicateLabel, Key: key, Label: label, Existing: r.entries[i]}
	}
	if i, ok := r.byKey[key]; ok {
		existing := r.entries[i]
		if existing.Label != label {
			return &RegistrationError{Kind: ErrDuplicateKey, Key: key, Label: label, Existing: existing}
		}
		if !RolesEqual(existing.Role, role) {
			return &RegistrationError{Kind: ErrConflict, Key: key, Label: label, Existing: existing}
		}
	}
	return nil
}

// LookupByKey returns the registration for key.
func (r *Registry) LookupByKey(key types.Pubkey) (RegisteredAddress, bool) {
	i, ok := r.byKey[key]
	if !ok {
		return RegisteredAddress{}, false
	}
	return r.entries[i], true
}

// LookupByLabel returns the registration for label.
func (r *Registry) LookupByLabel(label string) (RegisteredAddress, bool) {
	i, ok := r.byLabel[label]
	if !ok {
		return RegisteredAddress{}, false
	}
	return r.entries[i], true
}

// AllWithRole returns the registrations whose role satisfies match, in
// registration order.
func (r *Registry) AllWithRole(match func(Role) bool) []RegisteredAddress {
	var out []RegisteredAddress
	for _, e := range r.entries {
		if match(e.Role) {
			out = append(out, e)
		}
	}
	return out
}

// All returns every registration in registration order.
func (r *Registry) All() []RegisteredAddress {
	return append([]RegisteredAddress(nil), r.entries...)
}

// Contains reports whether key is registered.
func (r *Registry) Contains(key types.Pubkey) bool {
	_, ok := r.byKey[key]
	return ok
}

// Len returns the number of registrations.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Clone returns an independent copy.
func (r *Registry) Clone() *Registry {
	c := &Registry{
		entries: append([]RegisteredAddress(nil), r.entries...),
		byKey:   make(map[types.Pubkey]int, len(r.byKey)),
		byLabel: make(map[string]int, len(r.byLabel)),
	}
	for k, v := range r.byKey {
		c.byKey[k] = v
	}
	for k, v := range r.byLabel {
		c.byLabel[k] = v
	}
	return c
}

// IsKind returns a role predicate for AllWithRole.
func IsKind(kind RoleKind) func(Role) bool {
	return func(r Role) bool { return r.Kind() == kind }
}
