package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/groundworklabs/groundwork/internal/attr"
)

// Fault describes an injected failure for the memory provider. Times is the
// number of matching calls that fail before the fault clears; 0 means every
// call fails. Transient selects the retryable error class.
type Fault struct {
	Times     int
	Transient bool
	Message   string
}

type faultState struct {
	remaining int
	forever   bool
	transient bool
	message   string
}

// Call is one journal entry recording a provider invocation that reached the
// remote side. Faulted calls and token replays are not journaled.
type Call struct {
	Seq      int64
	Op       Op
	Type     string
	Identity string
	Name     string
}

type memObject struct {
	typ      string
	identity string
	name     string
	attrs    attr.Map
}

// Memory is an in-process Provider with real provider semantics: generated
// identities, computed outputs, immutability enforcement, idempotency token
// replay, and injectable faults. It backs the CLI's memory mode and every
// engine test.
type Memory struct {
	registry *Registry

	mu       sync.Mutex
	objects  map[string]*memObject // typeName + "/" + identity
	nextID   map[string]int64      // per-type identity counter
	creates  map[string]CreateResult
	updates  map[string]attr.Map
	destroys map[string]bool
	faults   map[string]*faultState
	journal  []Call
	seq      int64
}

// NewMemory builds an empty memory provider over the given schema registry.
func NewMemory(reg *Registry) *Memory {
	return &Memory{
		registry: reg,
		objects:  make(map[string]*memObject),
		nextID:   make(map[string]int64),
		creates:  make(map[string]CreateResult),
		updates:  make(map[string]attr.Map),
		destroys: make(map[string]bool),
		faults:   make(map[string]*faultState),
	}
}

// InjectFault arms a failure for calls matching op + type + name, where name
// is the resource's "name" input ("url" for types without one).
func (m *Memory) InjectFault(op Op, typeName, name string, f Fault) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults[faultKey(op, typeName, name)] = &faultState{
		remaining: f.Times,
		forever:   f.Times == 0,
		transient: f.Transient,
		message:   f.Message,
	}
}

// Journal returns a copy of every remote call in arrival order.
func (m *Memory) Journal() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.journal))
	copy(out, m.journal)
	return out
}

// Get returns a copy of the stored attributes for an object, if it exists.
func (m *Memory) Get(typeName, identity string) (attr.Map, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[objectKey(typeName, identity)]
	if !ok {
		return nil, false
	}
	return obj.attrs.Clone(), true
}

// FindByName returns the identity of the object of the given type whose
// "name" input matches, if any. Test helper.
func (m *Memory) FindByName(typeName, name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, obj := range m.objects {
		if obj.typ == typeName && obj.name == name {
			return obj.identity, true
		}
	}
	return "", false
}

// Drift mutates a stored object's attributes out of band, simulating a
// change made behind the engine's back. Not journaled. Reports whether the
// object exists.
func (m *Memory) Drift(typeName, identity string, overlay attr.Map) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[objectKey(typeName, identity)]
	if !ok {
		return false
	}
	for k, v := range overlay {
		obj.attrs[k] = v
	}
	obj.name = displayName(obj.attrs)
	return true
}

// Vanish deletes a stored object out of band, simulating removal behind the
// engine's back. Not journaled. Reports whether the object existed.
func (m *Memory) Vanish(typeName, identity string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := objectKey(typeName, identity)
	if _, ok := m.objects[key]; !ok {
		return false
	}
	delete(m.objects, key)
	return true
}

// Describe implements Provider.
func (m *Memory) Describe(ctx context.Context, typeName, identity string) (attr.Map, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[objectKey(typeName, identity)]
	if !ok {
		return nil, ErrNotFound
	}
	if err := m.takeFault(OpDescribe, typeName, obj.name, identity); err != nil {
		return nil, err
	}
	m.record(OpDescribe, typeName, identity, obj.name)
	return obj.attrs.Clone(), nil
}

// Create implements Provider.
func (m *Memory) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Idempotency: a retried token returns the committed result untouched.
	if prev, ok := m.creates[req.Token]; ok {
		res := CreateResult{Identity: prev.Identity, Attrs: prev.Attrs.Clone()}
		return &res, nil
	}

	schema, ok := m.registry.Lookup(req.Type)
	if !ok {
		return nil, NewPermanent(OpCreate, req.Type, "", fmt.Errorf("unknown resource type"))
	}

	name := displayName(req.Attrs)
	if err := m.takeFault(OpCreate, req.Type, name, ""); err != nil {
		return nil, err
	}

	for _, required := range schema.Required {
		if _, present := req.Attrs[required]; !present {
			return nil, NewPermanent(OpCreate, req.Type, "", fmt.Errorf("missing required attribute %q", required))
		}
	}
	for _, obj := range m.objects {
		if obj.typ == req.Type && obj.name != "" && obj.name == name {
			return nil, NewPermanent(OpCreate, req.Type, "", fmt.Errorf("%s %q already exists", req.Type, name))
		}
	}

	m.nextID[req.Type]++
	identity := fmt.Sprintf("mem-%s-%d", req.Type, m.nextID[req.Type])

	full := req.Attrs.Clone()
	full["id"] = attr.String(identity)
	full["arn"] = attr.String(fmt.Sprintf("arn:mem:%s/%s", req.Type, identity))

	m.objects[objectKey(req.Type, identity)] = &memObject{
		typ:      req.Type,
		identity: identity,
		name:     name,
		attrs:    full,
	}

	result := CreateResult{Identity: identity, Attrs: full.Clone()}
	m.creates[req.Token] = CreateResult{Identity: identity, Attrs: full.Clone()}
	m.record(OpCreate, req.Type, identity, name)
	return &result, nil
}

// Update implements Provider.
func (m *Memory) Update(ctx context.Context, req UpdateRequest) (attr.Map, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.updates[req.Token]; ok {
		return prev.Clone(), nil
	}

	obj, ok := m.objects[objectKey(req.Type, req.Identity)]
	if !ok {
		return nil, NewPermanent(OpUpdate, req.Type, req.Identity, ErrNotFound)
	}
	if err := m.takeFault(OpUpdate, req.Type, obj.name, req.Identity); err != nil {
		return nil, err
	}

	schema, _ := m.registry.Lookup(req.Type)
	for attrName := range req.Diff {
		if schema.ImmutableSet()[attrName] {
			return nil, NewPermanent(OpUpdate, req.Type, req.Identity,
				fmt.Errorf("attribute %q is immutable and requires replacement", attrName))
		}
	}

	// Inputs are replaced wholesale with the desired set; computed outputs
	// are preserved.
	next := req.Attrs.Clone()
	next["id"] = obj.attrs["id"]
	next["arn"] = obj.attrs["arn"]
	obj.attrs = next
	obj.name = displayName(next)

	m.updates[req.Token] = next.Clone()
	m.record(OpUpdate, req.Type, req.Identity, obj.name)
	return next.Clone(), nil
}

// Destroy implements Provider. Destroying an object that is already gone
// succeeds: the desired absence holds either way.
func (m *Memory) Destroy(ctx context.Context, req DestroyRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.destroys[req.Token] {
		return nil
	}

	obj, ok := m.objects[objectKey(req.Type, req.Identity)]
	if !ok {
		m.destroys[req.Token] = true
		return nil
	}
	if err := m.takeFault(OpDestroy, req.Type, obj.name, req.Identity); err != nil {
		return err
	}

	delete(m.objects, objectKey(req.Type, req.Identity))
	m.destroys[req.Token] = true
	m.record(OpDestroy, req.Type, req.Identity, obj.name)
	return nil
}

// takeFault consumes one armed fault matching the call, if any.
// Caller holds m.mu.
func (m *Memory) takeFault(op Op, typeName, name, identity string) error {
	fs, ok := m.faults[faultKey(op, typeName, name)]
	if !ok || (!fs.forever && fs.remaining <= 0) {
		return nil
	}
	if !fs.forever {
		fs.remaining--
	}

	msg := fs.message
	if msg == "" {
		msg = "injected fault"
	}
	if fs.transient {
		return NewTransient(op, typeName, identity, fmt.Errorf("%s", msg))
	}
	return NewPermanent(op, typeName, identity, fmt.Errorf("%s", msg))
}

// record appends a journal entry. Caller holds m.mu.
func (m *Memory) record(op Op, typeName, identity, name string) {
	m.seq++
	m.journal = append(m.journal, Call{
		Seq:      m.seq,
		Op:       op,
		Type:     typeName,
		Identity: identity,
		Name:     name,
	})
}

func objectKey(typeName, identity string) string {
	return typeName + "/" + identity
}

func faultKey(op Op, typeName, name string) string {
	return string(op) + ":" + typeName + "/" + name
}

// displayName extracts the human-facing identifier from an attribute set:
// the "name" input, or "url" for types keyed by URL.
func displayName(attrs attr.Map) string {
	if v, ok := attrs["name"].(attr.String); ok {
		return string(v)
	}
	if v, ok := attrs["url"].(attr.String); ok {
		return string(v)
	}
	return ""
}
