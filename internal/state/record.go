package state

import (
	"slices"
	"strings"

	"github.com/groundworklabs/groundwork/internal/attr"
)

// Record is the durable observed state for one resource node. It is
// written after every successful provider mutation and read back as the
// diff baseline for the next pass.
type Record struct {
	// Name is the logical node name from the declaration (primary key).
	Name string

	// Type is the resource type, e.g. "object-store-bucket".
	Type string

	// Identity is the provider-assigned identity key.
	Identity string

	// Inputs are the resolved input attributes that produced the current
	// remote object (references already substituted).
	Inputs attr.Map

	// Outputs are the computed attributes reported by the provider.
	Outputs attr.Map

	// InputsHash is the domain-separated content hash of Inputs. Equal
	// hash means equal inputs, which is what makes the no-op decision
	// cheap.
	InputsHash string

	// Protect guards the remote object against destroy. Recorded at
	// apply time so protection survives removal from the declaration.
	Protect bool

	// Dependencies are the names of the nodes this record depended on at
	// apply time. Destroy planning reverses these edges even after the
	// declaration no longer mentions the node.
	Dependencies []string

	// Seq is the snapshot serial at which this record was last written.
	Seq int64
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Inputs = r.Inputs.Clone()
	out.Outputs = r.Outputs.Clone()
	out.Dependencies = slices.Clone(r.Dependencies)
	return &out
}

// Snapshot is the versioned full-state view: every record plus the
// serial, lineage, and integrity checksum that make optimistic
// concurrency and corruption detection work.
type Snapshot struct {
	// Serial increments on every state mutation. WriteSnapshot rejects a
	// snapshot whose Serial does not match the stored value.
	Serial int64

	// Lineage is a UUID fixed when the backend is first initialized.
	// Two states with different lineages share no ancestry and must
	// never overwrite one another.
	Lineage string

	// Checksum is the domain-separated hash over the canonical
	// serialization of Records.
	Checksum string

	// Records is the full record set, sorted by name.
	Records []Record
}

// Record returns the named record, or nil if the snapshot has none.
func (s *Snapshot) Record(name string) *Record {
	for i := range s.Records {
		if s.Records[i].Name == name {
			return &s.Records[i]
		}
	}
	return nil
}

// sortRecords orders records by name in byte order, matching the
// COLLATE BINARY ordering the backends use.
func sortRecords(records []Record) {
	slices.SortFunc(records, func(a, b Record) int {
		return strings.Compare(a.Name, b.Name)
	})
}
