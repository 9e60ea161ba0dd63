package types

import "encoding/json"

// RelationKind distinguishes the two storage shapes a relation can take:
// a to-one column (plain pointer, childOf back-reference, isChild
// composite) or a to-many array (parentOf).
type RelationKind string

const (
	ToOne  RelationKind = "toOne"
	ToMany RelationKind = "toMany"
)

// Relation describes a property whose type is another feather rather than a
// scalar. ChildOf/ParentOf mirror the feather record's relation object;
// IsChild marks a private, single-valued child composite owned by exactly
// one parent.
type Relation struct {
	Feather    string   `json:"relation"`
	ChildOf    string   `json:"childOf,omitempty"`
	ParentOf   string   `json:"parentOf,omitempty"`
	IsChild    bool     `json:"isChild,omitempty"`
	Properties []string `json:"properties,omitempty"`
}

// EffectiveKind reports whether this relation stores as a to-one column on
// its own table (childOf back-reference, isChild composite, or a plain
// to-one pointer) or as a to-many array materialized by a second-pass
// sub-select (parentOf).
func (r *Relation) EffectiveKind() RelationKind {
	if r.ParentOf != "" {
		return ToMany
	}
	return ToOne
}

// Autonumber describes a sequence-backed default for a property.
type Autonumber struct {
	Prefix   string `json:"prefix,omitempty"`
	Suffix   string `json:"suffix,omitempty"`
	Length   int    `json:"length,omitempty"`
	Sequence string `json:"sequence,omitempty"`
}

// Property is the sum type spec.md's design notes call for: a property's
// "type" field is either a scalar keyword string or a relation object,
// never a single map with an overloaded meaning. UnmarshalJSON/MarshalJSON
// implement that polymorphism; every other caller just reads ScalarType
// xor Relation.
type Property struct {
	Name          string      `json:"-"`
	Relation      *Relation   `json:"-"`
	Format        string      `json:"format,omitempty"`
	ScalarType    string      `json:"-"`
	Description   string      `json:"description,omitempty"`
	Default       interface{} `json:"default,omitempty"`
	IsRequired    bool        `json:"isRequired,omitempty"`
	IsUnique      bool        `json:"isUnique,omitempty"`
	IsNaturalKey  bool        `json:"isNaturalKey,omitempty"`
	IsReadOnly    bool        `json:"isReadOnly,omitempty"`
	Autonumber    *Autonumber `json:"autonumber,omitempty"`
	Precision     int         `json:"precision,omitempty"`
	Scale         int         `json:"scale,omitempty"`
	Alias         string      `json:"alias,omitempty"`
	InheritedFrom string      `json:"inheritedFrom,omitempty"`
}

// IsRelation reports whether this property's type is another feather.
func (p *Property) IsRelation() bool {
	return p.Relation != nil
}

type propertyWire struct {
	Type          json.RawMessage `json:"type,omitempty"`
	Format        string          `json:"format,omitempty"`
	Description   string          `json:"description,omitempty"`
	Default       interface{}     `json:"default,omitempty"`
	IsRequired    bool            `json:"isRequired,omitempty"`
	IsUnique      bool            `json:"isUnique,omitempty"`
	IsNaturalKey  bool            `json:"isNaturalKey,omitempty"`
	IsReadOnly    bool            `json:"isReadOnly,omitempty"`
	Autonumber    *Autonumber     `json:"autonumber,omitempty"`
	Precision     int             `json:"precision,omitempty"`
	Scale         int             `json:"scale,omitempty"`
	Alias         string          `json:"alias,omitempty"`
	InheritedFrom string          `json:"inheritedFrom,omitempty"`
}

func (p *Property) UnmarshalJSON(data []byte) error {
	var wire propertyWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*p = Property{
		Format:        wire.Format,
		Description:   wire.Description,
		Default:       wire.Default,
		IsRequired:    wire.IsRequired,
		IsUnique:      wire.IsUnique,
		IsNaturalKey:  wire.IsNaturalKey,
		IsReadOnly:    wire.IsReadOnly,
		Autonumber:    wire.Autonumber,
		Precision:     wire.Precision,
		Scale:         wire.Scale,
		Alias:         wire.Alias,
		InheritedFrom: wire.InheritedFrom,
	}

	if len(wire.Type) == 0 {
		return nil
	}

	var scalar string
	if err := json.Unmarshal(wire.Type, &scalar); err == nil {
		p.ScalarType = scalar
		return nil
	}

	var rel Relation
	if err := json.Unmarshal(wire.Type, &rel); err != nil {
		return err
	}
	p.Relation = &rel
	return nil
}

func (p *Property) MarshalJSON() ([]byte, error) {
	wire := propertyWire{
		Format:        p.Format,
		Description:   p.Description,
		Default:       p.Default,
		IsRequired:    p.IsRequired,
		IsUnique:      p.IsUnique,
		IsNaturalKey:  p.IsNaturalKey,
		IsReadOnly:    p.IsReadOnly,
		Autonumber:    p.Autonumber,
		Precision:     p.Precision,
		Scale:         p.Scale,
		Alias:         p.Alias,
		InheritedFrom: p.InheritedFrom,
	}

	var typeJSON []byte
	var err error
	if p.IsRelation() {
		typeJSON, err = json.Marshal(p.Relation)
	} else if p.ScalarType != "" {
		typeJSON, err = json.Marshal(p.ScalarType)
	}
	if err != nil {
		return nil, err
	}
	if typeJSON != nil {
		wire.Type = typeJSON
	}
	return json.Marshal(wire)
}

// FeatherSpec is the schema-as-data record administrators save and the
// catalog merges with its ancestors.
type FeatherSpec struct {
	Name             string               `json:"name"`
	Plural           string               `json:"plural,omitempty"`
	Inherits         string               `json:"inherits,omitempty"`
	IsChild          bool                 `json:"isChild,omitempty"`
	IsSystem         bool                 `json:"isSystem,omitempty"`
	IsReadOnly       bool                 `json:"isReadOnly,omitempty"`
	IsFetchOnStartup bool                 `json:"isFetchOnStartup,omitempty"`
	Properties       map[string]*Property `json:"properties,omitempty"`
}

// EffectiveInherits returns Inherits, defaulting to "Object" per spec.md §3.
func (f *FeatherSpec) EffectiveInherits() string {
	if f.Inherits == "" {
		return "Object"
	}
	return f.Inherits
}
