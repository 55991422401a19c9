// Package mapper holds the read-only schema metadata the adapter consumes:
// one Mapper per record kind, its id attribute, and its declared relations.
// Mappers are owned by the host application; the adapter never mutates them.
package mapper

import (
	"fmt"

	"github.com/stratakv/strata/pkg/errors"
)

// RelationType enumerates the relation shapes a mapper may declare.
type RelationType string

const (
	BelongsTo RelationType = "belongsTo"
	HasOne    RelationType = "hasOne"
	HasMany   RelationType = "hasMany"
)

// Relation declares one link to another mapper. Exactly one of ForeignKey,
// LocalKeys and ForeignKeys must be set:
//
//   - ForeignKey: for belongsTo, the field on this record holding the
//     related record's id; for hasOne/hasMany, the field on the related
//     records pointing back at this record's id.
//   - LocalKeys: the field on this record holding a list of related ids.
//   - ForeignKeys: a list-of-ids field on the related side. Declarable,
//     but the orchestrator refuses to resolve it in any shape.
type Relation struct {
	Type        RelationType `yaml:"type"`
	Relation    string       `yaml:"relation"`
	LocalField  string       `yaml:"localField"`
	ForeignKey  string       `yaml:"foreignKey,omitempty"`
	LocalKeys   string       `yaml:"localKeys,omitempty"`
	ForeignKeys string       `yaml:"foreignKeys,omitempty"`
}

func (r *Relation) validate() error {
	switch r.Type {
	case BelongsTo, HasOne, HasMany:
	default:
		return fmt.Errorf("%w: relation type %q", errors.ErrInvalidMapper, r.Type)
	}
	if r.Relation == "" {
		return fmt.Errorf("%w: relation missing related mapper name", errors.ErrInvalidMapper)
	}
	if r.LocalField == "" {
		return fmt.Errorf("%w: relation %q missing localField", errors.ErrInvalidMapper, r.Relation)
	}
	set := 0
	for _, f := range []string{r.ForeignKey, r.LocalKeys, r.ForeignKeys} {
		if f != "" {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: relation %q must set exactly one of foreignKey, localKeys, foreignKeys", errors.ErrInvalidMapper, r.Relation)
	}
	return nil
}

// Mapper describes one record kind.
type Mapper struct {
	// Name identifies the mapper and doubles as the storage kind when
	// Kind is empty.
	Name string `yaml:"name"`
	// Kind overrides the storage kind.
	Kind string `yaml:"kind,omitempty"`
	// IDAttribute is the record field carrying the primary key.
	// Empty means "id".
	IDAttribute string `yaml:"idAttribute,omitempty"`
	// RelationFields lists fields stripped from records before any write.
	// Empty means the localFields of all declared relations.
	RelationFields []string `yaml:"relationFields,omitempty"`
	// EncryptedFields lists fields envelope-encrypted at rest when the
	// adapter is configured with a KMS key.
	EncryptedFields []string   `yaml:"encryptedFields,omitempty"`
	Relations       []Relation `yaml:"relations,omitempty"`
}

// StorageKind returns the kind records of this mapper are stored under.
func (m *Mapper) StorageKind() string {
	if m.Kind != "" {
		return m.Kind
	}
	return m.Name
}

// IDField returns the record field holding the primary key.
func (m *Mapper) IDField() string {
	if m.IDAttribute != "" {
		return m.IDAttribute
	}
	return "id"
}

// RelationFieldNames returns the fields to strip before a write: the
// explicit RelationFields when given, otherwise every relation's
// LocalField.
func (m *Mapper) RelationFieldNames() []string {
	if len(m.RelationFields) > 0 {
		return m.RelationFields
	}
	fields := make([]string, 0, len(m.Relations))
	for _, rel := range m.Relations {
		fields = append(fields, rel.LocalField)
	}
	return fields
}

// Validate checks the mapper definition.
func (m *Mapper) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("%w: missing name", errors.ErrInvalidMapper)
	}
	for i := range m.Relations {
		if err := m.Relations[i].validate(); err != nil {
			return err
		}
	}
	return nil
}

// ForEachRelation visits the mapper's relations selected by with: a
// relation is selected when with names its related mapper or its
// localField. Names matching no relation are ignored. Iteration stops at
// the first visitor error.
func ForEachRelation(m *Mapper, with []string, visit func(rel *Relation) error) error {
	if len(with) == 0 {
		return nil
	}
	wanted := make(map[string]bool, len(with))
	for _, w := range with {
		wanted[w] = true
	}
	for i := range m.Relations {
		rel := &m.Relations[i]
		if !wanted[rel.Relation] && !wanted[rel.LocalField] {
			continue
		}
		if err := visit(rel); err != nil {
			return err
		}
	}
	return nil
}
