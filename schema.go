package vectorio

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Names of the extra fields written for meshes.
const (
	LabelsField = "labels"
	PartIDField = "building_part_id"
)

// Mode selects how Reconcile treats the target layer.
type Mode uint8

const (
	// ModeCreate creates one external field per internal field.
	ModeCreate Mode = iota
	// ModeAppend binds internal fields to the layer's existing fields.
	ModeAppend
)

func (m Mode) String() string {
	if m == ModeAppend {
		return "append"
	}
	return "create"
}

// ReconcileOptions controls field naming during reconciliation.
type ReconcileOptions struct {
	// Rename maps internal field names to external ones. Mapping a field to
	// the empty string drops it.
	Rename map[string]string
	// OnlyMapped skips every field that has no entry in Rename.
	OnlyMapped bool
	// Mesh adds the labels and part identifier fields.
	Mesh bool
}

// Binding ties an internal field to an external field index. Kind is the
// kind the external field stores; values are coerced to it on write.
type Binding struct {
	Field    int
	External int
	Kind     Kind
}

// FieldMap is the result of reconciliation. It is computed once per run and
// read for every feature.
type FieldMap struct {
	Bindings []Binding
	Labels   int // external index of the labels field, -1 if unbound
	PartID   int // external index of the part identifier field, -1 if unbound
	Width    int // number of fields in the external catalog
}

// Lookup returns the binding of internal field i.
func (m *FieldMap) Lookup(i int) (Binding, bool) {
	for _, b := range m.Bindings {
		if b.Field == i {
			return b, true
		}
	}
	return Binding{}, false
}

// externalName applies the rename policy. ok is false when the field is
// skipped.
func (o *ReconcileOptions) externalName(name string) (string, bool) {
	if o == nil {
		return name, true
	}
	renamed, mapped := o.Rename[name]
	switch {
	case mapped && renamed == "":
		return "", false
	case mapped:
		return renamed, true
	case o.OnlyMapped:
		return "", false
	}
	return name, true
}

// Reconcile aligns schema with the field catalog of layer.
func Reconcile(layer Layer, schema Schema, mode Mode, opts *ReconcileOptions) (*FieldMap, error) {
	return reconcile(layer, schema, mode, opts, logrus.StandardLogger())
}

func reconcile(layer Layer, schema Schema, mode Mode, opts *ReconcileOptions, log logrus.FieldLogger) (*FieldMap, error) {
	if opts == nil {
		opts = &ReconcileOptions{}
	}
	if mode == ModeAppend {
		return bindFields(layer, schema, opts, log), nil
	}
	return createFields(layer, schema, opts, log)
}

// externalDefn is the field created for an internal kind.
func externalDefn(name string, k Kind, subTypes bool) FieldDefn {
	d := FieldDefn{Name: name}
	switch k {
	case KindBool:
		d.Type = FieldInteger
		if subTypes {
			d.SubType = SubTypeBoolean
		}
	case KindInt:
		d.Type = FieldInteger64
	case KindFloat:
		d.Type = FieldReal
	case KindString:
		d.Type = FieldString
	case KindDate:
		d.Type = FieldDate
	case KindTime:
		d.Type = FieldTime
	case KindDateTime:
		d.Type = FieldDateTime
	case KindIntList:
		d.Type = FieldIntegerList
	}
	return d
}

func createFields(layer Layer, schema Schema, opts *ReconcileOptions, log logrus.FieldLogger) (*FieldMap, error) {
	subTypes := true
	if s, ok := layer.(SubTypeSupporter); ok {
		subTypes = s.SupportsSubType(SubTypeBoolean)
	}

	fm := &FieldMap{Labels: -1, PartID: -1}
	next := len(layer.Fields())
	create := func(d FieldDefn) (int, error) {
		if err := layer.CreateField(d); err != nil {
			return 0, fmt.Errorf("%w: %s (%v): %v", ErrFieldCreateFailed, d.Name, d.Type, err)
		}
		log.WithFields(logrus.Fields{
			"field": d.Name,
			"type":  d.Type.String(),
		}).Debug("created field")
		next++
		return next - 1, nil
	}

	for i, f := range schema {
		name, ok := opts.externalName(f.Name)
		if !ok {
			continue
		}
		d := externalDefn(name, f.Kind, subTypes)
		idx, err := create(d)
		if err != nil {
			return nil, err
		}
		fm.Bindings = append(fm.Bindings, Binding{Field: i, External: idx, Kind: FieldKind(d)})
	}

	if opts.Mesh {
		var err error
		if fm.Labels, err = create(FieldDefn{Name: LabelsField, Type: FieldIntegerList}); err != nil {
			return nil, err
		}
		if fm.PartID, err = create(FieldDefn{Name: PartIDField, Type: FieldString}); err != nil {
			return nil, err
		}
	}
	fm.Width = next
	return fm, nil
}

// compatible reports whether values of kind k can be stored in ext.
func compatible(k Kind, ext FieldDefn) bool {
	ek := FieldKind(ext)
	switch {
	case ek == k:
		return true
	case k == KindBool && ek == KindInt:
		return true
	case k == KindInt && ek == KindFloat:
		return true
	case k == KindDate && ek == KindDateTime:
		return true
	}
	return false
}

func bindFields(layer Layer, schema Schema, opts *ReconcileOptions, log logrus.FieldLogger) *FieldMap {
	defs := layer.Fields()
	fm := &FieldMap{Labels: -1, PartID: -1, Width: len(defs)}

	for i, f := range schema {
		name, ok := opts.externalName(f.Name)
		if !ok {
			continue
		}
		bound := false
		for j, d := range defs {
			if d.Name == name && compatible(f.Kind, d) {
				fm.Bindings = append(fm.Bindings, Binding{Field: i, External: j, Kind: FieldKind(d)})
				bound = true
				break
			}
		}
		if !bound {
			log.WithField("field", name).Debug("no matching field in layer, skipping")
		}
	}

	if opts.Mesh {
		for j, d := range defs {
			switch {
			case d.Name == LabelsField && d.Type == FieldIntegerList && fm.Labels < 0:
				fm.Labels = j
			case d.Name == PartIDField && d.Type == FieldString && fm.PartID < 0:
				fm.PartID = j
			}
		}
	}
	return fm
}
