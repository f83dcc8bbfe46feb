package schema

// Flat is one addressable leaf field. Group sub-fields are expanded in
// place and tagged with their parent group id; the group itself never
// appears as a leaf.
type Flat struct {
	Field      Field
	IsSubField bool
	GroupID    string
}

// Flatten walks a field forest in declaration order and returns the
// flat leaf list. A group with no sub-fields contributes nothing.
func Flatten(fields []Field) []Flat {
	out := make([]Flat, 0, len(fields))
	for _, f := range fields {
		if f.Type == TypeGroup {
			for _, sub := range f.Fields {
				out = append(out, Flat{Field: sub, IsSubField: true, GroupID: f.ID})
			}
			continue
		}
		out = append(out, Flat{Field: f})
	}
	return out
}
