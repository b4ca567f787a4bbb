package model

import "fmt"

// ClassStyle identifies the labelling of a trained model.
type ClassStyle string

const (
	// ClassStyleDroppings is the four-class poultry droppings labelling.
	ClassStyleDroppings ClassStyle = "droppings"
	// ClassStyleCustom labels a class list given in the configuration.
	ClassStyleCustom ClassStyle = "custom"
)

// OutputClass represents one detection label.
type OutputClass struct {
	// The integer index returned by the model.
	Index int
	// The human-readable label.
	Name string
}

// OutputClassSet ties a style to its full, ordered list of labels.
type OutputClassSet struct {
	// Class set identifier.
	Style ClassStyle
	// Classes that are supported and mappable.
	Classes []OutputClass
	// nameToIdx for fast lookup by name
	nameToIdx map[string]int
}

// NewOutputClassSet builds a class set from ordered names. Duplicate or empty
// names are rejected.
func NewOutputClassSet(style ClassStyle, names ...string) (*OutputClassSet, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("class set %q has no classes", style)
	}

	set := &OutputClassSet{Style: style, Classes: make([]OutputClass, len(names))}
	for i, n := range names {
		set.Classes[i] = OutputClass{Index: i, Name: n}
	}
	if err := set.BuildNameIndexMap(); err != nil {
		return nil, err
	}

	return set, nil
}

// BuildNameIndexMap builds or rebuilds the name->index map.
func (s *OutputClassSet) BuildNameIndexMap() error {
	s.nameToIdx = make(map[string]int, len(s.Classes))
	for _, c := range s.Classes {
		if c.Name == "" {
			return fmt.Errorf("class %d in set %q has no name", c.Index, s.Style)
		}
		if _, dup := s.nameToIdx[c.Name]; dup {
			return fmt.Errorf("duplicate class %q in set %q", c.Name, s.Style)
		}
		s.nameToIdx[c.Name] = c.Index
	}
	return nil
}

// Len returns the number of classes.
func (s *OutputClassSet) Len() int {
	return len(s.Classes)
}

// Names returns the ordered class names.
func (s *OutputClassSet) Names() []string {
	names := make([]string, len(s.Classes))
	for i, c := range s.Classes {
		names[i] = c.Name
	}
	return names
}

// GetName returns the class name for an index.
func (s *OutputClassSet) GetName(idx int) (string, error) {
	if idx < 0 || idx >= len(s.Classes) {
		return "", fmt.Errorf("index %d out of range for style %q", idx, s.Style)
	}
	return s.Classes[idx].Name, nil
}

// GetIndex returns the class index for a name.
func (s *OutputClassSet) GetIndex(name string) (int, error) {
	idx, ok := s.nameToIdx[name]
	if !ok {
		return -1, fmt.Errorf("name %q not found in style %q", name, s.Style)
	}
	return idx, nil
}

// DroppingsClassNames is the label order of the droppings detector.
var DroppingsClassNames = []string{"Coccidiosis-like", "Healthy", "NCD-like", "Salmonella-like"}

// DroppingsClasses is the class set of the droppings detector.
var DroppingsClasses = func() *OutputClassSet {
	set, err := NewOutputClassSet(ClassStyleDroppings, DroppingsClassNames...)
	if err != nil {
		panic(err)
	}
	return set
}()

// LookupSet returns the registered class set for a style.
func LookupSet(style ClassStyle) (*OutputClassSet, error) {
	switch style {
	case ClassStyleDroppings:
		return DroppingsClasses, nil
	default:
		return nil, fmt.Errorf("style %q not registered", style)
	}
}
