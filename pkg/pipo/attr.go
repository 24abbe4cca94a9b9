package pipo

import (
	"fmt"
	"strconv"
	"strings"
)

// AttrKind is the value type of an attribute
type AttrKind int

const (
	AttrBool AttrKind = iota
	AttrInt
	AttrFloat
	AttrEnum
	AttrString
)

// String returns the kind name
func (k AttrKind) String() string {
	switch k {
	case AttrBool:
		return "bool"
	case AttrInt:
		return "int"
	case AttrFloat:
		return "float"
	case AttrEnum:
		return "enum"
	case AttrString:
		return "string"
	default:
		return "unknown"
	}
}

// Attr is a named plugin attribute holding one or more values of one kind.
// Values are kept in their textual form and parsed on access.
type Attr struct {
	Name        string
	Description string
	Kind        AttrKind

	// ChangesStream marks attributes whose modification changes the output
	// stream attributes of the plugin.
	ChangesStream bool

	// Items lists the allowed values of an enum attribute
	Items []string

	values []string
}

// NewAttr creates an attribute with its default values
func NewAttr(name, description string, kind AttrKind, defaults ...string) *Attr {
	return &Attr{
		Name:        name,
		Description: description,
		Kind:        kind,
		values:      append([]string(nil), defaults...),
	}
}

// NewEnumAttr creates an enum attribute; the first item is the default
func NewEnumAttr(name, description string, items ...string) *Attr {
	a := NewAttr(name, description, AttrEnum)
	a.Items = append([]string(nil), items...)
	if len(items) > 0 {
		a.values = []string{items[0]}
	}
	return a
}

// Set validates and stores new values
func (a *Attr) Set(values ...string) error {
	if len(values) == 0 {
		return fmt.Errorf("attribute %s: no value given", a.Name)
	}
	for _, v := range values {
		if err := a.check(v); err != nil {
			return fmt.Errorf("attribute %s: %w", a.Name, err)
		}
	}
	a.values = append(a.values[:0], values...)
	return nil
}

func (a *Attr) check(v string) error {
	switch a.Kind {
	case AttrBool:
		if _, err := strconv.ParseBool(v); err != nil {
			return fmt.Errorf("invalid bool %q", v)
		}
	case AttrInt:
		if _, err := strconv.Atoi(v); err != nil {
			return fmt.Errorf("invalid int %q", v)
		}
	case AttrFloat:
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return fmt.Errorf("invalid float %q", v)
		}
	case AttrEnum:
		for _, item := range a.Items {
			if item == v {
				return nil
			}
		}
		return fmt.Errorf("invalid enum value %q, must be one of: %s", v, strings.Join(a.Items, ", "))
	}
	return nil
}

// Values returns a copy of the textual values
func (a *Attr) Values() []string {
	return append([]string(nil), a.values...)
}

// Len returns the number of values
func (a *Attr) Len() int {
	return len(a.values)
}

// String returns the values joined by spaces
func (a *Attr) String() string {
	return strings.Join(a.values, " ")
}

// Bool returns the i-th value as a bool
func (a *Attr) Bool(i int) bool {
	if i >= len(a.values) {
		return false
	}
	b, _ := strconv.ParseBool(a.values[i])
	return b
}

// Int returns the i-th value as an int
func (a *Attr) Int(i int) int {
	if i >= len(a.values) {
		return 0
	}
	n, _ := strconv.Atoi(a.values[i])
	return n
}

// Float returns the i-th value as a float64
func (a *Attr) Float(i int) float64 {
	if i >= len(a.values) {
		return 0
	}
	f, _ := strconv.ParseFloat(a.values[i], 64)
	return f
}

// Str returns the i-th value as is
func (a *Attr) Str(i int) string {
	if i >= len(a.values) {
		return ""
	}
	return a.values[i]
}

// AttrSet keeps attributes in declaration order with lookup by name
type AttrSet struct {
	attrs map[string]*Attr
	order []string
}

// NewAttrSet creates an empty attribute set
func NewAttrSet() *AttrSet {
	return &AttrSet{
		attrs: make(map[string]*Attr),
		order: make([]string, 0),
	}
}

// Add registers attributes; a name already present is replaced in place
func (s *AttrSet) Add(attrs ...*Attr) {
	for _, a := range attrs {
		s.AddAs(a.Name, a)
	}
}

// AddAs registers an attribute under a different name, sharing its storage
func (s *AttrSet) AddAs(name string, a *Attr) {
	if _, exists := s.attrs[name]; !exists {
		s.order = append(s.order, name)
	}
	s.attrs[name] = a
}

// Get retrieves an attribute by name
func (s *AttrSet) Get(name string) (*Attr, bool) {
	a, ok := s.attrs[name]
	return a, ok
}

// Set assigns values to the named attribute
func (s *AttrSet) Set(name string, values ...string) error {
	a, ok := s.attrs[name]
	if !ok {
		return fmt.Errorf("unknown attribute %s", name)
	}
	return a.Set(values...)
}

// Names returns attribute names in order
func (s *AttrSet) Names() []string {
	return append([]string(nil), s.order...)
}

// All returns attributes in order
func (s *AttrSet) All() []*Attr {
	out := make([]*Attr, len(s.order))
	for i, name := range s.order {
		out[i] = s.attrs[name]
	}
	return out
}

// Len returns the number of attributes
func (s *AttrSet) Len() int {
	return len(s.order)
}
