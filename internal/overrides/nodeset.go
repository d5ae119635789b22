package overrides

import (
	"github.com/emirpasic/gods/sets/treeset"
	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// NodeSet is a sorted set of node names. Sorting keeps serialized tables
// stable across runs.
type NodeSet struct {
	set *treeset.Set
}

func NewNodeSet(names ...string) *NodeSet {
	s := &NodeSet{}
	s.Add(names...)
	return s
}

func (s *NodeSet) init() {
	if s.set == nil {
		s.set = treeset.NewWithStringComparator()
	}
}

func (s *NodeSet) Add(names ...string) {
	s.init()
	for _, name := range names {
		s.set.Add(name)
	}
}

// Union adds every member of other.
func (s *NodeSet) Union(other *NodeSet) {
	s.Add(other.Values()...)
}

func (s *NodeSet) Contains(name string) bool {
	if s == nil || s.set == nil {
		return false
	}
	return s.set.Contains(name)
}

func (s *NodeSet) Len() int {
	if s == nil || s.set == nil {
		return 0
	}
	return s.set.Size()
}

// Values returns the members in sorted order.
func (s *NodeSet) Values() []string {
	if s == nil || s.set == nil {
		return nil
	}
	out := make([]string, 0, s.set.Size())
	for _, v := range s.set.Values() {
		out = append(out, v.(string))
	}
	return out
}

// Intersects reports whether any member of other is in s.
func (s *NodeSet) Intersects(other *NodeSet) bool {
	for _, name := range other.Values() {
		if s.Contains(name) {
			return true
		}
	}
	return false
}

// Difference returns the members of s missing from other.
func (s *NodeSet) Difference(other *NodeSet) *NodeSet {
	out := NewNodeSet()
	for _, name := range s.Values() {
		if !other.Contains(name) {
			out.Add(name)
		}
	}
	return out
}

func (s *NodeSet) Equal(other *NodeSet) bool {
	if s.Len() != other.Len() {
		return false
	}
	for _, name := range s.Values() {
		if !other.Contains(name) {
			return false
		}
	}
	return true
}

func (s *NodeSet) Clone() *NodeSet {
	if s == nil {
		return nil
	}
	return NewNodeSet(s.Values()...)
}

func (s *NodeSet) MarshalJSON() ([]byte, error) {
	values := s.Values()
	if values == nil {
		values = []string{}
	}
	return json.Marshal(values)
}

func (s *NodeSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	s.set = nil
	s.init()
	s.Add(names...)
	return nil
}

func (s *NodeSet) MarshalYAML() (any, error) {
	values := s.Values()
	if values == nil {
		values = []string{}
	}
	return values, nil
}

func (s *NodeSet) UnmarshalYAML(value *yaml.Node) error {
	var names []string
	if err := value.Decode(&names); err != nil {
		return err
	}
	s.set = nil
	s.init()
	s.Add(names...)
	return nil
}
