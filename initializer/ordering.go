package initializer

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Wildcard stands for every initializer not named by an ordering.
const Wildcard = "*"

var ErrDuplicateWildcard = errors.New("duplicate wildcard in initializer ordering")

// Ordering is the caller-supplied order over initializer class names. It may
// contain a single Wildcard.
type Ordering struct {
	names    []string
	index    map[string]int
	wildcard int
}

// ParseOrdering reads a comma separated list of class names. An empty value
// yields a nil ordering.
func ParseOrdering(value string) (*Ordering, error) {
	o := &Ordering{index: make(map[string]int), wildcard: -1}
	for _, tok := range strings.Split(value, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		i := len(o.names)
		o.names = append(o.names, tok)
		if tok == Wildcard {
			if o.wildcard >= 0 {
				return nil, fmt.Errorf("%w: %q", ErrDuplicateWildcard, value)
			}
			o.wildcard = i
			continue
		}
		if _, seen := o.index[tok]; !seen {
			o.index[tok] = i
		}
	}
	if len(o.names) == 0 {
		return nil, nil
	}
	return o, nil
}

func (o *Ordering) HasWildcard() bool  { return o.wildcard >= 0 }
func (o *Ordering) WildcardIndex() int { return o.wildcard }

// IsDefaultOrder reports whether the ordering is exactly the wildcard.
func (o *Ordering) IsDefaultOrder() bool {
	return len(o.names) == 1 && o.HasWildcard()
}

// IndexOf returns the position of name, or -1.
func (o *Ordering) IndexOf(name string) int {
	if i, ok := o.index[name]; ok {
		return i
	}
	return -1
}

// Names returns the ordering as given.
func (o *Ordering) Names() []string {
	return append([]string(nil), o.names...)
}

func (o *Ordering) String() string {
	return "[" + strings.Join(o.names, ", ") + "]"
}

// rank places unnamed initializers at the wildcard position.
func (o *Ordering) rank(name string) int {
	i := o.IndexOf(name)
	if i < 0 && o.HasWildcard() {
		i = o.wildcard
	}
	return i
}

// Compare orders two initializer names by their rank.
func (o *Ordering) Compare(a, b string) int {
	ra, rb := o.rank(a), o.rank(b)
	switch {
	case ra < rb:
		return -1
	case ra > rb:
		return 1
	default:
		return 0
	}
}

// Sort orders providers by rank, keeping discovery order among equal ranks.
func (o *Ordering) Sort(providers []*Provider) {
	sort.SliceStable(providers, func(i, j int) bool {
		return o.Compare(providers[i].Name(), providers[j].Name()) < 0
	})
}
