// Package coordinate implements the fixed-radix, fixed-depth address space
// that blocks are stored in. A coordinate is a tuple of six bounded integers,
// ordered lexicographically, and advancing a coordinate carries overflow from
// the least-significant position upward like an odometer.
package coordinate

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// Depth is the number of positions in a coordinate.
	Depth = 6
	// Radix is the number of values each position ranges over (0..Radix-1).
	Radix = 100
)

// Coordinate is a single address in the space. Position 0 is the most
// significant; the display form is six zero-padded fields, space separated,
// e.g. "00 00 00 00 00 03".
type Coordinate [Depth]int

// Origin returns the all-zero coordinate, the first address in the space.
func Origin() Coordinate {
	return Coordinate{}
}

// Parse parses the display form back into a Coordinate.
func Parse(s string) (Coordinate, error) {
	parts := strings.Fields(s)
	if len(parts) != Depth {
		return Coordinate{}, fmt.Errorf("coordinate: expected %d fields, got %d in %q", Depth, len(parts), s)
	}
	var c Coordinate
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Coordinate{}, fmt.Errorf("coordinate: invalid field %q in %q", p, s)
		}
		if n < 0 || n >= Radix {
			return Coordinate{}, fmt.Errorf("coordinate: field %d out of range [0,%d) in %q", n, Radix, s)
		}
		c[i] = n
	}
	return c, nil
}

// String renders the coordinate in its display form.
func (c Coordinate) String() string {
	parts := make([]string, Depth)
	for i, v := range c {
		parts[i] = fmt.Sprintf("%02d", v)
	}
	return strings.Join(parts, " ")
}

// PathSegments returns one zero-padded segment per position, most significant
// first. The storage writer joins these into the on-disk directory path.
func (c Coordinate) PathSegments() []string {
	segs := make([]string, Depth)
	for i, v := range c {
		segs[i] = fmt.Sprintf("%02d", v)
	}
	return segs
}

// Next returns the coordinate one step after c. The second return value is
// true when the increment overflowed past the most-significant position,
// i.e. c was the last address in the space.
func (c Coordinate) Next() (Coordinate, bool) {
	for i := Depth - 1; i >= 0; i-- {
		c[i]++
		if c[i] < Radix {
			return c, false
		}
		c[i] = 0
	}
	return c, true
}

// Compare orders coordinates lexicographically over the tuple, most
// significant position first. It returns -1, 0, or 1.
func (c Coordinate) Compare(other Coordinate) int {
	for i := 0; i < Depth; i++ {
		switch {
		case c[i] < other[i]:
			return -1
		case c[i] > other[i]:
			return 1
		}
	}
	return 0
}

// Less reports whether c sorts before other.
func (c Coordinate) Less(other Coordinate) bool {
	return c.Compare(other) < 0
}
