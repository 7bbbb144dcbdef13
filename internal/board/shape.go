package board

import "fmt"

// Shape identifies one of the seven tetromino kinds.
type Shape uint8

const (
	ShapeNone Shape = iota
	ShapeI
	ShapeO
	ShapeT
	ShapeS
	ShapeZ
	ShapeJ
	ShapeL
)

// Shapes lists every playable shape in a stable order.
var Shapes = [...]Shape{ShapeI, ShapeO, ShapeT, ShapeS, ShapeZ, ShapeJ, ShapeL}

var shapeNames = [...]string{"", "I", "O", "T", "S", "Z", "J", "L"}

var shapeMatrices = map[Shape][]string{
	ShapeI: {
		"....",
		"####",
		"....",
		"....",
	},
	ShapeO: {
		"##",
		"##",
	},
	ShapeT: {
		".#.",
		"###",
		"...",
	},
	ShapeS: {
		".##",
		"##.",
		"...",
	},
	ShapeZ: {
		"##.",
		".##",
		"...",
	},
	ShapeJ: {
		"#..",
		"###",
		"...",
	},
	ShapeL: {
		"..#",
		"###",
		"...",
	},
}

// rotationOffsets[shape][rotation] holds the occupied cells relative to the
// piece origin, precomputed by turning the base matrix clockwise.
var rotationOffsets [len(shapeNames)][4][]Point

var shapeSizes [len(shapeNames)]int

func init() {
	for _, shape := range Shapes {
		matrix := shapeMatrices[shape]
		size := len(matrix)
		shapeSizes[shape] = size
		base := make([]Point, 0, 4)
		for row, line := range matrix {
			for col, ch := range line {
				if ch == '#' {
					base = append(base, Point{Row: row, Col: col})
				}
			}
		}
		current := base
		for rotation := 0; rotation < 4; rotation++ {
			rotationOffsets[shape][rotation] = current
			next := make([]Point, len(current))
			for i, p := range current {
				next[i] = Point{Row: p.Col, Col: size - 1 - p.Row}
			}
			current = next
		}
	}
}

// Valid reports whether s is one of the playable shapes.
func (s Shape) Valid() bool {
	return s >= ShapeI && s <= ShapeL
}

// Color is the cell value written when a piece of this shape locks.
func (s Shape) Color() Cell {
	return Cell(s)
}

// Size is the edge length of the square matrix the shape rotates inside.
func (s Shape) Size() int {
	if !s.Valid() {
		return 0
	}
	return shapeSizes[s]
}

// Offsets returns the occupied cells of the shape at the given rotation,
// relative to the piece origin.
func (s Shape) Offsets(rotation int) []Point {
	if !s.Valid() {
		return nil
	}
	src := rotationOffsets[s][normalizeRotation(rotation)]
	out := make([]Point, len(src))
	copy(out, src)
	return out
}

func (s Shape) String() string {
	if int(s) < len(shapeNames) && s != ShapeNone {
		return shapeNames[s]
	}
	return fmt.Sprintf("Shape(%d)", uint8(s))
}

// ParseShape resolves a shape from its single letter name.
func ParseShape(name string) (Shape, bool) {
	for _, shape := range Shapes {
		if shapeNames[shape] == name {
			return shape, true
		}
	}
	return ShapeNone, false
}

func normalizeRotation(rotation int) int {
	return ((rotation % 4) + 4) % 4
}
