package board

// Cell is a single grid square. The zero value is empty; any other value is
// the color id of the shape that filled it.
type Cell uint8

// Empty marks an unoccupied cell.
const Empty Cell = 0

// Filled reports whether the cell holds a locked block.
func (c Cell) Filled() bool {
	return c != Empty
}

// Point addresses a grid cell by row (top to bottom) and column.
type Point struct {
	Row int `json:"row"`
	Col int `json:"col"`
}
