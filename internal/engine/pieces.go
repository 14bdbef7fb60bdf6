package engine

// Pieces are listed smallest first; ids are indexes into this table.
var pieceShapes = [NumPieces][]string{
	// 1-3 cells
	{"X"},
	{"XX"},
	{"XXX"},
	{"XX", "X."},
	// 4 cells
	{"XXXX"},
	{"XXX", "X.."},
	{"XXX", ".X."},
	{"XX", "XX"},
	{"XX.", ".XX"},
	// 5 cells
	{"XXXXX"},
	{"XXXX", "X..."},
	{"XX..", ".XXX"},
	{"XXX", "X..", "X.."},
	{"XXX", ".X.", ".X."},
	{"X.X", "XXX"},
	{"XXX", "XX."},
	{"X..", "XX.", ".XX"},
	{"XXXX", ".X.."},
	{".XX", "XX.", ".X."},
	{".X.", "XXX", ".X."},
	{"XX.", ".X.", ".XX"},
}

type offset struct{ row, col int }

// shape is a piece footprint relative to the top-left of its bounding box.
type shape []offset

var baseShapes = func() [NumPieces]shape {
	var out [NumPieces]shape
	for id, rows := range pieceShapes {
		for r, row := range rows {
			for c, ch := range row {
				if ch == 'X' {
					out[id] = append(out[id], offset{r, c})
				}
			}
		}
	}
	return out
}()

// PieceSize returns the number of cells a piece covers.
func PieceSize(piece int) int {
	if piece < 0 || piece >= NumPieces {
		return 0
	}
	return len(baseShapes[piece])
}

// orient applies the flip first, then rotates counter-clockwise in quarter turns.
func orient(piece int, flipped bool, rotations int) shape {
	base := baseShapes[piece]
	out := make(shape, len(base))
	copy(out, base)

	if flipped {
		w := width(out)
		for i, o := range out {
			out[i] = offset{o.row, w - 1 - o.col}
		}
	}
	for range rotations % 4 {
		w := width(out)
		for i, o := range out {
			out[i] = offset{w - 1 - o.col, o.row}
		}
	}
	return out
}

func width(s shape) int {
	w := 0
	for _, o := range s {
		w = max(w, o.col+1)
	}
	return w
}
