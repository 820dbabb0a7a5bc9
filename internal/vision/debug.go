package vision

// DebugRecord collects named intermediate images produced during one decode
// tick. It is purely observational; a nil record disables collection and
// costs nothing on the decode path.
type DebugRecord struct {
	Images []DebugImage
}

// DebugImage is one labeled intermediate.
type DebugImage struct {
	Name  string
	Plane *Gray
}

// Add stores a copy-by-reference of an intermediate plane. Safe on a nil
// receiver.
func (r *DebugRecord) Add(name string, g *Gray) {
	if r == nil || g == nil {
		return
	}
	r.Images = append(r.Images, DebugImage{Name: name, Plane: g})
}
