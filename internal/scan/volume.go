package scan

// Vec3i is a block position.
type Vec3i struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
	Z int `json:"z" yaml:"z"`
}

// Volume is an axis-aligned box given by two opposite corners, in any order.
// Only X and Z of the corners are used; height comes from the scan floor and
// ceiling.
type Volume struct {
	World string `json:"world" yaml:"world"`
	A     Vec3i  `json:"a" yaml:"a"`
	B     Vec3i  `json:"b" yaml:"b"`
}

// Tile is a square group claim cell addressed by tile coordinates.
type Tile struct {
	World string `json:"world" yaml:"world"`
	X     int    `json:"x" yaml:"x"`
	Z     int    `json:"z" yaml:"z"`
}

// Bounds are half-open: Min is inclusive, Max is exclusive.
type Bounds struct {
	MinX, MaxX int
	MinY, MaxY int
	MinZ, MaxZ int
}

func (b Bounds) Empty() bool {
	return b.MinX >= b.MaxX || b.MinY >= b.MaxY || b.MinZ >= b.MaxZ
}

// Cells is the number of cells inside b.
func (b Bounds) Cells() int64 {
	if b.Empty() {
		return 0
	}
	return int64(b.MaxX-b.MinX) * int64(b.MaxY-b.MinY) * int64(b.MaxZ-b.MinZ)
}

// Bounds resolves the corners: min..max+1 on x and z, floor..ceiling on y.
func (v Volume) Bounds(floor, ceiling int) Bounds {
	return Bounds{
		MinX: min(v.A.X, v.B.X), MaxX: max(v.A.X, v.B.X) + 1,
		MinY: floor, MaxY: ceiling,
		MinZ: min(v.A.Z, v.B.Z), MaxZ: max(v.A.Z, v.B.Z) + 1,
	}
}

// Volume converts a tile into the block volume it covers.
func (t Tile) Volume(size int) Volume {
	if size <= 0 {
		size = 16
	}
	x0, z0 := t.X*size, t.Z*size
	return Volume{
		World: t.World,
		A:     Vec3i{X: x0, Z: z0},
		B:     Vec3i{X: x0 + size - 1, Z: z0 + size - 1},
	}
}

// ClaimInfo summarises the land held by an entity.
type ClaimInfo struct {
	Claims int   `json:"claims"`
	Cells  int64 `json:"cells"`
}

// Measure counts claims and cells without visiting them.
func Measure(volumes []Volume, floor, ceiling int) ClaimInfo {
	info := ClaimInfo{Claims: len(volumes)}
	for _, v := range volumes {
		info.Cells += v.Bounds(floor, ceiling).Cells()
	}
	return info
}
