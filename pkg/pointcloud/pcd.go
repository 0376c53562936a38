package pointcloud

import (
	"fmt"
	"io"
	"os"

	"github.com/paulmach/orb"
	"github.com/seqsense/pcgol/mat"
	"github.com/seqsense/pcgol/pc"

	"dsmfusion/internal/models"
)

// NewPCD builds a PCD cloud with x, y, z and packed rgb fields.
// PCD coordinates are float32, which cannot hold projected coordinates at
// centimetre precision, so points are stored relative to origin.
func NewPCD(points []models.PointRecord, origin orb.Point) (*pc.PointCloud, error) {
	pp := &pc.PointCloud{
		PointCloudHeader: pc.PointCloudHeader{
			Version:   0.7,
			Fields:    []string{"x", "y", "z", "rgb"},
			Size:      []int{4, 4, 4, 4},
			Type:      []string{"F", "F", "F", "U"},
			Count:     []int{1, 1, 1, 1},
			Viewpoint: []float32{0, 0, 0, 1, 0, 0, 0},
			Width:     len(points),
			Height:    1,
		},
		Points: len(points),
	}
	pp.Data = make([]byte, len(points)*pp.Stride())
	if len(points) == 0 {
		return pp, nil
	}

	it, err := pp.Vec3Iterator()
	if err != nil {
		return nil, err
	}
	itRGB, err := pp.Uint32Iterator("rgb")
	if err != nil {
		return nil, err
	}
	for _, p := range points {
		it.SetVec3(mat.Vec3{
			float32(p.Easting - origin.X()),
			float32(p.Northing - origin.Y()),
			float32(p.Elevation),
		})
		itRGB.SetUint32(PackRGB(p.R, p.G, p.B))
		it.Incr()
		itRGB.Incr()
	}
	return pp, nil
}

// PackRGB packs a colour the way PCL stores its rgb field
func PackRGB(r, g, b uint8) uint32 {
	return uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}

// WritePCD serializes points as PCD relative to origin
func WritePCD(w io.Writer, points []models.PointRecord, origin orb.Point) error {
	pp, err := NewPCD(points, origin)
	if err != nil {
		return fmt.Errorf("building pcd: %w", err)
	}
	return pc.Marshal(pp, w)
}

// SavePCD writes points to path as PCD relative to origin
func SavePCD(path string, points []models.PointRecord, origin orb.Point) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WritePCD(f, points, origin); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
