package pointcloud

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"dsmfusion/internal/models"
)

// ErrPLY is returned for PLY files this package cannot read
var ErrPLY = errors.New("unsupported ply")

// Format is the PLY body encoding
type Format int

const (
	Binary Format = iota
	ASCII
)

// ParseFormat maps "binary" and "ascii" to a Format
func ParseFormat(name string) (Format, error) {
	switch name {
	case "", "binary":
		return Binary, nil
	case "ascii":
		return ASCII, nil
	}
	return Binary, fmt.Errorf("unknown ply format %q", name)
}

// PLYOptions controls WritePLY
type PLYOptions struct {
	Format Format

	// Comments become "comment" header lines
	Comments []string

	// Color adds red/green/blue uchar properties
	Color bool
}

// ProjectionComment renders the header comment recording the projection
func ProjectionComment(zone int, hemisphere string) string {
	return fmt.Sprintf("projection: UTM %d%s", zone, hemisphere)
}

// WritePLY serializes points with double precision coordinates
func WritePLY(w io.Writer, points []models.PointRecord, opts PLYOptions) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "ply")
	if opts.Format == ASCII {
		fmt.Fprintln(bw, "format ascii 1.0")
	} else {
		fmt.Fprintln(bw, "format binary_little_endian 1.0")
	}
	for _, c := range opts.Comments {
		fmt.Fprintf(bw, "comment %s\n", strings.ReplaceAll(c, "\n", " "))
	}
	fmt.Fprintf(bw, "element vertex %d\n", len(points))
	fmt.Fprintln(bw, "property double x")
	fmt.Fprintln(bw, "property double y")
	fmt.Fprintln(bw, "property double z")
	if opts.Color {
		fmt.Fprintln(bw, "property uchar red")
		fmt.Fprintln(bw, "property uchar green")
		fmt.Fprintln(bw, "property uchar blue")
	}
	fmt.Fprintln(bw, "end_header")

	var rec [27]byte
	for _, p := range points {
		if opts.Format == ASCII {
			bw.WriteString(strconv.FormatFloat(p.Easting, 'f', -1, 64))
			bw.WriteByte(' ')
			bw.WriteString(strconv.FormatFloat(p.Northing, 'f', -1, 64))
			bw.WriteByte(' ')
			bw.WriteString(strconv.FormatFloat(p.Elevation, 'f', -1, 64))
			if opts.Color {
				fmt.Fprintf(bw, " %d %d %d", p.R, p.G, p.B)
			}
			bw.WriteByte('\n')
			continue
		}
		binary.LittleEndian.PutUint64(rec[0:], math.Float64bits(p.Easting))
		binary.LittleEndian.PutUint64(rec[8:], math.Float64bits(p.Northing))
		binary.LittleEndian.PutUint64(rec[16:], math.Float64bits(p.Elevation))
		size := 24
		if opts.Color {
			rec[24], rec[25], rec[26] = p.R, p.G, p.B
			size = 27
		}
		if _, err := bw.Write(rec[:size]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// SavePLY writes points to path
func SavePLY(path string, points []models.PointRecord, opts PLYOptions) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WritePLY(f, points, opts); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

type plyProperty struct {
	name string
	kind string
}

func (p plyProperty) size() int {
	switch p.kind {
	case "char", "uchar", "int8", "uint8":
		return 1
	case "short", "ushort", "int16", "uint16":
		return 2
	case "int", "uint", "float", "int32", "uint32", "float32":
		return 4
	case "double", "float64":
		return 8
	}
	return 0
}

// ReadPLY parses a vertex-only PLY file with x, y, z and optional
// red/green/blue properties, as written by WritePLY. It returns the
// points and the header comments.
func ReadPLY(r io.Reader) ([]models.PointRecord, []string, error) {
	br := bufio.NewReader(r)

	var (
		comments []string
		props    []plyProperty
		count    int
		ascii    bool
	)
	magic, err := br.ReadString('\n')
	if err != nil || strings.TrimSpace(magic) != "ply" {
		return nil, nil, fmt.Errorf("%w: missing magic", ErrPLY)
	}
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, nil, fmt.Errorf("%w: truncated header", ErrPLY)
		}
		line = strings.TrimRight(line, "\r\n")
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "format":
			if len(fields) < 2 {
				return nil, nil, fmt.Errorf("%w: bad format line", ErrPLY)
			}
			switch fields[1] {
			case "ascii":
				ascii = true
			case "binary_little_endian":
			default:
				return nil, nil, fmt.Errorf("%w: format %s", ErrPLY, fields[1])
			}
		case "comment":
			comments = append(comments, strings.TrimPrefix(strings.TrimPrefix(line, "comment"), " "))
		case "element":
			if len(fields) != 3 || fields[1] != "vertex" {
				return nil, nil, fmt.Errorf("%w: element %s", ErrPLY, strings.Join(fields[1:], " "))
			}
			count, err = strconv.Atoi(fields[2])
			if err != nil || count < 0 {
				return nil, nil, fmt.Errorf("%w: vertex count %q", ErrPLY, fields[2])
			}
		case "property":
			if len(fields) != 3 {
				return nil, nil, fmt.Errorf("%w: property %s", ErrPLY, strings.Join(fields[1:], " "))
			}
			p := plyProperty{kind: fields[1], name: fields[2]}
			if p.size() == 0 {
				return nil, nil, fmt.Errorf("%w: property type %s", ErrPLY, p.kind)
			}
			props = append(props, p)
		case "end_header":
			return readPLYBody(br, props, count, ascii, comments)
		}
	}
}

func readPLYBody(br *bufio.Reader, props []plyProperty, count int, ascii bool, comments []string) ([]models.PointRecord, []string, error) {
	points := make([]models.PointRecord, count)
	values := make([]float64, len(props))

	stride := 0
	for _, p := range props {
		stride += p.size()
	}
	buf := make([]byte, stride)

	var sc *bufio.Scanner
	if ascii {
		sc = bufio.NewScanner(br)
		sc.Split(bufio.ScanWords)
	}

	for i := 0; i < count; i++ {
		if ascii {
			for k := range props {
				if !sc.Scan() {
					return nil, nil, fmt.Errorf("%w: vertex %d truncated", ErrPLY, i)
				}
				v, err := strconv.ParseFloat(sc.Text(), 64)
				if err != nil {
					return nil, nil, fmt.Errorf("%w: vertex %d: %v", ErrPLY, i, err)
				}
				values[k] = v
			}
		} else {
			if _, err := io.ReadFull(br, buf); err != nil {
				return nil, nil, fmt.Errorf("%w: vertex %d truncated", ErrPLY, i)
			}
			off := 0
			for k, p := range props {
				values[k] = decodeBinary(buf[off:off+p.size()], p.kind)
				off += p.size()
			}
		}

		for k, p := range props {
			switch p.name {
			case "x":
				points[i].Easting = values[k]
			case "y":
				points[i].Northing = values[k]
			case "z":
				points[i].Elevation = values[k]
			case "red":
				points[i].R = uint8(values[k])
			case "green":
				points[i].G = uint8(values[k])
			case "blue":
				points[i].B = uint8(values[k])
			}
		}
	}
	return points, comments, nil
}

func decodeBinary(b []byte, kind string) float64 {
	le := binary.LittleEndian
	switch kind {
	case "char", "int8":
		return float64(int8(b[0]))
	case "uchar", "uint8":
		return float64(b[0])
	case "short", "int16":
		return float64(int16(le.Uint16(b)))
	case "ushort", "uint16":
		return float64(le.Uint16(b))
	case "int", "int32":
		return float64(int32(le.Uint32(b)))
	case "uint", "uint32":
		return float64(le.Uint32(b))
	case "float", "float32":
		return float64(math.Float32frombits(le.Uint32(b)))
	}
	return math.Float64frombits(le.Uint64(b))
}
