package mesh

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Load reads the OBJ file at path.
func Load(path string) (*Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := ReadOBJ(f, path)
	if err != nil {
		return nil, err
	}
	m.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return m, nil
}

// ReadOBJ parses Wavefront OBJ geometry from r. Only vertex positions and
// faces are used; polygons are fan-triangulated and every object or group
// in the file is merged into one mesh. The name is used in error messages.
func ReadOBJ(r io.Reader, name string) (*Mesh, error) {
	m := &Mesh{Name: name}
	lineNum := 0

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNum++
		tokens := strings.Fields(scanner.Text())
		if len(tokens) == 0 || strings.HasPrefix(tokens[0], "#") {
			continue
		}

		switch tokens[0] {
		case "v":
			v, err := parseVec3(tokens)
			if err != nil {
				return nil, objError(name, lineNum, err)
			}
			m.Vertices = append(m.Vertices, v[0], v[1], v[2])
		case "f":
			if err := m.parseFace(tokens); err != nil {
				return nil, objError(name, lineNum, err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return m, nil
}

func (m *Mesh) parseFace(tokens []string) error {
	if len(tokens) < 4 {
		return fmt.Errorf(`unsupported syntax for "f"; expected at least 3 arguments; got %d`, len(tokens)-1)
	}

	corners := make([]uint32, 0, len(tokens)-1)
	for arg, tok := range tokens[1:] {
		vTok := strings.SplitN(tok, "/", 2)[0]
		if vTok == "" {
			return fmt.Errorf("face argument %d does not include a vertex index", arg)
		}
		idx, err := selectVertexIndex(vTok, m.VertexCount())
		if err != nil {
			return fmt.Errorf("could not parse vertex index for face argument %d: %v", arg, err)
		}
		corners = append(corners, idx)
	}

	for i := 1; i+1 < len(corners); i++ {
		m.Indices = append(m.Indices, corners[0], corners[i], corners[i+1])
	}
	return nil
}

// OBJ indices are 1-based; negative values count back from the last vertex.
func selectVertexIndex(tok string, count int) (uint32, error) {
	index, err := strconv.ParseInt(tok, 10, 32)
	if err != nil {
		return 0, err
	}

	var offset int
	if index < 0 {
		offset = count + int(index)
	} else {
		offset = int(index) - 1
	}
	if offset < 0 || offset >= count {
		return 0, fmt.Errorf("index %d out of bounds", index)
	}
	return uint32(offset), nil
}

func parseVec3(tokens []string) ([3]float32, error) {
	var v [3]float32
	if len(tokens) < 4 {
		return v, fmt.Errorf(`unsupported syntax for "%s"; expected 3 arguments; got %d`, tokens[0], len(tokens)-1)
	}
	for i := 0; i < 3; i++ {
		f, err := strconv.ParseFloat(tokens[i+1], 32)
		if err != nil {
			return v, err
		}
		v[i] = float32(f)
	}
	return v, nil
}

func objError(name string, line int, err error) error {
	return fmt.Errorf("[%s: %d] error: %v", name, line, err)
}
