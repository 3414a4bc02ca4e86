// Package objectpath implements the hierarchical PCB-unit / ref-des
// addressing scheme used throughout the planner: an ordered sequence of
// "key=value" chunks separated by "::".
package objectpath

import (
	"strconv"
	"strings"

	"github.com/makerpnp/planner/internal/perr"
)

// Key is one of the recognized object-path chunk keys.
type Key string

const (
	KeyPanel  Key = "panel"
	KeySingle Key = "single"
	KeyUnit   Key = "unit"
	KeyRefDes Key = "ref_des"
)

var recognizedKeys = map[Key]bool{
	KeyPanel:  true,
	KeySingle: true,
	KeyUnit:   true,
	KeyRefDes: true,
}

var indexKeys = map[Key]bool{
	KeyPanel:  true,
	KeySingle: true,
	KeyUnit:   true,
}

// Chunk is one "key=value" component of an object path.
type Chunk struct {
	Key   Key
	Value string
}

// Path is an ordered sequence of chunks. The zero value is the empty path.
type Path struct {
	Chunks []Chunk
}

// Parse splits value on "::" and validates each "key=value" chunk against
// the recognized-key table. Index keys (panel, single, unit) require the
// value to parse as an unsigned integer; ref_des accepts any non-empty
// string. Chunks are never reordered.
func Parse(value string) (Path, error) {
	if value == "" {
		return Path{}, nil
	}

	rawChunks := strings.Split(value, "::")
	chunks := make([]Chunk, 0, len(rawChunks))

	for _, raw := range rawChunks {
		parts := strings.SplitN(raw, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return Path{}, perr.Parse(value, invalidChunkError{raw})
		}

		key := Key(parts[0])
		if !recognizedKeys[key] {
			return Path{}, perr.Parse(value, unknownKeyError{string(key)})
		}

		if indexKeys[key] {
			if _, err := strconv.ParseUint(parts[1], 10, 64); err != nil {
				return Path{}, perr.Parse(value, invalidIndexError{string(key), parts[1]})
			}
		}

		chunks = append(chunks, Chunk{Key: key, Value: parts[1]})
	}

	return Path{Chunks: chunks}, nil
}

// MustParse parses value, panicking on error. Intended for tests and
// compile-time-known literals.
func MustParse(value string) Path {
	p, err := Parse(value)
	if err != nil {
		panic(err)
	}
	return p
}

// String formats the path back into "key=value::key=value" form. Parsing
// the result always yields an equal Path (round-trip invariant).
func (p Path) String() string {
	parts := make([]string, 0, len(p.Chunks))
	for _, c := range p.Chunks {
		parts = append(parts, string(c.Key)+"="+c.Value)
	}
	return strings.Join(parts, "::")
}

// Equal reports whether two paths have identical chunks in the same order.
func (p Path) Equal(other Path) bool {
	if len(p.Chunks) != len(other.Chunks) {
		return false
	}
	for i, c := range p.Chunks {
		if c != other.Chunks[i] {
			return false
		}
	}
	return true
}

// WithRefDes returns a copy of p with its ref_des chunk set to refDes,
// replacing an existing ref_des chunk in place (preserving its position)
// or appending one if none exists.
func (p Path) WithRefDes(refDes string) Path {
	chunks := make([]Chunk, len(p.Chunks))
	copy(chunks, p.Chunks)

	for i, c := range chunks {
		if c.Key == KeyRefDes {
			chunks[i].Value = refDes
			return Path{Chunks: chunks}
		}
	}

	return Path{Chunks: append(chunks, Chunk{Key: KeyRefDes, Value: refDes})}
}

// PCBUnit returns the path truncated to just its pcb-level keys
// (panel/single and unit), dropping ref_des and anything else.
func (p Path) PCBUnit() Path {
	var chunks []Chunk
	for _, c := range p.Chunks {
		if c.Key == KeyPanel || c.Key == KeySingle || c.Key == KeyUnit {
			chunks = append(chunks, c)
		}
	}
	return Path{Chunks: chunks}
}

// PCBKind identifies whether a path addresses a Panel or Single PCB.
type PCBKind string

const (
	PCBKindPanel  PCBKind = "panel"
	PCBKindSingle PCBKind = "single"
)

// PCBKindAndIndex returns the PCB kind and 1-based index of the first
// "panel" or "single" chunk in the path (first occurrence is authoritative
// if both somehow appear; spec leaves this case unspecified).
func (p Path) PCBKindAndIndex() (PCBKind, uint64, bool) {
	for _, c := range p.Chunks {
		if c.Key == KeyPanel || c.Key == KeySingle {
			idx, err := strconv.ParseUint(c.Value, 10, 64)
			if err != nil {
				return "", 0, false
			}
			if c.Key == KeyPanel {
				return PCBKindPanel, idx, true
			}
			return PCBKindSingle, idx, true
		}
	}
	return "", 0, false
}

// RefDes returns the value of the ref_des chunk, if present.
func (p Path) RefDes() (string, bool) {
	for _, c := range p.Chunks {
		if c.Key == KeyRefDes {
			return c.Value, true
		}
	}
	return "", false
}

type invalidChunkError struct{ chunk string }

func (e invalidChunkError) Error() string { return "invalid chunk: " + e.chunk }

type invalidIndexError struct{ key, value string }

func (e invalidIndexError) Error() string {
	return "invalid index for key " + e.key + ": " + e.value
}

type unknownKeyError struct{ key string }

func (e unknownKeyError) Error() string { return "unknown key: " + e.key }
