package bsp

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

// ErrMalformedSubmodel is returned when a "model" key starts with '*' but the
// rest is not a model index.
var ErrMalformedSubmodel = errors.New("malformed submodel reference")

// Entity is a set of key/value pairs from the entity lump.
type Entity struct {
	properties map[string]string
	keys       []string // in file order
}

// NewEntity returns an empty entity.
func NewEntity() *Entity {
	return &Entity{properties: make(map[string]string)}
}

// Set stores a key. A repeated key keeps its original position.
func (e *Entity) Set(key, value string) {
	if _, ok := e.properties[key]; !ok {
		e.keys = append(e.keys, key)
	}
	e.properties[key] = value
}

// Property returns the value for name and whether it was present.
func (e *Entity) Property(name string) (string, bool) {
	v, ok := e.properties[name]
	return v, ok
}

// ValueForKey returns the value for key, or "" if absent.
func (e *Entity) ValueForKey(key string) string {
	return e.properties[key]
}

// Classname returns the "classname" key.
func (e *Entity) Classname() string {
	return e.properties["classname"]
}

// Keys returns the keys in file order.
func (e *Entity) Keys() []string {
	return append([]string(nil), e.keys...)
}

// Vector parses a "x y z" key. Missing or unparsable components are zero.
func (e *Entity) Vector(key string) mgl32.Vec3 {
	var v mgl32.Vec3
	for i, f := range strings.Fields(e.properties[key]) {
		if i >= 3 {
			break
		}
		if x, err := strconv.ParseFloat(f, 32); err == nil {
			v[i] = float32(x)
		}
	}
	return v
}

// Submodel returns the model index selected by the "model" key.
// ok is false when the key is absent or does not reference a submodel
// (it names an md3 or similar). A '*' prefix followed by anything other
// than decimal digits returns ErrMalformedSubmodel.
func (e *Entity) Submodel() (index int, ok bool, err error) {
	v := e.properties["model"]
	if !strings.HasPrefix(v, "*") {
		return 0, false, nil
	}
	digits := v[1:]
	if digits == "" || strings.TrimLeft(digits, "0123456789") != "" {
		return 0, true, fmt.Errorf("%w: %q", ErrMalformedSubmodel, v)
	}
	n, perr := strconv.Atoi(digits)
	if perr != nil {
		return 0, true, fmt.Errorf("%w: %q", ErrMalformedSubmodel, v)
	}
	return n, true, nil
}

// ParseEntities parses entity lump text of the form
//
//	{
//	"classname" "worldspawn"
//	"message" "The Longest Yard"
//	}
//	{
//	"classname" "func_door"
//	"model" "*1"
//	}
//
// Text outside braces and unterminated trailing blocks are ignored.
func ParseEntities(text string) []*Entity {
	var (
		entities []*Entity
		current  *Entity
		key      string
		haveKey  bool
	)

	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '{':
			if current == nil {
				current = NewEntity()
				haveKey = false
			}
		case '}':
			if current != nil {
				entities = append(entities, current)
				current = nil
			}
		case '"':
			end := strings.IndexByte(text[i+1:], '"')
			if end < 0 {
				return entities
			}
			tok := text[i+1 : i+1+end]
			i += end + 1
			if current == nil {
				continue
			}
			if !haveKey {
				key, haveKey = tok, true
			} else {
				current.Set(key, tok)
				haveKey = false
			}
		}
	}
	return entities
}

// String formats the entity back to lump syntax.
func (e *Entity) String() string {
	var sb strings.Builder
	sb.WriteString("{\n")
	for _, k := range e.keys {
		fmt.Fprintf(&sb, "\"%s\" \"%s\"\n", k, e.properties[k])
	}
	sb.WriteString("}\n")
	return sb.String()
}
