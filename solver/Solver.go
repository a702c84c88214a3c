// Package solver implements functionality to wrap Gorgonia Solvers
// so that they can be JSON serialized into configuraiton files and
// gob serialized, together with their internal state, alongside the
// weights they train.
package solver

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
)

// Type describes different types of solvers that are available
type Type string

// Available solver types
const (
	Adam    Type = "Adam"
	Vanilla Type = "Vanilla"
)

func init() {
	gob.Register(AdamConfig{})
	gob.Register(VanillaConfig{})
}

// Solver wraps Gorgonia Solvers so that they can be JSON marshalled and
// unmarshalled.
type Solver struct {
	G.Solver `json:"-"`
	Type
	Config
}

// Stateful is a Gorgonia Solver whose internal state, such as moment
// estimates, can be encoded and restored
type Stateful interface {
	G.Solver
	gob.GobEncoder
	gob.GobDecoder
}

// newSolver returns a new solver with the given type and configuration.
func newSolver(t Type, c Config) (*Solver, error) {
	if !c.ValidType(t) {
		return nil, fmt.Errorf("newSolver: invalid solver type %v for "+
			"configuration %T", t, c)
	}
	solver := Solver{Type: t, Config: c}
	solver.Solver = solver.Config.Create()

	return &solver, nil
}

// Clone returns a Solver with the same configuration and a fresh
// internal state
func (s *Solver) Clone() (*Solver, error) {
	return newSolver(s.Type, s.Config)
}

// UnmarshalJSON implements the json.Unmarshaller interface
func (s *Solver) UnmarshalJSON(data []byte) error {
	config, typeName, err := unmarshalConfig(
		data,
		"Type",
		"Config",
		map[string]reflect.Type{
			string(Vanilla): reflect.TypeOf(VanillaConfig{}),
			string(Adam):    reflect.TypeOf(AdamConfig{}),
		})
	if err != nil {
		return err
	}

	s.Type = typeName
	s.Config = config
	s.Solver = s.Config.Create()

	return nil
}

// unmarshalConfig uses reflection to unmarshall a Config into its
// concrete type. Both the Config and its Type are returned.
func unmarshalConfig(data []byte, typeJsonField, valueJsonField string,
	customTypes map[string]reflect.Type) (Config, Type, error) {
	m := map[string]interface{}{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, "", err
	}

	typeName, ok := m[typeJsonField].(string)
	if !ok {
		return nil, "", fmt.Errorf("unmarshalConfig: missing solver type")
	}
	ty, found := customTypes[typeName]
	if !found {
		return nil, "", fmt.Errorf("unmarshalConfig: unknown solver type "+
			"%v", typeName)
	}
	value := reflect.New(ty)

	valueBytes, err := json.Marshal(m[valueJsonField])
	if err != nil {
		return nil, "", err
	}

	if err = json.Unmarshal(valueBytes, value.Interface()); err != nil {
		return nil, "", err
	}

	return value.Elem().Interface().(Config), Type(typeName), nil
}

// GobEncode implements the gob.GobEncoder interface. The configuration
// is always encoded, the internal state only if the wrapped Gorgonia
// Solver is Stateful.
func (s *Solver) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	if err := enc.Encode(s.Type); err != nil {
		return nil, errors.Wrap(err, "gobencode: could not encode type")
	}
	if err := enc.Encode(&s.Config); err != nil {
		return nil, errors.Wrap(err, "gobencode: could not encode config")
	}

	stateful, ok := s.Solver.(Stateful)
	if err := enc.Encode(ok); err != nil {
		return nil, errors.Wrap(err, "gobencode: could not encode state flag")
	}
	if ok {
		state, err := stateful.GobEncode()
		if err != nil {
			return nil, errors.Wrap(err, "gobencode")
		}
		if err := enc.Encode(state); err != nil {
			return nil, errors.Wrap(err, "gobencode: could not encode state")
		}
	}

	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface
func (s *Solver) GobDecode(in []byte) error {
	dec := gob.NewDecoder(bytes.NewReader(in))

	var t Type
	if err := dec.Decode(&t); err != nil {
		return errors.Wrap(err, "gobdecode: could not decode type")
	}
	var c Config
	if err := dec.Decode(&c); err != nil {
		return errors.Wrap(err, "gobdecode: could not decode config")
	}
	if !c.ValidType(t) {
		return fmt.Errorf("gobdecode: invalid solver type %v for "+
			"configuration %T", t, c)
	}

	s.Type = t
	s.Config = c
	s.Solver = c.Create()

	var hasState bool
	if err := dec.Decode(&hasState); err != nil {
		return errors.Wrap(err, "gobdecode: could not decode state flag")
	}
	if !hasState {
		return nil
	}

	stateful, ok := s.Solver.(Stateful)
	if !ok {
		return fmt.Errorf("gobdecode: solver %v cannot restore state", t)
	}
	var state []byte
	if err := dec.Decode(&state); err != nil {
		return errors.Wrap(err, "gobdecode: could not decode state")
	}
	return errors.Wrap(stateful.GobDecode(state), "gobdecode")
}

// Config implements a Gorgonia Solver configuration and can be used to
// create Gorgonia Solvers they describe.
type Config interface {
	Create() G.Solver

	// ValidType returns whether a specific Solver type can be created
	// with the Config
	ValidType(Type) bool
}
