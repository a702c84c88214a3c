package agent

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/samuelfneumann/predictivenet/environment"
)

// Config represents a configuration for creating an agent
type Config interface {
	// CreateAgent creates the agent that the config describes
	CreateAgent(env environment.Environment, seed uint64) (Learner, error)

	// Type returns the type of agent the Config creates
	Type() Type

	// Validate returns an error describing whether or not the
	// configuration is valid or not.
	Validate() error
}

// Type represents a specific type of an agent Config. Config's with
// this type can create Learners of the corresponding type.
type Type string

const (
	PredictiveAutoencoder Type = "PredictiveAutoencoder"
)

// Registered types with the package. Once a Type has been registered
// with this map, a TypedConfig with that type can be deserialized.
//
// No Type's are registered with this package upon initialization.
// Each agent package registers its own Config to avoid circular
// imports.
var registeredTypes = make(map[Type]reflect.Type)

// Register registers an agent's Type with a concrete Config type so
// that a TypedConfig of type agentType is deserialized into config's
// concrete type
func Register(agentType Type, config Config) {
	registeredTypes[agentType] = reflect.TypeOf(config)
}

// TypedConfig stores a Config along with its Type so that the Config
// can be JSON deserialized without knowing its concrete type
// beforehand
type TypedConfig struct {
	Type
	Config
}

// NewTypedConfig types the argument Config
func NewTypedConfig(c Config) TypedConfig {
	return TypedConfig{Type: c.Type(), Config: c}
}

// UnmarshalJSON implements the json.Unmarshaler interface
func (t *TypedConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type   Type
		Config json.RawMessage
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	ty, ok := registeredTypes[raw.Type]
	if !ok {
		return fmt.Errorf("unmarshalJSON: unregistered agent type %q",
			raw.Type)
	}

	// Unmarshal into a pointer so that a Config can fill in defaults
	// before the JSON fields are applied
	value := reflect.New(ty)
	if d, ok := value.Interface().(interface{ SetDefaults() }); ok {
		d.SetDefaults()
	}
	if len(raw.Config) > 0 {
		if err := json.Unmarshal(raw.Config, value.Interface()); err != nil {
			return fmt.Errorf("unmarshalJSON: %v", err)
		}
	}

	t.Type = raw.Type
	t.Config = value.Elem().Interface().(Config)
	return nil
}
