package confloader

import (
	"errors"

	"github.com/knadh/koanf/maps"
)

var errNoBytes = errors.New("confloader: map provider has no byte form")

// mapProvider feeds an in-memory map to koanf. Dotted keys are expanded so
// that {"log.level": "debug"} unmarshals into nested structs.
type mapProvider map[string]any

func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, errNoBytes
}

func (m mapProvider) Read() (map[string]any, error) {
	return maps.Unflatten(m, "."), nil
}
