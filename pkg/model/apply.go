package model

import (
	"encoding/json"
	"fmt"
)

// moduleNames maps GetObjectModel's round-robin module index to the
// object-model key it refreshes, following RepRapFirmware's own
// module numbering.
var moduleNames = []string{
	"state", "move", "heat", "tools", "inputs", "job", "network",
	"sensors", "spindles", "boards", "fans", "global", "volumes",
}

func moduleKey(module uint8) string {
	if int(module) < len(moduleNames) {
		return moduleNames[module]
	}
	return fmt.Sprintf("module%d", module)
}

// ApplyObjectModel decodes one firmware-reported module fragment and
// replaces it wholesale in the tree, satisfying scheduler.ObjectModelSink.
func (s *Store) ApplyObjectModel(module uint8, data []byte) error {
	var value interface{}
	if err := json.Unmarshal(data, &value); err != nil {
		return fmt.Errorf("model: decode module %d: %w", module, err)
	}
	g := s.AccessReadWrite()
	defer g.Release()
	g.SetProperty(Path{Key(moduleKey(module))}, value)
	return nil
}

// ApplyHeightMap stores the most recently reported mesh-compensation
// height map, satisfying scheduler.ObjectModelSink. The firmware sends
// this as a raw file body, not JSON, so it is kept as bytes rather
// than decoded.
func (s *Store) ApplyHeightMap(data []byte) error {
	g := s.AccessReadWrite()
	defer g.Release()
	g.SetProperty(Path{Key("move"), Key("compensation"), Key("heightMap")}, data)
	return nil
}
