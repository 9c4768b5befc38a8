package uf2

import (
	_ "embed"
	"encoding/json"
	"strconv"
	"sync"
)

// families.json follows the layout of the master list maintained in the
// microsoft/uf2 repository: short name to hex family ID.
//
//go:embed families.json
var familiesJSON []byte

var familyNames = sync.OnceValue(func() map[uint32]string {
	var raw map[string]string
	if err := json.Unmarshal(familiesJSON, &raw); err != nil {
		panic("uf2: embedded families.json is invalid: " + err.Error())
	}
	names := make(map[uint32]string, len(raw))
	for name, hex := range raw {
		id, err := strconv.ParseUint(hex, 0, 32)
		if err != nil {
			panic("uf2: embedded families.json has invalid id " + hex)
		}
		names[uint32(id)] = name
	}
	return names
})

// FamilyName returns the short name for a UF2 family ID, or "unknown".
func FamilyName(id uint32) string {
	if name, ok := familyNames()[id]; ok {
		return name
	}
	return "unknown"
}

// KnownFamilies returns a copy of the embedded family table.
func KnownFamilies() map[uint32]string {
	names := familyNames()
	out := make(map[uint32]string, len(names))
	for id, name := range names {
		out[id] = name
	}
	return out
}
