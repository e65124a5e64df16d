package store

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// VehicleSeed is the layout of a vehicle seed file:
//
//	vehicles:
//	  - brand: Volkswagen
//	    model: Amarok
//	    year: 2024
//	    ...
type VehicleSeed struct {
	Vehicles []Vehicle `yaml:"vehicles"`
}

// LoadVehicleSeed reads and parses a YAML seed file. It does not validate
// the vehicles; callers run them through the same checks as admin input.
func LoadVehicleSeed(filePath string) ([]Vehicle, error) {
	contentBytes, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", filePath, err)
	}
	var seed VehicleSeed
	if err := yaml.Unmarshal(contentBytes, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", filePath, err)
	}
	return seed.Vehicles, nil
}
