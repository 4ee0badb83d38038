package ingest

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/conjunction-engine/model"
)

// SeedObject is one catalog entry in a YAML seed file.
type SeedObject struct {
	NoradID      int    `yaml:"norad_id"`
	Name         string `yaml:"name"`
	Line1        string `yaml:"line1"`
	Line2        string `yaml:"line2"`
	Country      string `yaml:"country"`
	Priority     string `yaml:"priority"`
	MissionClass string `yaml:"mission_class"`
}

type seedFile struct {
	Objects []SeedObject `yaml:"objects"`
}

// LoadSeed reads a YAML seed file and returns validated catalog entries.
// Seed files bootstrap tests, demos, and air-gapped deployments where
// Celestrak is unreachable.
func LoadSeed(path string) ([]model.SpaceObject, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes seed YAML already held in memory.
func ParseSeed(data []byte) ([]model.SpaceObject, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if len(f.Objects) == 0 {
		return nil, fmt.Errorf("seed file lists no objects")
	}
	objects := make([]model.SpaceObject, 0, len(f.Objects))
	for i, so := range f.Objects {
		obj, err := so.toModel()
		if err != nil {
			return nil, fmt.Errorf("seed object %d: %w", i, err)
		}
		objects = append(objects, obj)
	}
	return objects, nil
}

func (so SeedObject) toModel() (model.SpaceObject, error) {
	if so.NoradID <= 0 {
		return model.SpaceObject{}, fmt.Errorf("norad_id must be positive, got %d", so.NoradID)
	}
	if !strings.HasPrefix(so.Line1, "1 ") || !strings.HasPrefix(so.Line2, "2 ") {
		return model.SpaceObject{}, fmt.Errorf("element lines must start with \"1 \" and \"2 \"")
	}

	priority := model.PrioritySecondary
	switch strings.ToUpper(so.Priority) {
	case "", string(model.PrioritySecondary):
	case string(model.PriorityPrimary):
		priority = model.PriorityPrimary
	default:
		return model.SpaceObject{}, fmt.Errorf("unknown priority %q", so.Priority)
	}

	mission := model.MissionNormal
	switch strings.ToUpper(so.MissionClass) {
	case "", string(model.MissionNormal):
	case string(model.MissionCritical):
		mission = model.MissionCritical
	default:
		return model.SpaceObject{}, fmt.Errorf("unknown mission class %q", so.MissionClass)
	}

	return model.SpaceObject{
		NoradID:  so.NoradID,
		Name:     so.Name,
		Line1:    so.Line1,
		Line2:    so.Line2,
		Country:  strings.ToUpper(strings.TrimSpace(so.Country)),
		Priority: priority,
		Mission:  mission,
	}, nil
}
