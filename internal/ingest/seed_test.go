package ingest

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/signalsfoundry/conjunction-engine/model"
)

func TestLoadSeed(t *testing.T) {
	seed := `
objects:
  - norad_id: 25544
    name: ISS (ZARYA)
    line1: "` + issLine1 + `"
    line2: "` + issLine2 + `"
    country: us
    priority: primary
    mission_class: critical
  - norad_id: 43013
    name: SENTINEL-5P
    line1: "` + sentinelLine1 + `"
    line2: "` + sentinelLine2 + `"
`
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	objects, err := LoadSeed(path)
	if err != nil {
		t.Fatalf("LoadSeed: %v", err)
	}
	if len(objects) != 2 {
		t.Fatalf("got %d objects, want 2", len(objects))
	}

	iss := objects[0]
	if iss.NoradID != 25544 || iss.Name != "ISS (ZARYA)" {
		t.Errorf("iss = %+v", iss)
	}
	if iss.Country != "US" {
		t.Errorf("country = %q, want normalized US", iss.Country)
	}
	if iss.Priority != model.PriorityPrimary || iss.Mission != model.MissionCritical {
		t.Errorf("tags = %s/%s, want PRIMARY/CRITICAL", iss.Priority, iss.Mission)
	}

	// Omitted tags fall back to defaults.
	sentinel := objects[1]
	if sentinel.Priority != model.PrioritySecondary || sentinel.Mission != model.MissionNormal {
		t.Errorf("default tags = %s/%s", sentinel.Priority, sentinel.Mission)
	}
}

func TestLoadSeed_MissingFile(t *testing.T) {
	if _, err := LoadSeed(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParseSeed_Validation(t *testing.T) {
	valid := func(mutate func(*SeedObject)) string {
		so := SeedObject{
			NoradID: 25544, Name: "ISS", Line1: issLine1, Line2: issLine2,
		}
		mutate(&so)
		return `
objects:
  - norad_id: ` + strconv.Itoa(so.NoradID) + `
    name: ` + so.Name + `
    line1: "` + so.Line1 + `"
    line2: "` + so.Line2 + `"
    priority: "` + so.Priority + `"
    mission_class: "` + so.MissionClass + `"
`
	}

	cases := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"not yaml", "objects: [", "parse seed file"},
		{"no objects", "objects: []", "no objects"},
		{"zero id", valid(func(so *SeedObject) { so.NoradID = 0 }), "norad_id"},
		{"bad line prefix", valid(func(so *SeedObject) { so.Line1 = "X" + so.Line1[1:] }), "element lines"},
		{"bad priority", valid(func(so *SeedObject) { so.Priority = "URGENT" }), "unknown priority"},
		{"bad mission", valid(func(so *SeedObject) { so.MissionClass = "SCIENCE" }), "unknown mission class"},
	}
	for _, tc := range cases {
		_, err := ParseSeed([]byte(tc.yaml))
		if err == nil {
			t.Errorf("%s: expected error", tc.name)
			continue
		}
		if !strings.Contains(err.Error(), tc.wantErr) {
			t.Errorf("%s: err = %v, want substring %q", tc.name, err, tc.wantErr)
		}
	}
}
