package promotion

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rank is one step of the ladder. A node holds the rank once both
// thresholds are met.
type Rank struct {
	Name            string `yaml:"name" json:"name"`
	DirectThreshold int64  `yaml:"direct" json:"direct_threshold"`
	TeamThreshold   int64  `yaml:"team" json:"team_threshold"`
}

// Table is an ordered rank ladder; index is the rank ordinal.
type Table []Rank

// DefaultTable is used when no rank table file is configured.
func DefaultTable() Table {
	return Table{
		{Name: "Member", DirectThreshold: 0, TeamThreshold: 0},
		{Name: "Volunteer", DirectThreshold: 10, TeamThreshold: 10},
		{Name: "Team Leader", DirectThreshold: 20, TeamThreshold: 100},
		{Name: "Coordinator", DirectThreshold: 40, TeamThreshold: 500},
		{Name: "Manager", DirectThreshold: 60, TeamThreshold: 2500},
		{Name: "Director", DirectThreshold: 100, TeamThreshold: 10000},
		{Name: "Ambassador", DirectThreshold: 200, TeamThreshold: 50000},
	}
}

type tableFile struct {
	Ranks Table `yaml:"ranks"`
}

// ParseTable decodes a YAML document of the form
//
//	ranks:
//	  - name: Member
//	    direct: 0
//	    team: 0
func ParseTable(data []byte) (Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode rank table: %w", err)
	}
	if err := f.Ranks.Validate(); err != nil {
		return nil, err
	}
	return f.Ranks, nil
}

// LoadTable reads a rank table from path, or returns DefaultTable when path
// is empty.
func LoadTable(path string) (Table, error) {
	if path == "" {
		return DefaultTable(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rank table: %w", err)
	}
	return ParseTable(data)
}

// Validate checks that R0 is free and thresholds never decrease.
func (t Table) Validate() error {
	if len(t) == 0 {
		return errors.New("rank table is empty")
	}
	if t[0].DirectThreshold != 0 || t[0].TeamThreshold != 0 {
		return fmt.Errorf("rank %q must have zero thresholds", t[0].Name)
	}
	for i := 1; i < len(t); i++ {
		if t[i].Name == "" {
			return fmt.Errorf("rank %d has no name", i)
		}
		if t[i].DirectThreshold < t[i-1].DirectThreshold || t[i].TeamThreshold < t[i-1].TeamThreshold {
			return fmt.Errorf("rank %q thresholds decrease from %q", t[i].Name, t[i-1].Name)
		}
	}
	return nil
}

// Name returns the rank name for ordinal, or "" when out of range.
func (t Table) Name(ordinal int) string {
	if ordinal < 0 || ordinal >= len(t) {
		return ""
	}
	return t[ordinal].Name
}
