package syncer

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultSummaryFormat renders a card summary from a part when the profile
// does not set its own format.
const DefaultSummaryFormat = "[{number}] {name}"

var (
	// ErrNoProject is returned when the profile omits the project key.
	ErrNoProject = errors.New("syncer: profile has no project key")

	// ErrNoLabel is returned when the profile omits the sync label. The
	// label is how synced cards are found again on the next run, so it
	// cannot be empty.
	ErrNoLabel = errors.New("syncer: profile has no sync label")
)

// Profile describes how parts map onto cards in one project. It is loaded
// from a YAML file checked in next to the deployment.
type Profile struct {
	// Project is the card project key (e.g. "PARTS").
	Project string `yaml:"project"`

	// Label marks every synced card; the next run matches on it.
	Label string `yaml:"label"`

	// SummaryFormat builds the card summary from the part, with {number},
	// {name} and {revision} placeholders.
	SummaryFormat string `yaml:"summary_format"`

	// IncludeRevision appends the part revision to the card description.
	IncludeRevision bool `yaml:"include_revision"`
}

// LoadProfile reads and validates a sync profile from a YAML file.
func LoadProfile(path string) (Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("syncer: read profile: %w", err)
	}

	var p Profile
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Profile{}, fmt.Errorf("syncer: parse profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	if p.SummaryFormat == "" {
		p.SummaryFormat = DefaultSummaryFormat
	}
	return p, nil
}

// Validate checks the profile's required fields.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.Project) == "" {
		return ErrNoProject
	}
	if strings.TrimSpace(p.Label) == "" {
		return ErrNoLabel
	}
	return nil
}

// Summary renders the card summary for a part.
func (p Profile) Summary(number, name, revision string) string {
	format := p.SummaryFormat
	if format == "" {
		format = DefaultSummaryFormat
	}
	r := strings.NewReplacer(
		"{number}", number,
		"{name}", name,
		"{revision}", revision,
	)
	return r.Replace(format)
}
