package model

import "time"

// BuildMetadataFile is the name of the provenance record at the root of
// every pushed artifact tree. Its name and shape are consumed by later
// runs and must not change.
const BuildMetadataFile = "build-metadata.json"

// BuildDateLayout matches the format of git's %ci placeholder.
const BuildDateLayout = "2006-01-02 15:04:05 -0700"

// BuildMetadata records what was built for a single push. A new record
// supersedes the previous one; records are never merged.
type BuildMetadata struct {
	// URL is the origin remote of the source checkout.
	URL string `json:"url" yaml:"url" validate:"required"`

	// Ref is the branch that was built.
	Ref string `json:"ref" yaml:"ref" validate:"required"`

	// SHA is the full commit hash that was built.
	SHA string `json:"sha" yaml:"sha" validate:"required,hexadecimal,min=7"`

	// Comment is the commit subject line.
	Comment string `json:"comment" yaml:"comment"`

	// CommitDate is the committer date of SHA.
	CommitDate string `json:"commit-date" yaml:"commit-date"`

	// BuildDate is the wall-clock time the record was captured.
	BuildDate string `json:"build-date" yaml:"build-date" validate:"required"`
}

// BuildTime parses BuildDate.
func (m BuildMetadata) BuildTime() (time.Time, error) {
	return time.Parse(BuildDateLayout, m.BuildDate)
}
