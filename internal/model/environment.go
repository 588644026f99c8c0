package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ConnectionMode is the way an environment accepts code changes.
type ConnectionMode string

const (
	// ModeGit treats the environment filesystem as read-only; code
	// arrives only through git pushes.
	ModeGit ConnectionMode = "git"
	// ModeSFTP makes the environment filesystem directly writable.
	ModeSFTP ConnectionMode = "sftp"
)

// Valid reports whether m is a known connection mode.
func (m ConnectionMode) Valid() bool {
	return m == ModeGit || m == ModeSFTP
}

// DevEnvironment is the primary environment every multidev is cloned from.
const DevEnvironment = "dev"

// MasterBranch is the branch the platform deploys to the dev environment.
const MasterBranch = "master"

// Environment represents a named, remotely-hosted sandbox on a site.
// It is owned by the hosting platform; this tool only observes it and
// requests transitions.
type Environment struct {
	// ID is the environment name, unique per site.
	ID string `json:"id" yaml:"id"`

	// CreatedAt is when the platform created the environment.
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`

	// ConnectionMode is either git or sftp.
	ConnectionMode ConnectionMode `json:"connection_mode" yaml:"connection_mode"`

	// Locked reports whether the environment is behind HTTP basic auth.
	Locked bool `json:"locked" yaml:"locked"`

	// Initialized reports whether the environment has been deployed to.
	Initialized bool `json:"initialized" yaml:"initialized"`
}

// BranchName returns the git branch that backs an environment.
func BranchName(env string) string {
	if env == DevEnvironment {
		return MasterBranch
	}
	return env
}

// MaxMultidevNameLength is the longest name the platform accepts for a
// multidev environment.
const MaxMultidevNameLength = 11

var (
	multidevName = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

	reservedNames = map[string]bool{
		"dev": true, "test": true, "live": true, "master": true,
		"settings": true, "team": true, "support": true, "debug": true,
		"multidev": true, "files": true, "tags": true, "billing": true,
	}
)

// ValidateMultidevName checks a name the platform would accept for a
// new multidev.
func ValidateMultidevName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("multidev name cannot be empty")
	case len(name) > MaxMultidevNameLength:
		return fmt.Errorf("multidev name %q is longer than %d characters", name, MaxMultidevNameLength)
	case !multidevName.MatchString(name):
		return fmt.Errorf("multidev name %q may only contain lowercase letters, digits and dashes", name)
	case reservedNames[name]:
		return fmt.Errorf("multidev name %q is reserved", name)
	}
	return nil
}

// SiteEnv identifies an environment on a site, written as "site.env".
type SiteEnv struct {
	Site string
	Env  string
}

// ParseSiteEnv parses "site" or "site.env". When the environment part
// is missing, defaultEnv is used.
func ParseSiteEnv(value, defaultEnv string) (SiteEnv, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return SiteEnv{}, fmt.Errorf("site cannot be empty")
	}

	site, env, found := strings.Cut(value, ".")
	if !found {
		env = defaultEnv
	}
	if site == "" {
		return SiteEnv{}, fmt.Errorf("invalid site %q", value)
	}
	if env == "" {
		return SiteEnv{}, fmt.Errorf("no environment given in %q", value)
	}

	return SiteEnv{Site: site, Env: env}, nil
}

// String returns the "site.env" form.
func (s SiteEnv) String() string {
	return s.Site + "." + s.Env
}
