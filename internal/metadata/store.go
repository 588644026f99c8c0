// Package metadata captures, persists and fetches the build provenance
// record that travels with every pushed artifact tree.
package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/n3tuk/multidev-lifecycle/internal/gitcli"
	"github.com/n3tuk/multidev-lifecycle/internal/model"
	"github.com/n3tuk/multidev-lifecycle/internal/platform"
	"github.com/n3tuk/multidev-lifecycle/internal/scratch"
)

// ErrNotFound is returned by Fetch when an environment has no usable
// build metadata. Fresh environments are expected to be in this state.
var ErrNotFound = errors.New("build metadata not found")

// remoteDir is where deployed code lives relative to the sftp home.
const remoteDir = "code"

// Locator resolves the ssh endpoints of an environment.
type Locator interface {
	ConnectionInfo(ctx context.Context, site, env string) (platform.ConnectionInfo, error)
}

// Store reads and writes build metadata.
type Store struct {
	locator  Locator
	transfer Transfer
	scratch  *scratch.Tracker
	logger   *zap.Logger
	validate *validator.Validate
	gitOpts  []gitcli.Option
	now      func() time.Time

	// lastBuild is the latest build date this store has persisted.
	lastBuild time.Time
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the source of build timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithGitOptions passes options to every git repository the store opens.
func WithGitOptions(opts ...gitcli.Option) Option {
	return func(s *Store) { s.gitOpts = append(s.gitOpts, opts...) }
}

// NewStore creates a Store. locator, transfer and tracker are only
// needed by Fetch and may be nil for capture-only use.
func NewStore(locator Locator, transfer Transfer, tracker *scratch.Tracker, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		locator:  locator,
		transfer: transfer,
		scratch:  tracker,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Capture computes the metadata of the checkout at dir: its origin,
// branch, HEAD commit and the current time as the build date.
func (s *Store) Capture(ctx context.Context, dir string) (*model.BuildMetadata, error) {
	repo := gitcli.NewRepository(dir, s.gitOpts...)

	origin, ok, err := repo.RemoteURL(ctx, "origin")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s has no origin remote", dir)
	}

	meta := &model.BuildMetadata{URL: origin}
	if meta.Ref, err = repo.CurrentBranch(ctx); err != nil {
		return nil, err
	}
	if meta.SHA, err = repo.HeadSHA(ctx); err != nil {
		return nil, err
	}
	if meta.Comment, err = repo.HeadSubject(ctx); err != nil {
		return nil, err
	}
	if meta.CommitDate, err = repo.HeadCommitDate(ctx); err != nil {
		return nil, err
	}
	meta.BuildDate = s.now().Format(model.BuildDateLayout)

	s.logger.Debug("Captured build metadata",
		zap.String("ref", meta.Ref),
		zap.String("sha", meta.SHA),
		zap.String("build_date", meta.BuildDate),
	)
	return meta, nil
}

// Persist writes meta to build-metadata.json at the root of dir,
// replacing any previous record. The build date of meta is moved forward
// when needed so that it is strictly later than the record it replaces
// and than anything this store persisted before.
func (s *Store) Persist(meta *model.BuildMetadata, dir string) error {
	if err := s.validate.Struct(meta); err != nil {
		return fmt.Errorf("invalid build metadata: %w", err)
	}

	target := filepath.Join(dir, model.BuildMetadataFile)
	if err := s.supersede(meta, target); err != nil {
		return err
	}

	data, err := Encode(meta)
	if err != nil {
		return err
	}

	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	return nil
}

func (s *Store) supersede(meta *model.BuildMetadata, target string) error {
	built, err := meta.BuildTime()
	if err != nil {
		return fmt.Errorf("invalid build date %q: %w", meta.BuildDate, err)
	}

	floor := s.lastBuild
	if data, err := os.ReadFile(target); err == nil {
		if prev, err := s.Decode(data); err == nil {
			if t, err := prev.BuildTime(); err == nil && t.After(floor) {
				floor = t
			}
		}
	}

	if !floor.IsZero() && !built.After(floor) {
		advanced := floor.Add(time.Second).In(built.Location())
		s.logger.Debug("Advanced build date past the previous record",
			zap.String("captured", meta.BuildDate),
			zap.String("build_date", advanced.Format(model.BuildDateLayout)),
		)
		meta.BuildDate = advanced.Format(model.BuildDateLayout)
		built = advanced
	}
	s.lastBuild = built
	return nil
}

// Encode renders meta in the on-disk format: indented JSON with
// slashes and other HTML characters left unescaped.
func Encode(meta *model.BuildMetadata) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(meta); err != nil {
		return nil, fmt.Errorf("failed to encode build metadata: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses and validates a build metadata record.
func (s *Store) Decode(data []byte) (*model.BuildMetadata, error) {
	var meta model.BuildMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse build metadata: %w", err)
	}
	if err := s.validate.Struct(&meta); err != nil {
		return nil, fmt.Errorf("invalid build metadata: %w", err)
	}
	return &meta, nil
}

// Fetch retrieves the metadata deployed on a live environment. Any
// failure to transfer, read or parse the file yields ErrNotFound; only
// a failure to resolve the environment endpoint is returned as is.
func (s *Store) Fetch(ctx context.Context, target model.SiteEnv) (*model.BuildMetadata, error) {
	if s.locator == nil || s.transfer == nil || s.scratch == nil {
		return nil, fmt.Errorf("metadata store is not configured for fetching")
	}

	info, err := s.locator.ConnectionInfo(ctx, target.Site, target.Env)
	if err != nil {
		return nil, err
	}

	dir, err := s.scratch.Dir("metadata-")
	if err != nil {
		return nil, err
	}
	local := filepath.Join(dir, model.BuildMetadataFile)

	log := s.logger.With(zap.Stringer("environment", target))

	from := Endpoint{User: info.SFTPUser, Host: info.SFTPHost, Port: info.SFTPPort}
	remote := path.Join(remoteDir, model.BuildMetadataFile)
	if err := s.transfer.Fetch(ctx, from, remote, local); err != nil {
		log.Debug("Could not transfer build metadata", zap.Error(err))
		return nil, ErrNotFound
	}

	data, err := os.ReadFile(local)
	if err != nil {
		log.Debug("Could not read build metadata", zap.Error(err))
		return nil, ErrNotFound
	}

	meta, err := s.Decode(data)
	if err != nil {
		log.Debug("Unusable build metadata", zap.Error(err))
		return nil, ErrNotFound
	}
	return meta, nil
}
