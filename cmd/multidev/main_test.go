package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n3tuk/multidev-lifecycle/internal/cleanup"
	"github.com/n3tuk/multidev-lifecycle/internal/model"
	"github.com/n3tuk/multidev-lifecycle/internal/output"
)

func TestCommandTree(t *testing.T) {
	paths := [][]string{
		{"create"},
		{"push"},
		{"delete"},
		{"list"},
		{"merge"},
		{"metadata"},
		{"workflow", "wait"},
		{"repo", "create"},
		{"preflight"},
		{"version"},
	}

	for _, path := range paths {
		cmd, rest, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Empty(t, rest, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestDeleteFlagDefaults(t *testing.T) {
	cmd := newDeleteCmd()

	pattern, err := cmd.Flags().GetString("pattern")
	require.NoError(t, err)
	assert.Equal(t, cleanup.DefaultPattern, pattern)

	keep, err := cmd.Flags().GetInt("keep")
	require.NoError(t, err)
	assert.Zero(t, keep)

	dryRun, err := cmd.Flags().GetBool("dry-run")
	require.NoError(t, err)
	assert.False(t, dryRun)

	assert.NotNil(t, cmd.Flags().ShorthandLookup("y"))
}

func TestPushTarget(t *testing.T) {
	tests := []struct {
		name     string
		siteEnv  string
		multidev string
		want     model.SiteEnv
		wantErr  bool
	}{
		{name: "site only defaults to dev", siteEnv: "example", want: model.SiteEnv{Site: "example", Env: "dev"}},
		{name: "site and env", siteEnv: "example.ci-4", want: model.SiteEnv{Site: "example", Env: "ci-4"}},
		{name: "multidev overrides env", siteEnv: "example.dev", multidev: "ci-5", want: model.SiteEnv{Site: "example", Env: "ci-5"}},
		{name: "empty site", siteEnv: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pushTarget(tt.siteEnv, tt.multidev)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPartition(t *testing.T) {
	result := &cleanup.Result{
		Set: model.DeletionCandidateSet{
			ToDelete: []model.Environment{{ID: "ci-1"}, {ID: "ci-3"}},
			ToKeep:   []model.Environment{{ID: "ci-foo"}},
		},
		DryRun:  true,
		Skipped: []string{"ci-3"},
	}

	got := partition(result)
	assert.True(t, got.DryRun)
	assert.Len(t, got.ToDelete, 2)
	assert.Equal(t, "ci-foo", got.ToKeep[0].ID)
	assert.Equal(t, []string{"ci-3"}, got.Skipped)
	assert.Empty(t, got.Deleted)
}

func TestOutputFormat(t *testing.T) {
	withFlag := &cobra.Command{Use: "list"}
	withFlag.Flags().String("format", "table", "")
	require.NoError(t, withFlag.Flags().Set("format", "yaml"))

	got, err := outputFormat(withFlag)
	require.NoError(t, err)
	assert.Equal(t, output.FormatYAML, got)

	require.NoError(t, withFlag.Flags().Set("format", "xml"))
	_, err = outputFormat(withFlag)
	assert.Error(t, err)

	got, err = outputFormat(&cobra.Command{Use: "merge"})
	require.NoError(t, err)
	assert.Equal(t, output.FormatTable, got)
}
