package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/n3tuk/multidev-lifecycle/internal/health"
	"github.com/n3tuk/multidev-lifecycle/internal/metadata"
	"github.com/n3tuk/multidev-lifecycle/internal/model"
	"github.com/n3tuk/multidev-lifecycle/internal/output"
)

func newMetadataCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metadata <site.env>",
		Short: "Show the build metadata deployed on an environment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app) error {
				target, err := model.ParseSiteEnv(args[0], "")
				if err != nil {
					return err
				}
				meta, err := a.metadataStore().Fetch(ctx, target)
				if errors.Is(err, metadata.ErrNotFound) {
					return fmt.Errorf("no build metadata on %s", target)
				}
				if err != nil {
					return err
				}
				return a.out.Metadata(meta)
			})
		},
	}
	cmd.Flags().String("format", "table", "Output format (table, json, yaml)")
	return cmd
}

func newWorkflowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Work with platform workflows",
	}
	cmd.AddCommand(newWorkflowWaitCmd())
	return cmd
}

func newWorkflowWaitCmd() *cobra.Command {
	var (
		start   int64
		maxWait time.Duration
	)
	cmd := &cobra.Command{
		Use:   "wait <site> <description>",
		Short: "Wait for a workflow started after a given time",
		Long: `Wait for the most recent workflow on the site to have the given
description and to have started after --start, then wait for it to
finish. Running out of time is reported but is not an error.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app) error {
				site, description := args[0], args[1]
				notBefore := time.Now()
				if start > 0 {
					notBefore = time.Unix(start, 0)
				}

				begin := time.Now()
				outcome, err := a.coord.Await(ctx, site, description, notBefore, maxWait)
				if err != nil {
					return err
				}
				return a.out.Wait(output.WaitResult{
					Site:        site,
					Description: description,
					Outcome:     string(outcome),
					Elapsed:     time.Since(begin),
				})
			})
		},
	}
	cmd.Flags().Int64Var(&start, "start", 0, "Unix time the workflow must have started after (defaults to now)")
	cmd.Flags().DurationVar(&maxWait, "max", 0, "How long to wait (defaults to workflow.timeout)")
	cmd.Flags().String("format", "table", "Output format (table, json, yaml)")
	return cmd
}

func newRepoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repo",
		Short: "Work with source-hosting repositories",
	}
	cmd.AddCommand(newRepoCreateCmd())
	return cmd
}

func newRepoCreateCmd() *cobra.Command {
	var private bool
	cmd := &cobra.Command{
		Use:   "create <owner/name>",
		Short: "Create a repository on the source host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app) error {
				if a.cfg.GitHubToken == "" {
					return fmt.Errorf("creating a repository requires a token: set MULTIDEV_GITHUB_TOKEN")
				}
				repo, err := a.github.CreateRepository(ctx, args[0], private)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), repo.CloneURL)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&private, "private", false, "Create a private repository")
	return cmd
}

func newPreflightCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Check credentials, tools and platform access",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app) error {
				if dir == "" {
					dir = a.cfg.GitDir
				}
				manager := a.preflightManager(
					health.NewCredentialChecker("github-token", a.cfg.GitHubToken, "set MULTIDEV_GITHUB_TOKEN"),
					health.NewBinaryChecker("git"),
					health.NewBinaryChecker("scp"),
					health.NewRepositoryChecker(a.repository(dir)),
				)

				results := manager.CheckAll(ctx)
				if err := a.out.Checks(results); err != nil {
					return err
				}
				for _, r := range results {
					if r.Status != health.StatusOK {
						return fmt.Errorf("preflight check %s failed", r.Name)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Git working copy to check (defaults to git.dir)")
	cmd.Flags().String("format", "table", "Output format (table, json, yaml)")
	return cmd
}
