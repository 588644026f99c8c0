package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/n3tuk/multidev-lifecycle/internal/cleanup"
	"github.com/n3tuk/multidev-lifecycle/internal/health"
	"github.com/n3tuk/multidev-lifecycle/internal/model"
	"github.com/n3tuk/multidev-lifecycle/internal/output"
	"github.com/n3tuk/multidev-lifecycle/internal/policy"
	"github.com/n3tuk/multidev-lifecycle/internal/prompt"
	"github.com/n3tuk/multidev-lifecycle/internal/selector"
)

type deleteOptions struct {
	pattern string
	policy  model.PreservationPolicy
	dryRun  bool
	yes     bool
	inspect bool
}

func newDeleteCmd() *cobra.Command {
	opts := &deleteOptions{}
	cmd := &cobra.Command{
		Use:   "delete <site>",
		Short: "Delete old CI multidevs",
		Long: `Delete the multidevs whose names match a pattern, oldest first, except
those preserved by open pull requests, live branches or the keep count.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app) error {
				return runDelete(ctx, a, args[0], opts)
			})
		},
	}

	cmd.Flags().StringVar(&opts.pattern, "pattern", cleanup.DefaultPattern, "Regular expression selecting the environments to consider")
	cmd.Flags().IntVar(&opts.policy.Keep, "keep", 0, "Number of the most recent unpreserved environments to keep")
	cmd.Flags().BoolVar(&opts.policy.PreservePRs, "preserve-prs", false, "Keep environments whose branch has an open pull request")
	cmd.Flags().BoolVar(&opts.policy.PreserveIfBranchExists, "preserve-if-branch", false, "Keep environments whose branch still exists on origin")
	cmd.Flags().BoolVar(&opts.policy.DeleteBranch, "delete-branch", false, "Also delete the git branch backing each environment")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Report what would be deleted without deleting anything")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "Delete without asking for confirmation")
	cmd.Flags().BoolVar(&opts.inspect, "inspect", false, "Read the build metadata of each environment before deleting it")
	cmd.Flags().String("format", "table", "Output format (table, json, yaml)")
	return cmd
}

func runDelete(ctx context.Context, a *app, site string, opts *deleteOptions) error {
	if err := opts.policy.Validate(); err != nil {
		return err
	}
	if _, err := selector.Compile(opts.pattern); err != nil {
		return err
	}

	var extra []health.Checker
	if opts.policy.PreserveIfBranchExists || opts.policy.PreservePRs {
		extra = append(extra,
			health.NewBinaryChecker("git"),
			health.NewRepositoryChecker(a.repository(a.cfg.GitDir)),
		)
	}
	if opts.inspect {
		extra = append(extra, health.NewBinaryChecker("scp"))
	}
	if err := a.preflight(ctx, extra...); err != nil {
		return err
	}

	branches := policy.RepoBranchSource{
		PullRequests: a.github,
		Checkout:     a.repository(a.cfg.GitDir),
	}

	deleter := cleanup.New(cleanup.Deps{
		Candidates: selector.New(a.platform, a.log),
		Policy:     policy.NewEngine(branches, a.log, a.metrics),
		Platform:   a.platform,
		Waiter:     a.coord,
		Confirmer:  prompt.New(os.Stdin, os.Stderr),
		Fetcher:    a.metadataStore(),
		Logger:     a.log,
		Metrics:    a.metrics,
	})

	result, err := deleter.Run(ctx, cleanup.Request{
		Site:    site,
		Pattern: opts.pattern,
		Policy:  opts.policy,
		DryRun:  opts.dryRun,
		Yes:     opts.yes,
		Inspect: opts.inspect,
	})
	if result == nil {
		return err
	}
	if result.Declined {
		a.log.Info("Nothing deleted", zap.String("site", site))
	}

	if rerr := a.out.Partition(partition(result)); rerr != nil && err == nil {
		err = rerr
	}
	return err
}

func partition(r *cleanup.Result) output.Partition {
	return output.Partition{
		DryRun:   r.DryRun,
		ToDelete: r.Set.ToDelete,
		ToKeep:   r.Set.ToKeep,
		Deleted:  r.Deleted,
		Skipped:  r.Skipped,
	}
}

func newListCmd() *cobra.Command {
	var pattern string
	cmd := &cobra.Command{
		Use:   "list <site>",
		Short: "List the environments of a site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app) error {
				envs, err := selector.New(a.platform, a.log).Matching(ctx, args[0], pattern)
				if err != nil {
					return err
				}
				return a.out.Environments(envs)
			})
		},
	}
	cmd.Flags().StringVar(&pattern, "pattern", "", "Only list environments whose name matches this regular expression")
	cmd.Flags().String("format", "table", "Output format (table, json, yaml)")
	return cmd
}

func newMergeCmd() *cobra.Command {
	var (
		remove       bool
		deleteBranch bool
		updateDB     bool
	)
	cmd := &cobra.Command{
		Use:   "merge <site> <multidev>",
		Short: "Merge a multidev into dev",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app) error {
				site, name := args[0], args[1]
				if name == model.DevEnvironment {
					return fmt.Errorf("cannot merge dev into itself")
				}
				if err := a.preflight(ctx); err != nil {
					return err
				}

				handle, err := a.platform.MergeToDev(ctx, site, name, updateDB)
				if err == nil {
					err = a.coord.WaitForProgress(ctx, handle)
				}
				if err != nil {
					a.metrics.RecordEnvironmentOperation("merge", "failure")
					return fmt.Errorf("merging %s into dev: %w", name, err)
				}
				a.metrics.RecordEnvironmentOperation("merge", "success")
				a.log.Info("Merged multidev into dev", zap.String("site", site), zap.String("environment", name))

				if !remove {
					return nil
				}
				handle, err = a.platform.DeleteEnvironment(ctx, site, name, deleteBranch)
				if err == nil {
					err = a.coord.WaitForProgress(ctx, handle)
				}
				if err != nil {
					a.metrics.RecordEnvironmentOperation("delete", "failure")
					return fmt.Errorf("deleting %s after merge: %w", name, err)
				}
				a.metrics.RecordEnvironmentOperation("delete", "success")
				a.log.Info("Deleted merged multidev", zap.String("site", site), zap.String("environment", name))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&remove, "delete", false, "Delete the multidev after merging")
	cmd.Flags().BoolVar(&deleteBranch, "delete-branch", false, "With --delete, also delete its git branch")
	cmd.Flags().BoolVar(&updateDB, "updatedb", false, "Run database updates on dev after merging")
	return cmd
}
