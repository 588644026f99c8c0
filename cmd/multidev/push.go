package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/n3tuk/multidev-lifecycle/internal/codesync"
	"github.com/n3tuk/multidev-lifecycle/internal/health"
	"github.com/n3tuk/multidev-lifecycle/internal/model"
)

type pushOptions struct {
	dir   string
	label string
	sftp  bool
}

func (o *pushOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.dir, "dir", "", "Git working copy holding the built artifacts (defaults to git.dir)")
	cmd.Flags().StringVar(&o.label, "label", "", "Build label used in the commit message (defaults to the environment name)")
	cmd.Flags().BoolVar(&o.sftp, "sftp", false, "Switch the environment to sftp mode once the code has converged")
	cmd.Flags().String("format", "table", "Output format (table, json, yaml)")
}

func (o *pushOptions) workDir(a *app) string {
	if o.dir != "" {
		return o.dir
	}
	return a.cfg.GitDir
}

func newCreateCmd() *cobra.Command {
	opts := &pushOptions{}
	cmd := &cobra.Command{
		Use:   "create <site> <multidev>",
		Short: "Push a build into a new multidev environment",
		Long: `Push the built artifacts to a branch named after the multidev and create
the multidev from it. If the multidev already exists the build is pushed
into it instead.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app) error {
				return runCreate(ctx, a, args[0], args[1], opts)
			})
		},
	}
	opts.addFlags(cmd)
	return cmd
}

func runCreate(ctx context.Context, a *app, site, name string, opts *pushOptions) error {
	if err := model.ValidateMultidevName(name); err != nil {
		return err
	}

	dir := opts.workDir(a)
	if err := a.preflight(ctx,
		health.NewBinaryChecker("git"),
		health.NewRepositoryChecker(a.repository(dir)),
	); err != nil {
		return err
	}

	exists, err := a.platform.EnvironmentExists(ctx, site, name)
	if err != nil {
		return err
	}

	meta, err := a.pipeline().Push(ctx, codesync.PushRequest{
		Site:         site,
		Target:       name,
		Dir:          dir,
		Label:        opts.label,
		NewlyCreated: !exists,
	})
	if err != nil {
		return err
	}

	if !exists {
		a.log.Info("Creating multidev", zap.String("site", site), zap.String("environment", name))
		handle, err := a.platform.CreateEnvironment(ctx, site, name)
		if err != nil {
			a.metrics.RecordEnvironmentOperation("create", "failure")
			return fmt.Errorf("creating %s.%s: %w", site, name, err)
		}
		if err := a.coord.WaitForProgress(ctx, handle); err != nil {
			a.metrics.RecordEnvironmentOperation("create", "failure")
			return fmt.Errorf("creating %s.%s: %w", site, name, err)
		}
		a.metrics.RecordEnvironmentOperation("create", "success")
	}

	if opts.sftp {
		if err := a.setMode(ctx, site, name, model.ModeSFTP); err != nil {
			return err
		}
	}

	return a.out.Metadata(meta)
}

func newPushCmd() *cobra.Command {
	opts := &pushOptions{}
	var multidev string
	cmd := &cobra.Command{
		Use:   "push <site[.env]>",
		Short: "Push a build into an existing environment",
		Long: `Push the built artifacts into an environment. When the environment already
exists, the command returns only after the platform has finished syncing
the pushed code, so it is safe to change the connection mode afterwards.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app) error {
				target, err := pushTarget(args[0], multidev)
				if err != nil {
					return err
				}
				return runPush(ctx, a, target, opts)
			})
		},
	}
	opts.addFlags(cmd)
	cmd.Flags().StringVar(&multidev, "multidev", "", "Multidev to push to, overriding the environment in the site argument")
	return cmd
}

// pushTarget resolves the environment to push to. An explicit multidev
// wins over the env part of site.env, which itself defaults to dev.
func pushTarget(siteEnv, multidev string) (model.SiteEnv, error) {
	target, err := model.ParseSiteEnv(siteEnv, model.DevEnvironment)
	if err != nil {
		return model.SiteEnv{}, err
	}
	if multidev != "" {
		target.Env = multidev
	}
	return target, nil
}

func runPush(ctx context.Context, a *app, target model.SiteEnv, opts *pushOptions) error {
	dir := opts.workDir(a)
	if err := a.preflight(ctx,
		health.NewBinaryChecker("git"),
		health.NewRepositoryChecker(a.repository(dir)),
	); err != nil {
		return err
	}

	meta, err := a.pipeline().Push(ctx, codesync.PushRequest{
		Site:   target.Site,
		Target: target.Env,
		Dir:    dir,
		Label:  opts.label,
	})
	if err != nil {
		return err
	}

	if opts.sftp {
		if err := a.setMode(ctx, target.Site, target.Env, model.ModeSFTP); err != nil {
			return err
		}
	}

	return a.out.Metadata(meta)
}
