package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "multidev",
	Short:         "Manage multidev build environments from CI",
	Long:          `Create, push to, list and clean up the multidev environments that CI builds deploy into.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Commit:  %s\n", commit)
		fmt.Printf("Built:   %s\n", date)
	},
}

func buildInfo() map[string]string {
	return map[string]string{
		"version": version,
		"commit":  commit,
		"date":    date,
	}
}

func init() {
	rootCmd.AddCommand(
		versionCmd,
		newCreateCmd(),
		newPushCmd(),
		newDeleteCmd(),
		newListCmd(),
		newMergeCmd(),
		newMetadataCmd(),
		newWorkflowCmd(),
		newRepoCmd(),
		newPreflightCmd(),
	)

	// Configuration flags
	flags := rootCmd.PersistentFlags()
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "console", "Log format (json, console)")
	flags.String("platform-url", "https://terminus.pantheon.io/api", "Hosting platform API URL")
	flags.String("github-url", "https://api.github.com", "Source-hosting API URL")
	flags.String("git-remote", "pantheon", "Name of the git remote for the platform")
	flags.Duration("workflow-interval", 5*time.Second, "Delay between workflow polls (e.g., 5s)")
	flags.Duration("workflow-timeout", 60*time.Second, "Bound on waits for code sync workflows (e.g., 60s)")
	flags.Duration("http-timeout", 30*time.Second, "Timeout for each API request (e.g., 30s)")
	flags.String("metrics-pushgateway", "", "Pushgateway URL to push run metrics to")
	flags.String("metrics-textfile", "", "Path of a node exporter textfile to write run metrics to")

	// Bind flags to viper
	_ = viper.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("log.format", flags.Lookup("log-format"))
	_ = viper.BindPFlag("platform.url", flags.Lookup("platform-url"))
	_ = viper.BindPFlag("github.url", flags.Lookup("github-url"))
	_ = viper.BindPFlag("git.remote", flags.Lookup("git-remote"))
	_ = viper.BindPFlag("workflow.interval", flags.Lookup("workflow-interval"))
	_ = viper.BindPFlag("workflow.timeout", flags.Lookup("workflow-timeout"))
	_ = viper.BindPFlag("http.timeout", flags.Lookup("http-timeout"))
	_ = viper.BindPFlag("metrics.pushgateway", flags.Lookup("metrics-pushgateway"))
	_ = viper.BindPFlag("metrics.textfile", flags.Lookup("metrics-textfile"))
}
