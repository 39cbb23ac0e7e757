package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	envFiles []string
	logLevel string
	// logOutput overrides stdout for logs; tests set it.
	logOutput io.Writer
}

func (o *rootOptions) bootstrap(ctx context.Context, component string, withAMQP bool) (*App, error) {
	return bootstrap(ctx, bootstrapOptions{
		envFiles:  o.envFiles,
		logLevel:  o.logLevel,
		component: component,
		withAMQP:  withAMQP,
		logOutput: o.logOutput,
	})
}

// NewRootCommand creates the conti command with every subcommand registered.
func NewRootCommand(version string) *cobra.Command {
	return newRootCommand(version, &rootOptions{})
}

func newRootCommand(version string, opts *rootOptions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "conti",
		Short:   "Personal finance tracker with recurring transaction materialization",
		Version: version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "env files to load before reading the environment")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")

	rootCmd.AddCommand(
		newServeCommand(opts),
		newWorkerCommand(opts),
		newMaterializeCommand(opts),
		newMigrateCommand(opts),
	)

	return rootCmd
}
