package main

import (
	"github.com/alvmarrod/kg-weaver/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root weaver command with all subcommands registered
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "weaver",
		Short:         "Knowledge graph weaver",
		Long:          "Weaver builds a local triple dataset by crawling a SPARQL endpoint breadth-first from a set of seed entities.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			setupLogging(cmd)
		},
	}

	root.PersistentFlags().StringP("config", "c", "config.json", "path to config file")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newCrawlCmd(),
		newImportCmd(),
		newStatsCmd(),
		newVersionCmd(),
	)

	return root
}

func setupLogging(cmd *cobra.Command) {
	logrus.SetOutput(cmd.ErrOrStderr())
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	level := logrus.InfoLevel
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	logrus.Debugf("Configuration loaded from %s", path)
	return cfg, nil
}
