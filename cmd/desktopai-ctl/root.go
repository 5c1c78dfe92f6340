package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
	cyan  = color.New(color.FgCyan).SprintFunc()
	gray  = color.New(color.FgHiBlack).SprintFunc()
)

// NewRootCommand builds the desktopai-ctl root command.
func NewRootCommand(v *viper.Viper) *cobra.Command {
	root := &cobra.Command{
		Use:   "desktopai-ctl",
		Short: "Operate a desktopai-server run-control core",
		Long: "desktopai-ctl drives the run-control subsystem's Control-Plane\n" +
			"HTTP API: create and advance tasks, start and approve autonomy\n" +
			"runs, and inspect the state either owns.",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("addr", "http://localhost:8080", "desktopai-server base URL")
	_ = v.BindPFlag("addr", root.PersistentFlags().Lookup("addr"))

	client := func() *apiClient { return newAPIClient(v.GetString("addr")) }

	root.AddCommand(newTaskCommand(client))
	root.AddCommand(newRunCommand(client))

	return root
}
