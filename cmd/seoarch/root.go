package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newRootCmd 创建 seoarch 根命令
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "seoarch",
		Short:         "SEO architects orchestration core",
		Long:          "seoarch runs workflow tasks through the agent graph and serves a\nreference resource server for local development.",
		Version:       fmt.Sprintf("seoarch %s", Version),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("{{.Version}}\n")
	cmd.PersistentFlags().String("config", "", "Path to config file (YAML)")

	cmd.AddCommand(
		newRunCmd(),
		newServeMockCmd(),
		newVersionCmd(),
	)
	return cmd
}

func configPath(cmd *cobra.Command) string {
	p, _ := cmd.Flags().GetString("config")
	return p
}
