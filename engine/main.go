package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/hostops/hops/sdk"
)

func init() {
	mainCmd.AddCommand(versionCmd)
	mainCmd.AddCommand(databaseCmd)
	mainCmd.AddCommand(configCmd)
	mainCmd.AddCommand(startCmd)
}

func main() {
	if err := mainCmd.Execute(); err != nil {
		sdk.Exit("%v\n", err)
	}
}

var mainCmd = &cobra.Command{
	Use:   "engine",
	Short: "hops engine",
	Long: `
hops engine runs the job orchestration API.

Jobs are submitted on hosts, servers, clusters or vCenters. Each job is split
into one step per target, every step is checked against the job policy before
being carried out by the vSphere or the out-of-band executor.
`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display hops engine version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("hops engine version:%s os:%s architecture:%s\n", sdk.Version, runtime.GOOS, runtime.GOARCH)
	},
}
