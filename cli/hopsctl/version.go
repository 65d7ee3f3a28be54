package main

import (
	"context"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/hostops/hops/cli"
	"github.com/hostops/hops/sdk"
)

var versionCmd = cli.Command{
	Name:  "version",
	Short: "show hopsctl version",
}

func version() *cobra.Command {
	return cli.NewCommand(versionCmd, versionRun, nil)
}

func versionRun(v cli.Values) error {
	fmt.Printf("hopsctl version: %s %s/%s\n", sdk.Version, runtime.GOOS, runtime.GOARCH)
	if client == nil {
		return nil
	}
	if info, err := client.MonVersion(context.Background()); err == nil {
		fmt.Printf("api version: %s\n", info.Version)
	}
	return nil
}
