package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/hostops/hops/cli"
)

var vcenterCmd = cli.Command{
	Name:    "vcenter",
	Aliases: []string{"vcenters", "vc"},
	Short:   "Manage configured vCenters",
}

func vcenter() *cobra.Command {
	return cli.NewCommand(vcenterCmd, nil, []*cobra.Command{
		cli.NewListCommand(vcenterListCmd, vcenterListRun, nil),
		cli.NewGetCommand(vcenterSyncCmd, vcenterSyncRun, nil),
	})
}

var vcenterListCmd = cli.Command{
	Name:  "list",
	Short: "List vCenters",
}

func vcenterListRun(v cli.Values) (cli.ListResult, error) {
	vcs, err := client.VCenterList(context.Background())
	if err != nil {
		return nil, err
	}
	return cli.AsListResult(vcs), nil
}

var vcenterSyncCmd = cli.Command{
	Name:  "sync",
	Short: "Submit an inventory sync of a vCenter",
	Args:  []cli.Arg{{Name: "id"}},
	Flags: []cli.Flag{byFlag},
}

func vcenterSyncRun(v cli.Values) (cli.GetResult, error) {
	return client.VCenterSync(context.Background(), v.GetString("id"), by(v))
}
