package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hostops/hops/cli"
)

var adminCmd = cli.Command{
	Name:  "admin",
	Short: "Manage hops engine",
}

func admin() *cobra.Command {
	return cli.NewCommand(adminCmd, nil, []*cobra.Command{
		cli.NewCommand(adminMaintenanceCmd, adminMaintenanceRun, nil),
	})
}

var adminMaintenanceCmd = cli.Command{
	Name:  "maintenance",
	Short: "Show or set the maintenance mode, new jobs are refused while enabled",
	Example: `hopsctl admin maintenance
hopsctl admin maintenance true`,
	OptionalArgs: []cli.Arg{
		{
			Name: "enable",
			IsValid: func(s string) bool {
				_, err := strconv.ParseBool(s)
				return err == nil
			},
		},
	},
}

func adminMaintenanceRun(v cli.Values) error {
	ctx := context.Background()
	if s := v.GetString("enable"); s != "" {
		enable, _ := strconv.ParseBool(s)
		if err := client.AdminSetMaintenance(ctx, enable); err != nil {
			return err
		}
	}
	enabled, err := client.AdminMaintenance(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("maintenance: %t\n", enabled)
	return nil
}
