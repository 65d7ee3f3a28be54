package main

import (
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml"
	"github.com/spf13/cobra"

	"github.com/hostops/hops/engine/api"
	"github.com/hostops/hops/sdk"
)

func init() {
	configCmd.AddCommand(configNewCmd)
	configCmd.AddCommand(configCheckCmd)

	configNewCmd.Flags().BoolVar(&flagConfigNewAsEnv, "env", false, "Print configuration as environment variable")
}

var flagConfigNewAsEnv bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage hops Configuration",
}

var configNewCmd = &cobra.Command{
	Use:   "new",
	Short: "hops configuration file assistant",
	Long: `
Generate the whole configuration file
	$ engine config new > hops.toml

Or as environment variables
	$ engine config new --env
`,
	Run: func(cmd *cobra.Command, args []string) {
		conf := configBootstrap()
		if flagConfigNewAsEnv {
			configPrintToEnv(conf, os.Stdout)
			return
		}
		btes, err := toml.Marshal(conf)
		if err != nil {
			sdk.Exit("%v\n", err)
		}
		fmt.Println(string(btes))
	},
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check hops configuration file",
	Long:  `$ engine config check <path>`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) != 1 {
			cmd.Help() // nolint
			sdk.Exit("Wrong usage\n")
		}

		conf := configImport(args[0], false)
		fmt.Printf("checking api configuration...\n")
		if err := api.New().CheckConfiguration(*conf.API); err != nil {
			sdk.Exit("api Configuration: %v\n", err)
		}
		fmt.Println("Configuration file OK")
	},
}
