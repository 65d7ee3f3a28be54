package main

import (
	"github.com/spf13/cobra"

	"github.com/hostops/hops/cli"
	"github.com/hostops/hops/sdk/hopsclient"
)

var (
	cfg    *config
	client hopsclient.Interface
	root   *cobra.Command
)

func main() {
	root = rootFromSubCommands([]*cobra.Command{
		admin(),
		health(),
		job(),
		vcenter(),
		version(),
	})
	if err := root.Execute(); err != nil {
		cli.ExitOnError(err)
	}
}

func rootFromSubCommands(cmds []*cobra.Command) *cobra.Command {
	root := cli.NewCommand(mainCmd, nil, cmds)

	root.PersistentFlags().StringP("file", "f", "", "set configuration file")
	root.PersistentFlags().BoolP("verbose", "", false, "Enable verbose output")
	root.PersistentFlags().BoolP("insecure", "", false, `(SSL) This option explicitly allows to perform "insecure" SSL connections and transfers.`)

	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		var err error
		cfg, err = loadConfig(cmd)
		if err == nil {
			client = hopsclient.New(hopsclient.Config{
				Host:                  cfg.Host,
				Verbose:               cfg.Verbose,
				InsecureSkipVerifyTLS: cfg.InsecureSkipVerifyTLS,
				Retry:                 2,
			})
		}

		// help and version only need the config when it exists
		if cmd.Name() == "version" || (cmd.Run == nil && cmd.RunE == nil) {
			return
		}
		cli.ExitOnError(err, root.Help)
	}
	return root
}

var mainCmd = cli.Command{
	Name:  "hopsctl",
	Short: "hops Command line utility",
	Long: `
hopsctl submits and follows the jobs of a hops engine.

The API URL and the operator name are read from the environment:

	HOPS_API_URL="https://hops.local" HOPS_USER="alice" hopsctl job list

or from a .hopsrc toml file in the current directory or in your home directory:

	host = "https://hops.local"
	user = "alice"

Want to debug something? You can use ` + "`HOPS_VERBOSE`" + ` environment variable.

	HOPS_VERBOSE=true hopsctl [command]
`,
}
