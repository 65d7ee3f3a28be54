package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/fsamin/go-dump"
	defaults "github.com/mcuadros/go-defaults"
	"github.com/spf13/viper"

	"github.com/hostops/hops/engine/api"
	"github.com/hostops/hops/engine/api/inventory"
	"github.com/hostops/hops/engine/api/schedule"
	"github.com/hostops/hops/sdk"
	hopslog "github.com/hostops/hops/sdk/log"
)

const envPrefix = "HOPS"

// configBootstrap returns a configuration with the default values and a few examples.
func configBootstrap() Configuration {
	var conf Configuration
	defaults.SetDefaults(&conf)

	conf.API = &api.Configuration{}
	defaults.SetDefaults(conf.API)
	conf.API.Database.Schema = "public"
	conf.API.Orchestrator.MaxRunningJobsPerTargetType = map[string]int{
		string(sdk.TargetTypeHost):    4,
		string(sdk.TargetTypeServer):  8,
		string(sdk.TargetTypeCluster): 1,
		string(sdk.TargetTypeVCenter): 2,
	}
	conf.API.VCenters = []sdk.VCenter{{
		ID:       "vc-1",
		Name:     "my-vcenter",
		URL:      "https://vcenter.local/sdk",
		User:     "administrator@vsphere.local",
		Password: "",
	}}
	conf.API.Inventory.Targets = []inventory.StaticTarget{{
		ID:         "server-1",
		Type:       string(sdk.TargetTypeServer),
		PowerState: sdk.PowerStateOn,
	}}

	sync := schedule.Entry{
		Name:        "vcenter-sync",
		Cron:        "*/15 * * * *",
		Type:        string(sdk.JobTypeInventorySync),
		TargetType:  string(sdk.TargetTypeVCenter),
		TargetIDs:   []string{"vc-1"},
		Description: "Refresh vSphere facts",
	}
	defaults.SetDefaults(&sync)
	conf.API.Schedules = []schedule.Entry{sync}
	return conf
}

// configToEnvVariables returns the object attributes as env variables.
func configToEnvVariables(o interface{}) map[string]string {
	dumper := dump.NewDefaultEncoder()
	dumper.DisableTypePrefix = true
	dumper.Separator = "_"
	dumper.Prefix = envPrefix
	dumper.Formatters = []dump.KeyFormatterFunc{dump.WithDefaultUpperCaseFormatter()}
	envs, _ := dumper.ToStringMap(o)
	for key := range envs {
		_ = viper.BindEnv(dumper.ViperKey(key), key)
	}
	return envs
}

func configPrintToEnv(c Configuration, w io.Writer) {
	m := configToEnvVariables(c)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		// Print the export command and escape all \n in value
		fmt.Fprintf(w, "export %s=\"%s\"\n", k, strings.ReplaceAll(m[k], "\n", "\\n"))
	}
}

// configImport reads the configuration file then overrides it with HOPS_ env variables.
func configImport(cfgFile string, silent bool) Configuration {
	// Convert the default config to envs to setup binding in viper.
	_ = configToEnvVariables(configBootstrap())
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		if !silent {
			fmt.Println("Reading configuration file @", cfgFile)
		}
		if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
			sdk.Exit("Error file %s doesn't exist\n", cfgFile)
		}
		viper.SetConfigFile(cfgFile)
		viper.SetConfigType("toml")
		if err := viper.ReadInConfig(); err != nil {
			sdk.Exit("%v\n", err)
		}
	}

	conf := Configuration{API: &api.Configuration{}}
	defaults.SetDefaults(&conf)
	defaults.SetDefaults(conf.API)
	if err := viper.Unmarshal(&conf); err != nil {
		sdk.Exit("Unable to parse config: %v\n", err)
	}
	return conf
}

func initLog(ctx context.Context, conf Configuration) {
	hopslog.Initialize(ctx, &hopslog.Conf{
		Level:          conf.Log.Level,
		Format:         conf.Log.Format,
		TextFields:     conf.Log.TextFields,
		SkipTextFields: conf.Log.SkipTextFields,
		SyslogHost:     conf.Log.Syslog.Host,
		SyslogPort:     portString(conf.Log.Syslog.Port),
		SyslogProtocol: conf.Log.Syslog.Protocol,
		SyslogExtraTag: conf.Log.Syslog.ExtraTag,
	})
}

func portString(p int) string {
	if p == 0 {
		return ""
	}
	return strconv.Itoa(p)
}
