package main

import (
	"github.com/hostops/hops/engine/api"
)

// Configuration contains hops engine configuration and toml description
type Configuration struct {
	Log struct {
		Level          string   `toml:"level" default:"warning" comment:"Log Level: debug, info, warning, error" json:"level"`
		Format         string   `toml:"format" default:"text" comment:"Stdout format: text, json, discard" json:"format"`
		TextFields     []string `toml:"textFields" default:"" json:"textFields" commented:"true" comment:"Can be used only with text format. Empty values = all fields will be displayed, example: [\"request_uri\",\"request_id\",\"job_id\",\"status\"]"`
		SkipTextFields []string `toml:"skipTextFields" default:"" json:"skipTextFields" commented:"true" comment:"Can be used only with text format. Skip logs with some fields, example: [\"handler=getHealthHandler\"]"`
		Syslog         struct {
			Host     string `toml:"host" comment:"Example: syslog.local" json:"host"`
			Port     int    `toml:"port" comment:"Example: 514" json:"port"`
			Protocol string `toml:"protocol" default:"udp" comment:"tcp or udp" json:"protocol"`
			ExtraTag string `toml:"extraTag" default:"hops" json:"extraTag"`
		} `toml:"syslog" json:"syslog"`
	} `toml:"log" comment:"#####################\n hops Logs Settings \n####################" json:"log"`
	API *api.Configuration `toml:"api" comment:"#####################\n API Configuration \n####################" json:"api"`
}
