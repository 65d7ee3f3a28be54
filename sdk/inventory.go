package sdk

import "time"

// TargetRef identifies an infrastructure entity a job acts upon.
type TargetRef struct {
	ID   string     `json:"id"`
	Type TargetType `json:"type"`
}

func (t TargetRef) String() string {
	return string(t.Type) + "/" + t.ID
}

const (
	PowerStateOn      = "poweredOn"
	PowerStateOff     = "poweredOff"
	PowerStateStandby = "standBy"
	PowerStateUnknown = "unknown"
)

// VMFacts describes one virtual machine running on a target.
type VMFacts struct {
	Name       string   `json:"name"`
	PowerState string   `json:"powerState"`
	Migratable bool     `json:"migratable"`
	Tags       []string `json:"tags,omitempty"`
	Folder     string   `json:"folder,omitempty"`
}

// TargetFacts are the live facts the policy evaluator decides upon.
type TargetFacts struct {
	Target                   TargetRef `json:"target"`
	Name                     string    `json:"name,omitempty"`
	PowerState               string    `json:"powerState"`
	Tags                     []string  `json:"tags,omitempty"`
	Folder                   string    `json:"folder,omitempty"`
	VMs                      []VMFacts `json:"vms,omitempty"`
	DRSEnabled               bool      `json:"drsEnabled"`
	SupportsGracefulShutdown bool      `json:"supportsGracefulShutdown"`
	InMaintenance            bool      `json:"inMaintenance"`
	ObservedAt               time.Time `json:"observedAt"`
}

// PoweredOnVMs returns the VMs currently powered on.
func (f TargetFacts) PoweredOnVMs() []VMFacts {
	var res []VMFacts
	for _, vm := range f.VMs {
		if vm.PowerState == PowerStateOn {
			res = append(res, vm)
		}
	}
	return res
}

// VCenter is a vCenter endpoint known by the engine.
type VCenter struct {
	ID         string `json:"id" toml:"id" cli:"id,key"`
	Name       string `json:"name" toml:"name" cli:"name"`
	SiteID     string `json:"siteId,omitempty" toml:"siteId" cli:"site"`
	URL        string `json:"url" toml:"url" cli:"url"`
	User       string `json:"-" toml:"user"`
	Password   string `json:"-" toml:"password"`
	Datacenter string `json:"datacenter,omitempty" toml:"datacenter" cli:"datacenter"`
	Insecure   bool   `json:"insecure,omitempty" toml:"insecure"`
}

// InventorySyncReport is the output of an inventory sync step.
type InventorySyncReport struct {
	Clusters int `json:"clusters"`
	Hosts    int `json:"hosts"`
	VMs      int `json:"vms"`
}
