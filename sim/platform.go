package sim

import "fmt"

// HostSpec describes a compute host.
type HostSpec struct {
	Name  string
	Speed float64 // flop/s of one core
	Cores int     // 0 means 1
}

// LinkSpec describes a network link.
type LinkSpec struct {
	Name      string
	Bandwidth float64 // bytes/s
	Latency   float64 // seconds
	FatPipe   bool    // every transfer gets the full bandwidth
}

// DiskSpec describes a disk attached to a host.
type DiskSpec struct {
	Name           string
	Host           string
	ReadBandwidth  float64 // bytes/s
	WriteBandwidth float64 // bytes/s
}

// RouteSpec lists the links crossed from Src to Dst, in order.
type RouteSpec struct {
	Src       string
	Dst       string
	Links     []string
	Symmetric bool // also use the reversed list from Dst to Src
}

// PlatformSpec is the physical platform handed to the resource models.
// Topology and routing computation happen outside the kernel: routes arrive
// already resolved.
type PlatformSpec struct {
	Hosts  []HostSpec
	Links  []LinkSpec
	Disks  []DiskSpec
	Routes []RouteSpec
}

// NewPlatformModelsFunc builds the resource models of a platform. Set by
// sim/resource's init(); the indirection keeps sim free of any concrete model.
var NewPlatformModelsFunc func(cfg Config, p PlatformSpec) ([]ResourceModel, error)

// NewPlatformModels builds the CPU, network and storage models of p.
func NewPlatformModels(cfg Config, p PlatformSpec) ([]ResourceModel, error) {
	if NewPlatformModelsFunc == nil {
		panic("NewPlatformModelsFunc not registered: import sim/resource to register it " +
			"(add: import _ \"github.com/simkern/simkern/sim/resource\")")
	}
	models, err := NewPlatformModelsFunc(cfg, p)
	if err != nil {
		return nil, fmt.Errorf("building platform: %w", err)
	}
	return models, nil
}
