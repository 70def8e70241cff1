// register.go wires the platform constructor into the sim package's
// registration variable (NewPlatformModelsFunc). This init() runs when any
// package imports sim/resource; test code in package sim uses
// resource_import_test.go for the blank import.
package resource

import (
	"fmt"

	"github.com/simkern/simkern/sim"
)

func init() {
	sim.NewPlatformModelsFunc = NewPlatform
}

// NewPlatform builds the CPU, network and storage models of p, in that order.
func NewPlatform(cfg sim.Config, p sim.PlatformSpec) ([]sim.ResourceModel, error) {
	cpu, err := NewCPUModel(cfg)
	if err != nil {
		return nil, err
	}
	for _, h := range p.Hosts {
		if _, err := cpu.AddHost(h); err != nil {
			return nil, err
		}
	}

	router := NewStaticRouter()
	net, err := NewNetworkModel(cfg, router)
	if err != nil {
		return nil, err
	}
	for _, l := range p.Links {
		if _, err := net.AddLink(l); err != nil {
			return nil, err
		}
	}
	for _, r := range p.Routes {
		if !cpu.HasHost(r.Src) || !cpu.HasHost(r.Dst) {
			return nil, fmt.Errorf("route %s->%s: unknown host", r.Src, r.Dst)
		}
		for _, l := range r.Links {
			if net.Link(l) == nil {
				return nil, fmt.Errorf("route %s->%s: unknown link %q", r.Src, r.Dst, l)
			}
		}
		router.Add(r.Src, r.Dst, r.Links, r.Symmetric)
	}

	storage, err := NewStorageModel(cfg)
	if err != nil {
		return nil, err
	}
	for _, d := range p.Disks {
		if d.Host != "" && !cpu.HasHost(d.Host) {
			return nil, fmt.Errorf("disk %q: unknown host %q", d.Name, d.Host)
		}
		if _, err := storage.AddDisk(d); err != nil {
			return nil, err
		}
	}
	return []sim.ResourceModel{cpu, net, storage}, nil
}
