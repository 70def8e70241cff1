package resource

import (
	"fmt"
	"math"

	"github.com/simkern/simkern/sim"
	"github.com/simkern/simkern/sim/sharing"
)

// Disk is a storage resource with separate read and write bandwidths.
type Disk struct {
	name  string
	host  string
	read  float64
	write float64
	scale float64
	on    bool
	rcnst *sharing.Constraint
	wcnst *sharing.Constraint
}

func (d *Disk) Name() string { return d.name }
func (d *Disk) IsOn() bool   { return d.on }
func (d *Disk) Host() string { return d.host }

// StorageModel shares disk bandwidth among reads and writes.
type StorageModel struct {
	*base
	disks map[string]*Disk
}

// NewStorageModel creates a storage model without disks.
func NewStorageModel(cfg sim.Config) (*StorageModel, error) {
	b, err := newBase("storage", cfg)
	if err != nil {
		return nil, err
	}
	return &StorageModel{base: b, disks: make(map[string]*Disk)}, nil
}

// AddDisk declares a disk.
func (m *StorageModel) AddDisk(spec sim.DiskSpec) (*Disk, error) {
	if _, dup := m.disks[spec.Name]; dup {
		return nil, fmt.Errorf("disk %q declared twice", spec.Name)
	}
	if err := checkPositive("read bandwidth of disk", spec.Name, spec.ReadBandwidth); err != nil {
		return nil, err
	}
	if err := checkPositive("write bandwidth of disk", spec.Name, spec.WriteBandwidth); err != nil {
		return nil, err
	}
	d := &Disk{name: spec.Name, host: spec.Host, read: spec.ReadBandwidth, write: spec.WriteBandwidth, scale: 1, on: true}
	d.rcnst = m.system.NewConstraint(spec.Name+"/read", spec.ReadBandwidth, sharing.Shared)
	d.wcnst = m.system.NewConstraint(spec.Name+"/write", spec.WriteBandwidth, sharing.Shared)
	m.disks[spec.Name] = d
	m.addResource(d, d.rcnst, d.wcnst)
	return d, nil
}

// Disk returns the named disk, or nil.
func (m *StorageModel) Disk(name string) *Disk { return m.disks[name] }

func (m *StorageModel) HasDisk(name string) bool {
	_, ok := m.disks[name]
	return ok
}

func (m *StorageModel) Read(now float64, disk string, size float64) (*sim.Action, error) {
	return m.io(now, disk, size, false)
}

func (m *StorageModel) Write(now float64, disk string, size float64) (*sim.Action, error) {
	return m.io(now, disk, size, true)
}

func (m *StorageModel) io(now float64, disk string, size float64, write bool) (*sim.Action, error) {
	d, ok := m.disks[disk]
	if !ok {
		return nil, fmt.Errorf("io: unknown disk %q", disk)
	}
	if size < 0 || math.IsNaN(size) {
		return nil, fmt.Errorf("io: size must be >= 0, got %v", size)
	}
	kind, cnst := sim.KindIORead, d.rcnst
	if write {
		kind, cnst = sim.KindIOWrite, d.wcnst
	}
	a := sim.NewAction(kind, size)
	a.SetResource(disk)
	if !d.on {
		return m.fail(a, now, disk), nil
	}
	v := m.system.NewVariable(a, a.Priority(), 0)
	m.system.Expand(cnst, v, 1)
	return m.accept(a, now, v, disk), nil
}

// UpdateResourceState turns disks off and on, or scales their bandwidths.
func (m *StorageModel) UpdateResourceState(r sim.Resource, ev sim.StateEvent, now float64) {
	d, ok := m.disks[r.Name()]
	if !ok {
		panic(fmt.Sprintf("storage model: unknown disk %q", r.Name()))
	}
	switch ev.Kind {
	case sim.StateOff:
		d.on = false
		m.failUsers(d.name, now)
	case sim.StateOn:
		d.on = true
	case sim.StateSpeed:
		d.scale = ev.Value
		m.system.UpdateCapacity(d.rcnst, d.read*d.scale)
		m.system.UpdateCapacity(d.wcnst, d.write*d.scale)
	}
}
