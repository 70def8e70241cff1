package resource

import (
	"fmt"
	"math"

	"github.com/simkern/simkern/sim"
	"github.com/simkern/simkern/sim/sharing"
)

// Host is a compute resource: Cores cores of Speed flop/s each.
type Host struct {
	name  string
	speed float64
	cores int
	scale float64 // availability factor set by speed events
	on    bool
	cnst  *sharing.Constraint
}

func (h *Host) Name() string { return h.name }
func (h *Host) IsOn() bool   { return h.on }
func (h *Host) Cores() int   { return h.cores }

// Speed returns the current speed of one core, availability included.
func (h *Host) Speed() float64 { return h.speed * h.scale }

// CPUModel shares host capacity among executions. A host constraint has
// capacity speed x cores; a single execution never runs faster than one core.
type CPUModel struct {
	*base
	hosts map[string]*Host
	bound map[*sim.Action]float64 // user rate cap of each execution
}

// NewCPUModel creates a CPU model without hosts.
func NewCPUModel(cfg sim.Config) (*CPUModel, error) {
	b, err := newBase("cpu", cfg)
	if err != nil {
		return nil, err
	}
	return &CPUModel{base: b, hosts: make(map[string]*Host), bound: make(map[*sim.Action]float64)}, nil
}

// AddHost declares a host.
func (m *CPUModel) AddHost(spec sim.HostSpec) (*Host, error) {
	if _, dup := m.hosts[spec.Name]; dup {
		return nil, fmt.Errorf("host %q declared twice", spec.Name)
	}
	if err := checkPositive("host speed of", spec.Name, spec.Speed); err != nil {
		return nil, err
	}
	cores := spec.Cores
	if cores == 0 {
		cores = 1
	}
	if cores < 0 {
		return nil, fmt.Errorf("host %q: cores must be > 0, got %d", spec.Name, spec.Cores)
	}
	h := &Host{name: spec.Name, speed: spec.Speed, cores: cores, scale: 1, on: true}
	h.cnst = m.system.NewConstraint(spec.Name, spec.Speed*float64(cores), sharing.Shared)
	m.hosts[spec.Name] = h
	m.addResource(h, h.cnst)
	return h, nil
}

// Host returns the named host, or nil.
func (m *CPUModel) Host(name string) *Host { return m.hosts[name] }

func (m *CPUModel) HasHost(name string) bool {
	_, ok := m.hosts[name]
	return ok
}

// Execute starts running flops on host. An execution on a host that is off
// fails immediately.
func (m *CPUModel) Execute(now float64, host string, flops float64, opts sim.ExecOptions) (*sim.Action, error) {
	h, ok := m.hosts[host]
	if !ok {
		return nil, fmt.Errorf("execute: unknown host %q", host)
	}
	if flops < 0 || math.IsNaN(flops) {
		return nil, fmt.Errorf("execute: flops must be >= 0, got %v", flops)
	}
	a := sim.NewAction(sim.KindExec, flops)
	a.SetResource(host)
	if opts.Priority > 0 {
		a.SetPriority(opts.Priority)
	}
	a.SetBound(opts.Bound)
	if !h.on {
		return m.fail(a, now, host), nil
	}
	v := m.system.NewVariable(a, a.Priority(), execBound(h, opts.Bound))
	m.system.Expand(h.cnst, v, 1)
	m.bound[a] = opts.Bound
	return m.accept(a, now, v, host), nil
}

// Sleep blocks for duration seconds on host without consuming its capacity.
// The sleep fails if the host turns off meanwhile.
func (m *CPUModel) Sleep(now float64, host string, duration float64) (*sim.Action, error) {
	h, ok := m.hosts[host]
	if !ok {
		return nil, fmt.Errorf("sleep: unknown host %q", host)
	}
	if duration < 0 || math.IsNaN(duration) {
		return nil, fmt.Errorf("sleep: duration must be >= 0, got %v", duration)
	}
	a := sim.NewAction(sim.KindSleep, math.Inf(1))
	a.SetResource(host)
	a.SetMaxDuration(duration)
	if !h.on {
		return m.fail(a, now, host), nil
	}
	return m.accept(a, now, nil, host), nil
}

// UpdateResourceState turns hosts off and on, or scales their speed.
func (m *CPUModel) UpdateResourceState(r sim.Resource, ev sim.StateEvent, now float64) {
	h, ok := m.hosts[r.Name()]
	if !ok {
		panic(fmt.Sprintf("cpu model: unknown host %q", r.Name()))
	}
	switch ev.Kind {
	case sim.StateOff:
		h.on = false
		m.failUsers(h.name, now)
	case sim.StateOn:
		h.on = true
	case sim.StateSpeed:
		h.scale = ev.Value
		m.system.UpdateCapacity(h.cnst, h.Speed()*float64(h.cores))
		for _, a := range m.usersOf(h.name) {
			if v, ok := m.vars[a]; ok {
				m.system.UpdateBound(v, execBound(h, m.bound[a]))
			}
		}
	}
}

// ExtractTerminated also forgets the user bounds of the extracted actions.
func (m *CPUModel) ExtractTerminated() []*sim.Action {
	out := m.base.ExtractTerminated()
	for _, a := range out {
		delete(m.bound, a)
	}
	return out
}

// execBound caps an execution at one core, and at the user bound if any.
func execBound(h *Host, user float64) float64 {
	b := h.Speed()
	if user > 0 && user < b {
		b = user
	}
	return b
}
