package resource

import (
	"fmt"
	"math"

	"github.com/simkern/simkern/sim"
	"github.com/simkern/simkern/sim/sharing"
)

// Link is a network resource.
type Link struct {
	name      string
	bandwidth float64
	latency   float64
	scale     float64
	on        bool
	cnst      *sharing.Constraint
}

func (l *Link) Name() string       { return l.name }
func (l *Link) IsOn() bool         { return l.on }
func (l *Link) Latency() float64   { return l.latency }
func (l *Link) Bandwidth() float64 { return l.bandwidth * l.scale }

// Router resolves the links crossed between two hosts. Route computation is
// not the kernel's business; the model only consumes its answer.
type Router interface {
	Route(src, dst string) ([]string, error)
}

// StaticRouter is a route table filled from explicit routes.
type StaticRouter struct {
	routes map[[2]string][]string
}

// NewStaticRouter creates an empty route table.
func NewStaticRouter() *StaticRouter {
	return &StaticRouter{routes: make(map[[2]string][]string)}
}

// Add declares the route from src to dst, and the reversed one if symmetric.
func (r *StaticRouter) Add(src, dst string, links []string, symmetric bool) {
	r.routes[[2]string{src, dst}] = links
	if symmetric {
		rev := make([]string, len(links))
		for i, l := range links {
			rev[len(links)-1-i] = l
		}
		r.routes[[2]string{dst, src}] = rev
	}
}

// Route returns the declared links. A host talking to itself uses an empty
// route unless one was declared.
func (r *StaticRouter) Route(src, dst string) ([]string, error) {
	if links, ok := r.routes[[2]string{src, dst}]; ok {
		return links, nil
	}
	if src == dst {
		return nil, nil
	}
	return nil, fmt.Errorf("no route from %q to %q", src, dst)
}

// NetworkModel shares link bandwidth among transfers. A transfer first
// elapses the summed latency of its route, then shares bandwidth on every
// link of the route.
type NetworkModel struct {
	*base
	links  map[string]*Link
	router Router
}

// NewNetworkModel creates a network model resolving routes with router.
func NewNetworkModel(cfg sim.Config, router Router) (*NetworkModel, error) {
	if router == nil {
		return nil, fmt.Errorf("network model: nil router")
	}
	b, err := newBase("network", cfg)
	if err != nil {
		return nil, err
	}
	return &NetworkModel{base: b, links: make(map[string]*Link), router: router}, nil
}

// AddLink declares a link.
func (m *NetworkModel) AddLink(spec sim.LinkSpec) (*Link, error) {
	if _, dup := m.links[spec.Name]; dup {
		return nil, fmt.Errorf("link %q declared twice", spec.Name)
	}
	if err := checkPositive("bandwidth of link", spec.Name, spec.Bandwidth); err != nil {
		return nil, err
	}
	if spec.Latency < 0 || math.IsNaN(spec.Latency) {
		return nil, fmt.Errorf("link %q: latency must be >= 0, got %v", spec.Name, spec.Latency)
	}
	policy := sharing.Shared
	if spec.FatPipe {
		policy = sharing.FatPipe
	}
	l := &Link{name: spec.Name, bandwidth: spec.Bandwidth, latency: spec.Latency, scale: 1, on: true}
	l.cnst = m.system.NewConstraint(spec.Name, spec.Bandwidth, policy)
	m.links[spec.Name] = l
	m.addResource(l, l.cnst)
	return l, nil
}

// Link returns the named link, or nil.
func (m *NetworkModel) Link(name string) *Link { return m.links[name] }

// Communicate starts a transfer of size bytes from src to dst. The transfer
// fails immediately if a link of the route is off. Over an empty route only
// the latency is paid.
func (m *NetworkModel) Communicate(now float64, src, dst string, size, rate float64) (*sim.Action, error) {
	if size < 0 || math.IsNaN(size) {
		return nil, fmt.Errorf("communicate: size must be >= 0, got %v", size)
	}
	names, err := m.router.Route(src, dst)
	if err != nil {
		return nil, fmt.Errorf("communicate: %w", err)
	}
	route := make([]*Link, 0, len(names))
	latency := 0.0
	for _, n := range names {
		l, ok := m.links[n]
		if !ok {
			return nil, fmt.Errorf("communicate: route %s->%s uses unknown link %q", src, dst, n)
		}
		route = append(route, l)
		latency += l.latency
	}

	a := sim.NewAction(sim.KindComm, size)
	a.SetResource(src + "->" + dst)
	a.SetBound(rate)
	for _, l := range route {
		if !l.on {
			return m.fail(a, now, names...), nil
		}
	}
	if len(route) == 0 && rate <= 0 {
		a.SetMaxDuration(latency)
		return m.accept(a, now, nil, names...), nil
	}
	a.SetLatency(latency)
	weight := a.Priority()
	if latency > 0 {
		weight = 0
	}
	v := m.system.NewVariable(a, weight, rate)
	for _, l := range route {
		m.system.Expand(l.cnst, v, 1)
	}
	return m.accept(a, now, v, names...), nil
}

// UpdateResourceState turns links off and on, or scales their bandwidth.
func (m *NetworkModel) UpdateResourceState(r sim.Resource, ev sim.StateEvent, now float64) {
	l, ok := m.links[r.Name()]
	if !ok {
		panic(fmt.Sprintf("network model: unknown link %q", r.Name()))
	}
	switch ev.Kind {
	case sim.StateOff:
		l.on = false
		m.failUsers(l.name, now)
	case sim.StateOn:
		l.on = true
	case sim.StateSpeed:
		l.scale = ev.Value
		m.system.UpdateCapacity(l.cnst, l.Bandwidth())
	}
}
