package scenario

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/simkern/simkern/sim"
	"github.com/simkern/simkern/sim/profile"
	_ "github.com/simkern/simkern/sim/resource" // registers sim.NewPlatformModelsFunc
	"github.com/simkern/simkern/sim/trace"
)

// ErrBusy is returned by a trylock step on a mutex held by someone else.
var ErrBusy = errors.New("mutex busy")

// Override carries command-line settings. Set fields win over the file.
type Override struct {
	Horizon *float64
	Sharing string
	Trace   trace.TraceLevel
}

// Config returns the kernel configuration of the scenario.
func (s *Spec) Config(o Override) sim.Config {
	cfg := sim.NewConfig()
	if s.Horizon != nil {
		cfg.Horizon = *s.Horizon
	}
	if o.Horizon != nil {
		cfg.Horizon = *o.Horizon
	}
	if s.Sharing != "" {
		cfg.SharingPolicy = s.Sharing
	}
	if o.Sharing != "" {
		cfg.SharingPolicy = o.Sharing
	}
	if s.Trace != "" {
		cfg.TraceLevel = trace.TraceLevel(s.Trace)
	}
	if o.Trace != "" {
		cfg.TraceLevel = o.Trace
	}
	return cfg
}

// platform converts the scenario platform into the kernel's description.
func (s *Spec) platform() sim.PlatformSpec {
	var p sim.PlatformSpec
	for _, h := range s.Platform.Hosts {
		p.Hosts = append(p.Hosts, sim.HostSpec{Name: h.Name, Speed: h.Speed, Cores: h.Cores})
	}
	for _, l := range s.Platform.Links {
		p.Links = append(p.Links, sim.LinkSpec{Name: l.Name, Bandwidth: l.Bandwidth, Latency: l.Latency, FatPipe: l.FatPipe})
	}
	for _, d := range s.Platform.Disks {
		p.Disks = append(p.Disks, sim.DiskSpec{
			Name:           d.Name,
			Host:           d.Host,
			ReadBandwidth:  d.ReadBandwidth,
			WriteBandwidth: d.WriteBandwidth,
		})
	}
	for _, r := range s.Platform.Routes {
		p.Routes = append(p.Routes, sim.RouteSpec{Src: r.Src, Dst: r.Dst, Links: r.Links, Symmetric: r.Symmetric})
	}
	return p
}

var eventKinds = map[string]sim.StateEventKind{
	"off":   sim.StateOff,
	"on":    sim.StateOn,
	"speed": sim.StateSpeed,
}

// feed builds the trace-event feed of the scenario: one-off events, step
// profiles, then generated failures.
func (s *Spec) feed() (*profile.Feed, error) {
	f := profile.NewFeed()
	for _, ev := range s.Events {
		if err := f.Add(ev.Date, ev.Resource, sim.StateEvent{Kind: eventKinds[ev.Kind], Value: ev.Value}); err != nil {
			return nil, err
		}
	}
	for _, p := range s.Profiles {
		points := make([]profile.Point, len(p.Points))
		for i, pt := range p.Points {
			points[i] = profile.Point{Offset: pt.Offset, Value: pt.Value}
		}
		if err := f.AddProfile(p.Resource, p.Kind == "speed", points, p.Period, p.Until); err != nil {
			return nil, err
		}
	}
	rng := NewPartitionedRNG(s.Seed)
	for _, fs := range s.Failures {
		if err := f.AddFailures(fs.Resource, fs.MTBF, fs.MTTR, fs.Until, rng.ForSubsystem(SubsystemResource(fs.Resource))); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Build validates the scenario and returns a kernel ready to run it.
func Build(s *Spec, cfg sim.Config) (*sim.Kernel, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	k, err := sim.NewKernel(cfg)
	if err != nil {
		return nil, err
	}
	models, err := sim.NewPlatformModels(cfg, s.platform())
	if err != nil {
		return nil, err
	}
	for _, m := range models {
		if err := k.RegisterModel(m); err != nil {
			return nil, err
		}
	}
	f, err := s.feed()
	if err != nil {
		return nil, err
	}
	if f.Len() > 0 {
		k.SetTraceFeed(f)
	}

	w := newWorld(s, k)
	for i, b := range s.Background {
		if _, err := k.StartBackground(b.Host, b.Flops, sim.ExecOptions{Priority: b.Priority, Bound: b.Bound}); err != nil {
			return nil, fmt.Errorf("background[%d]: %w", i, err)
		}
	}
	for i := range s.Processes {
		ps := &s.Processes[i]
		if ps.Deferred {
			continue
		}
		c, err := k.Spawn(ps.Name, ps.Host, w.entry(ps), ps.Args)
		if err != nil {
			return nil, err
		}
		w.started(ps, c)
	}
	logrus.Debugf("scenario built: %d hosts, %d links, %d disks, %d processes, %d trace events",
		len(s.Platform.Hosts), len(s.Platform.Links), len(s.Platform.Disks), len(s.Processes), f.Len())
	return k, nil
}

// Run builds the scenario and runs it to completion.
func Run(ctx context.Context, s *Spec, cfg sim.Config) (*sim.Report, error) {
	k, err := Build(s, cfg)
	if err != nil {
		return nil, err
	}
	return k.Run(ctx)
}
