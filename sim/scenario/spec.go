// Package scenario loads a simulation described in YAML: the platform, the
// exogenous resource events, and scripted processes whose steps issue kernel
// requests.
package scenario

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/simkern/simkern/sim/sharing"
	"github.com/simkern/simkern/sim/trace"
)

// Spec is the top-level scenario file.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type Spec struct {
	Version    string           `yaml:"version"`
	Seed       int64            `yaml:"seed"`
	Horizon    *float64         `yaml:"horizon,omitempty"` // nil = run to completion
	Sharing    string           `yaml:"sharing,omitempty"`
	Trace      string           `yaml:"trace,omitempty"`
	Platform   PlatformSpec     `yaml:"platform"`
	Events     []EventSpec      `yaml:"events,omitempty"`
	Profiles   []ProfileSpec    `yaml:"profiles,omitempty"`
	Failures   []FailureSpec    `yaml:"failures,omitempty"`
	Mutexes    []MutexSpec      `yaml:"mutexes,omitempty"`
	Conds      []string         `yaml:"conditions,omitempty"`
	Semaphores []SemaphoreSpec  `yaml:"semaphores,omitempty"`
	Background []BackgroundSpec `yaml:"background,omitempty"`
	Processes  []ProcessSpec    `yaml:"processes"`
}

// PlatformSpec lists the physical resources and the resolved routes.
type PlatformSpec struct {
	Hosts  []HostSpec  `yaml:"hosts"`
	Links  []LinkSpec  `yaml:"links,omitempty"`
	Disks  []DiskSpec  `yaml:"disks,omitempty"`
	Routes []RouteSpec `yaml:"routes,omitempty"`
}

type HostSpec struct {
	Name  string  `yaml:"name"`
	Speed float64 `yaml:"speed"` // flop/s per core
	Cores int     `yaml:"cores,omitempty"`
}

type LinkSpec struct {
	Name      string  `yaml:"name"`
	Bandwidth float64 `yaml:"bandwidth"` // bytes/s
	Latency   float64 `yaml:"latency,omitempty"`
	FatPipe   bool    `yaml:"fat_pipe,omitempty"`
}

type DiskSpec struct {
	Name           string  `yaml:"name"`
	Host           string  `yaml:"host,omitempty"`
	ReadBandwidth  float64 `yaml:"read_bandwidth"`
	WriteBandwidth float64 `yaml:"write_bandwidth"`
}

type RouteSpec struct {
	Src       string   `yaml:"src"`
	Dst       string   `yaml:"dst"`
	Links     []string `yaml:"links"`
	Symmetric bool     `yaml:"symmetric,omitempty"`
}

// EventSpec is a one-off change of a resource state.
type EventSpec struct {
	Date     float64 `yaml:"date"`
	Resource string  `yaml:"resource"`
	Kind     string  `yaml:"kind"` // off, on, speed
	Value    float64 `yaml:"value,omitempty"`
}

// ProfileSpec is a step profile, optionally periodic.
type ProfileSpec struct {
	Resource string      `yaml:"resource"`
	Kind     string      `yaml:"kind"` // state or speed
	Period   float64     `yaml:"period,omitempty"`
	Until    float64     `yaml:"until,omitempty"`
	Points   []PointSpec `yaml:"points"`
}

type PointSpec struct {
	Offset float64 `yaml:"offset"`
	Value  float64 `yaml:"value"`
}

// FailureSpec generates random failures and repairs of a resource from the
// scenario seed.
type FailureSpec struct {
	Resource string  `yaml:"resource"`
	MTBF     float64 `yaml:"mtbf"`
	MTTR     float64 `yaml:"mttr"`
	Until    float64 `yaml:"until"`
}

type MutexSpec struct {
	Name      string `yaml:"name"`
	Recursive bool   `yaml:"recursive,omitempty"`
}

type SemaphoreSpec struct {
	Name    string `yaml:"name"`
	Permits int    `yaml:"permits"`
}

// BackgroundSpec is a load no process waits for.
type BackgroundSpec struct {
	Host     string  `yaml:"host"`
	Flops    float64 `yaml:"flops"`
	Priority float64 `yaml:"priority,omitempty"`
	Bound    float64 `yaml:"bound,omitempty"`
}

// ProcessSpec is a scripted process. Deferred processes are only started
// by a spawn step.
type ProcessSpec struct {
	Name     string     `yaml:"name"`
	Host     string     `yaml:"host"`
	Args     []string   `yaml:"args,omitempty"`
	Daemon   bool       `yaml:"daemon,omitempty"`
	Deferred bool       `yaml:"deferred,omitempty"`
	KillTime *float64   `yaml:"kill_time,omitempty"`
	OnError  string     `yaml:"on_error,omitempty"` // stop (default) or continue
	Steps    []StepSpec `yaml:"steps"`
}

// StepSpec is one operation of a process script. Op selects which of the
// other fields are read.
type StepSpec struct {
	Op       string     `yaml:"op"`
	Amount   float64    `yaml:"amount,omitempty"`   // flops (execute) or bytes (send, read, write)
	Duration float64    `yaml:"duration,omitempty"` // sleep
	Priority float64    `yaml:"priority,omitempty"` // execute
	Bound    float64    `yaml:"bound,omitempty"`    // execute bound or send rate
	Mailbox  string     `yaml:"mailbox,omitempty"`
	Payload  string     `yaml:"payload,omitempty"`
	Target   string     `yaml:"target,omitempty"` // primitive or process name
	Mutex    string     `yaml:"mutex,omitempty"`  // wait
	Timeout  *float64   `yaml:"timeout,omitempty"`
	Disk     string     `yaml:"disk,omitempty"`
	Path     string     `yaml:"path,omitempty"`
	Host     string     `yaml:"host,omitempty"` // spawn
	Times    int        `yaml:"times,omitempty"`
	Steps    []StepSpec `yaml:"steps,omitempty"` // repeat
	Message  string     `yaml:"message,omitempty"`
}

// Step operations.
const (
	OpExecute   = "execute"
	OpSleep     = "sleep"
	OpSend      = "send"
	OpRecv      = "recv"
	OpLock      = "lock"
	OpTryLock   = "trylock"
	OpUnlock    = "unlock"
	OpWait      = "wait"
	OpSignal    = "signal"
	OpBroadcast = "broadcast"
	OpAcquire   = "acquire"
	OpRelease   = "release"
	OpRead      = "read"
	OpWrite     = "write"
	OpSpawn     = "spawn"
	OpKill      = "kill"
	OpSuspend   = "suspend"
	OpResume    = "resume"
	OpRepeat    = "repeat"
	OpLog       = "log"
)

var (
	validOps = map[string]bool{
		OpExecute: true, OpSleep: true, OpSend: true, OpRecv: true,
		OpLock: true, OpTryLock: true, OpUnlock: true,
		OpWait: true, OpSignal: true, OpBroadcast: true,
		OpAcquire: true, OpRelease: true,
		OpRead: true, OpWrite: true,
		OpSpawn: true, OpKill: true, OpSuspend: true, OpResume: true,
		OpRepeat: true, OpLog: true,
	}
	validEventKinds   = map[string]bool{"off": true, "on": true, "speed": true}
	validProfileKinds = map[string]bool{"state": true, "speed": true}
	validOnError      = map[string]bool{"": true, "stop": true, "continue": true}
)

// Load reads and parses a YAML scenario file.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML scenario with strict field checking.
func Parse(data []byte) (*Spec, error) {
	var spec Spec
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&spec); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	if spec.Version == "" {
		spec.Version = "1"
	}
	return &spec, nil
}

// Validate checks the scenario and returns the first problem found.
func (s *Spec) Validate() error {
	if s.Version != "1" {
		return fmt.Errorf("unsupported scenario version %q", s.Version)
	}
	if s.Horizon != nil && (*s.Horizon < 0 || math.IsNaN(*s.Horizon)) {
		return fmt.Errorf("horizon must be >= 0, got %v", *s.Horizon)
	}
	if s.Sharing != "" && !sharing.IsValidPolicy(s.Sharing) {
		return fmt.Errorf("unknown sharing policy %q; valid: %v", s.Sharing, sharing.Names())
	}
	if !trace.IsValidTraceLevel(s.Trace) {
		return fmt.Errorf("unknown trace level %q; valid: none, actions", s.Trace)
	}
	if len(s.Platform.Hosts) == 0 {
		return fmt.Errorf("platform: at least one host required")
	}

	resources := map[string]bool{}
	hosts := map[string]bool{}
	for i, h := range s.Platform.Hosts {
		if err := declare(resources, fmt.Sprintf("host[%d]", i), h.Name); err != nil {
			return err
		}
		hosts[h.Name] = true
	}
	for i, l := range s.Platform.Links {
		if err := declare(resources, fmt.Sprintf("link[%d]", i), l.Name); err != nil {
			return err
		}
	}
	for i, d := range s.Platform.Disks {
		if err := declare(resources, fmt.Sprintf("disk[%d]", i), d.Name); err != nil {
			return err
		}
	}

	for i, ev := range s.Events {
		prefix := fmt.Sprintf("events[%d]", i)
		if !resources[ev.Resource] {
			return fmt.Errorf("%s: unknown resource %q", prefix, ev.Resource)
		}
		if !validEventKinds[ev.Kind] {
			return fmt.Errorf("%s: unknown kind %q; valid: off, on, speed", prefix, ev.Kind)
		}
	}
	for i, p := range s.Profiles {
		prefix := fmt.Sprintf("profiles[%d]", i)
		if !resources[p.Resource] {
			return fmt.Errorf("%s: unknown resource %q", prefix, p.Resource)
		}
		if !validProfileKinds[p.Kind] {
			return fmt.Errorf("%s: unknown kind %q; valid: state, speed", prefix, p.Kind)
		}
	}
	for i, f := range s.Failures {
		if !resources[f.Resource] {
			return fmt.Errorf("failures[%d]: unknown resource %q", i, f.Resource)
		}
	}

	primitives := map[string]string{}
	for _, m := range s.Mutexes {
		if err := declarePrimitive(primitives, "mutex", m.Name); err != nil {
			return err
		}
	}
	for _, c := range s.Conds {
		if err := declarePrimitive(primitives, "condition", c); err != nil {
			return err
		}
	}
	for _, sem := range s.Semaphores {
		if err := declarePrimitive(primitives, "semaphore", sem.Name); err != nil {
			return err
		}
		if sem.Permits < 0 {
			return fmt.Errorf("semaphore %q: permits must be >= 0, got %d", sem.Name, sem.Permits)
		}
	}

	for i, b := range s.Background {
		if !hosts[b.Host] {
			return fmt.Errorf("background[%d]: unknown host %q", i, b.Host)
		}
		if err := validateNonNegative(fmt.Sprintf("background[%d].flops", i), b.Flops); err != nil {
			return err
		}
	}

	if len(s.Processes) == 0 {
		return fmt.Errorf("at least one process required")
	}
	processes := map[string]bool{}
	for _, p := range s.Processes {
		if processes[p.Name] {
			return fmt.Errorf("process %q declared twice", p.Name)
		}
		processes[p.Name] = true
	}
	for i := range s.Processes {
		if err := s.validateProcess(&s.Processes[i], hosts, processes, primitives); err != nil {
			return err
		}
	}
	return nil
}

func (s *Spec) validateProcess(p *ProcessSpec, hosts, processes map[string]bool, primitives map[string]string) error {
	prefix := fmt.Sprintf("process %q", p.Name)
	if p.Name == "" {
		return fmt.Errorf("process: empty name")
	}
	if !hosts[p.Host] {
		return fmt.Errorf("%s: unknown host %q", prefix, p.Host)
	}
	if !validOnError[p.OnError] {
		return fmt.Errorf("%s: unknown on_error %q; valid: stop, continue", prefix, p.OnError)
	}
	if p.KillTime != nil {
		if err := validateNonNegative(prefix+".kill_time", *p.KillTime); err != nil {
			return err
		}
	}
	v := stepValidator{spec: s, hosts: hosts, processes: processes, primitives: primitives}
	return v.steps(prefix, p.Steps)
}

type stepValidator struct {
	spec       *Spec
	hosts      map[string]bool
	processes  map[string]bool
	primitives map[string]string
}

func (v stepValidator) steps(prefix string, steps []StepSpec) error {
	for i := range steps {
		if err := v.step(fmt.Sprintf("%s.steps[%d]", prefix, i), &steps[i]); err != nil {
			return err
		}
	}
	return nil
}

func (v stepValidator) step(prefix string, st *StepSpec) error {
	if !validOps[st.Op] {
		return fmt.Errorf("%s: unknown op %q", prefix, st.Op)
	}
	if st.Timeout != nil {
		if err := validateNonNegative(prefix+".timeout", *st.Timeout); err != nil {
			return err
		}
	}
	switch st.Op {
	case OpExecute, OpSend, OpRead, OpWrite:
		if err := validateNonNegative(prefix+".amount", st.Amount); err != nil {
			return err
		}
	case OpSleep:
		if err := validateNonNegative(prefix+".duration", st.Duration); err != nil {
			return err
		}
	}
	switch st.Op {
	case OpSend, OpRecv:
		if st.Mailbox == "" {
			return fmt.Errorf("%s: %s needs a mailbox", prefix, st.Op)
		}
	case OpLock, OpTryLock, OpUnlock:
		return v.primitive(prefix, st.Target, "mutex")
	case OpWait:
		if err := v.primitive(prefix, st.Target, "condition"); err != nil {
			return err
		}
		return v.primitive(prefix, st.Mutex, "mutex")
	case OpSignal, OpBroadcast:
		return v.primitive(prefix, st.Target, "condition")
	case OpAcquire, OpRelease:
		return v.primitive(prefix, st.Target, "semaphore")
	case OpRead, OpWrite:
		for _, d := range v.spec.Platform.Disks {
			if d.Name == st.Disk {
				return nil
			}
		}
		return fmt.Errorf("%s: unknown disk %q", prefix, st.Disk)
	case OpSpawn:
		if st.Host != "" && !v.hosts[st.Host] {
			return fmt.Errorf("%s: unknown host %q", prefix, st.Host)
		}
		fallthrough
	case OpKill, OpSuspend, OpResume:
		if !v.processes[st.Target] {
			return fmt.Errorf("%s: unknown process %q", prefix, st.Target)
		}
	case OpRepeat:
		if st.Times < 0 {
			return fmt.Errorf("%s: times must be >= 0, got %d", prefix, st.Times)
		}
		return v.steps(prefix, st.Steps)
	}
	return nil
}

func (v stepValidator) primitive(prefix, name, kind string) error {
	if got, ok := v.primitives[name]; !ok || got != kind {
		return fmt.Errorf("%s: unknown %s %q", prefix, kind, name)
	}
	return nil
}

func declare(seen map[string]bool, what, name string) error {
	if name == "" {
		return fmt.Errorf("%s: empty name", what)
	}
	if seen[name] {
		return fmt.Errorf("%s: resource %q declared twice", what, name)
	}
	seen[name] = true
	return nil
}

func declarePrimitive(seen map[string]string, kind, name string) error {
	if name == "" {
		return fmt.Errorf("%s: empty name", kind)
	}
	if prev, ok := seen[name]; ok {
		return fmt.Errorf("%s %q: name already used by a %s", kind, name, prev)
	}
	seen[name] = kind
	return nil
}

func validateNonNegative(name string, val float64) error {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return fmt.Errorf("%s must be a finite number, got %f", name, val)
	}
	if val < 0 {
		return fmt.Errorf("%s must be >= 0, got %f", name, val)
	}
	return nil
}
