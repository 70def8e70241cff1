// Package sim provides a deterministic discrete-event simulation kernel.
//
// # Reading Guide
//
// Start with these files to understand the kernel:
//   - request.go: the Request every blocking call issues, and its single answer
//   - action.go: Action lifecycle (ready, running, suspended, then done, failed or canceled)
//   - engine.go: the Run loop alternating scheduling rounds and time advances
//
// # Architecture
//
// Simulated code runs in processes (one goroutine each) that the kernel
// resumes one at a time, in order, so runs are reproducible. A process talks
// to the kernel only through its Process handle: each call issues a Request,
// parks the goroutine and returns the Outcome the kernel decided.
//
// The sim package defines the kernel, the resource model contract and the
// synchronization primitives; implementations live in sub-packages:
//   - sim/sharing/: fluid sharing systems (max-min fairness, proportional)
//   - sim/resource/: CPU, network and storage models built on sim/sharing
//   - sim/profile/: trace feeds replaying availability and speed changes
//   - sim/trace/: run recording and summary statistics
//   - sim/scenario/: YAML scenarios driving the kernel from files
//
// Sub-packages register their implementations via init() functions that set
// package-level factory variables (NewPlatformModelsFunc).
//
// # Key Interfaces
//
//   - ResourceModel: next completion date, advancing to a date, state events
//   - ComputeModel, NetworkModel, StorageModel: action factories per resource kind
//   - TraceFeed: external state changes dated in virtual time
package sim
