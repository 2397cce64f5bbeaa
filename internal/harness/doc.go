// Package harness runs YAML-defined update scenarios against a real engine
// over an in-memory host.
//
// A scenario seeds containers, drives a sequence of update steps (plain
// updates, failing updates, bursts, emergency stops) and then asserts on the
// trace, the error log and the final content. Traces are deterministic:
// every run of a scenario produces the same sequence numbers, outcomes and
// bands, which makes them suitable for golden-file comparison with goldie.
package harness
