// Package job defines the contract between the engine and job bodies: the
// declarative Spec (ports, interactive flag) and the executable Job / InteractiveJob
// interfaces invoked by the executor.
package job
