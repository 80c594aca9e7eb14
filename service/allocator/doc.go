// Package allocator periodically sweeps open runs and advances them. Scheduling is
// event driven; the sweep picks up runs whose continuation was lost, e.g. after a
// restart of a process that had passes in flight.
package allocator
