// Package datanode holds the scheduler's view of a shared, versioned artifact:
// its edit history, its exclusive write lock, and its cache validity.
//
// Physical storage of the artifact is somebody else's problem. A DataNode only
// keeps the latest value in memory together with the metadata the scheduler
// needs to answer "can this be read?" and "is this still fresh?".
//
// Every method is a short in-memory mutation guarded by a per-node mutex; none
// of them block on I/O.
package datanode
