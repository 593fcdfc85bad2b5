// Package taskgraph builds the dependency graph between tasks that share data
// nodes: a task that writes a data node comes before every task that reads
// it. The scheduler itself never needs the graph, since blocking handles
// ordering at run time. The graph is used to reject cyclic configurations up
// front and to submit a batch of tasks in a stable topological order.
package taskgraph
