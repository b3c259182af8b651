// Package depgraph implements the supervisor's dependency graph: a directed
// graph of component names, whose edges each carry a HARD or SOFT kind.
// internal/supervisor adds a component's edges when it is registered;
// internal/merger builds a separate prospective graph for each merge to
// check it for cycles. The supervisor's graph is not rebuilt when an
// already-registered component's dependencies change.
//
// HARD edges gate state transitions: a component cannot leave INSTALLED for
// STARTING until every HARD dependency is RUNNING or FINISHED, and a
// component is stopped and returned to INSTALLED whenever a HARD dependency
// leaves that set. SOFT edges only influence ordering: a SOFT dependency is
// started first when possible, but its failure never blocks or restarts the
// dependent.
//
// AddEdge and RemoveNode exist for callers that already hold a consistent
// adjacency list (internal/merger builds a fresh Graph with AddNode/AddEdge
// for every merge), not for incremental editing under load.
package depgraph
