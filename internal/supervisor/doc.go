// Package supervisor implements the Supervisor/Kernel: the component that
// owns every internal/service.Service, launches them in dependency order,
// tears them down within a deadline, and broadcasts every state transition
// to registered listeners.
//
// Ordering is enforced two ways. internal/depgraph.Ordered gives the
// reverse-post-order walk, used for Shutdown's reverse walk and for
// logging/diagnostics. For startup the Supervisor instead launches every
// component's Run loop concurrently and relies on each Service's DepsReady
// closure (built from the same graph) to block it in INSTALLED until its
// dependencies are satisfied — a within-tier fan-out rather than
// hand-rolled tiering.
package supervisor
