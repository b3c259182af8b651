// Package merger implements the transactional configuration merge engine:
// it takes a (Deployment, new configuration) pair and produces a
// DeploymentResult, one of SUCCESSFUL, FAILED_ROLLED_BACK, or
// FAILED_NO_STATE_CHANGE.
//
// A merge proceeds in five steps, each able to abort the ones after it:
// classify the delta against the current Config Tree, rebuild the
// prospective dependency graph and reject cycles, broadcast the proposed
// parameters to every component with a registered ValidateConfiguration
// capability and await a verdict, apply the change to the Config Tree
// under one write epoch, then drive affected components' state machines
// (reinstall/restart) and roll back on failure when the deployment's
// failure policy asks for it.
//
// Only one merge runs at a time, enforced with a plain mutex: at most one
// merge in flight.
package merger
