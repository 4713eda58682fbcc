// Package loadbalance drives the pass loop of a pipeline across cooperating
// ranks.
//
// Each rank owns a private pipeline instance and a Controller. For one
// pipeline index the Controller walks the state machine
//
//	Idle -> Requesting -> Fetching -> Transforming -> Delivered -> (Idle | Requesting)
//
// asking its Scheduler which domains to fetch in each pass. Static schedules
// fetch each rank's block once; Streaming splits the block into passes under
// a memory ceiling; Dynamic hands out batches from a shared pool in
// proportion to the throughput every rank measured in the previous pass.
// Within a pass the per-rank assignments partition the requested domains.
//
// After every pass the guide function is polled and all ranks vote on
// whether another pass follows, so every rank runs the same number of passes
// and collectives never deadlock. Cleanup hooks run on exit regardless of
// the outcome, and consumers implementing Finalizer merge their partial
// results through the Communicator once the last pass is delivered.
package loadbalance
