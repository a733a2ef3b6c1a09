/*
Core implements the single-symbol strategy runtime.

# Module
  - in-memory bus: receives snapshots, fills and order updates, in order
  - strategy runtime: single thread strategy invoker
  - allocator: approves every ensemble order intent and books every ensemble fill
  - position reducer: fill ledger per strategy, reconciled against the allocator book

# Source
 1. snapshots from the synthetic generator or a recorded tape
 2. fills and order updates from the venue, fed back through the same stream

# Produce
  - order requests to the gateway
  - status snapshots for the state writer and the report publisher
*/
package core
