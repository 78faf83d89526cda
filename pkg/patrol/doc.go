/*
Package patrol provides offline-first patrol tracking for guard devices.

# Overview

patrol models a guard's shift at a site as a state machine: Idle until
StartPatrol, Active while checkpoints are verified, Idle again after
EndPatrol. Every record the machine produces (clock-ins, clock-outs,
checkpoint verifications) is written to a local store first and pushed to the
backend opportunistically, so a patrol in a network dead zone loses nothing.

The library is split into focused subpackages:

  - location: coordinates, sites, checkpoints, and the device location feed
  - geofence: proximity detection against a checkpoint set
  - record: the local record store (in-memory and SQLite)
  - syncer: the engine that drains pending records to the backend
  - event: synchronous typed event feeds
  - settings: persisted device preferences
  - config: file-based configuration loading
  - observability: structured logging, metrics, and tracing helpers

# Basic Usage

Wire a machine over a location feed, a site catalog, and a record store:

	store, err := record.NewSQLiteStore("patrol.db")
	if err != nil {
	    log.Fatal(err)
	}
	defer store.Close()

	machine := patrol.NewMachine(feed, catalog, store)

	status, err := machine.StartPatrol(ctx, siteID)
	if err != nil {
	    log.Fatal(err)
	}

	// As the guard walks, feed coordinates through the machine.
	within, _ := machine.CheckProximity(ctx, lat, lon)

	// At a checkpoint:
	status, err = machine.VerifyCheckpoint(ctx, checkpointID)

	// End of shift:
	final, err := machine.EndPatrol(ctx)

# Syncing

A syncer.Engine drains the store whenever connectivity allows, and a
syncer.Trigger runs it on a cadence with backoff:

	engine := syncer.New(store, backend)
	trigger := syncer.NewTrigger(engine, syncer.DefaultTriggerConfig)
	go trigger.Run(ctx)

Records move pending -> syncing -> synced (or failed, which requeues on the
next pass). A compare-and-set claim in the store guarantees a record is never
submitted twice, even across overlapping sync passes.
*/
package patrol
