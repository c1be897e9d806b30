package main

import (
	"log/slog"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"coffeefleet-sim/internal/broker"
	"coffeefleet-sim/internal/config"
	"coffeefleet-sim/internal/fleet"
	"coffeefleet-sim/internal/sim"
	"coffeefleet-sim/internal/telemetry"
)

// fleetRuntime is the wired simulator: broker client, driver, catalog
// tracker and the recorder feeding the output sinks.
type fleetRuntime struct {
	reg      *prometheus.Registry
	client   *broker.Client
	driver   *sim.Driver
	catalog  *fleet.Catalog
	tracker  *fleet.Tracker
	recorder *sim.Recorder
	cleanup  func()
}

// newFleetRuntime wires the components around writer. cleanup releases the
// writer and runs from Close.
func newFleetRuntime(cfg *config.FleetConfig, logger *slog.Logger, writer sim.MessageWriter, cleanup func()) *fleetRuntime {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	simMetrics := sim.NewMetrics(reg)

	client := broker.NewClient(broker.Options{
		ConnectDelay: cfg.Simulation.ConnectDelay,
		Logger:       logger,
		Metrics:      broker.NewMetrics(reg),
	})

	seed := cfg.Simulation.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	gen := telemetry.NewGenerator(rand.New(rand.NewSource(seed)))
	gen.Bands = cfg.GeneratorBands()
	gen.MaintenanceProbability = cfg.Simulation.MaintenanceProbability
	gen.OrderProbability = cfg.Simulation.OrderProbability

	topics := cfg.Topics()
	ids := cfg.SimulatedMachineIDs()
	driver := sim.NewDriver(client, sim.Options{
		Interval:         cfg.Simulation.TickInterval,
		Topics:           topics,
		MachineIDs:       ids,
		UsageProbability: cfg.Simulation.UsageProbability,
		AlertProbability: cfg.Simulation.AlertProbability,
		Generator:        gen,
		Logger:           logger,
		Metrics:          simMetrics,
	})
	client.SetDriver(driver)

	catalog := fleet.NewCatalog(cfg.Machines, cfg.LowSupplyThreshold)
	if cleanup == nil {
		cleanup = func() {}
	}
	return &fleetRuntime{
		reg:      reg,
		client:   client,
		driver:   driver,
		catalog:  catalog,
		tracker:  fleet.Track(client, catalog, topics, ids),
		recorder: sim.NewRecorder(client, "output", writer, driver.Topics(), logger, simMetrics),
		cleanup:  cleanup,
	}
}

// Close disconnects before the sinks are released so no tick reaches a
// closed writer.
func (rt *fleetRuntime) Close() {
	rt.client.Disconnect()
	rt.recorder.Close()
	rt.cleanup()
	rt.tracker.Close()
}
