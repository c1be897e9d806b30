package sim

import (
	"errors"
	"sync"
	"time"

	"coffeefleet-sim/internal/telemetry"
)

type collectWriter struct {
	mu   sync.Mutex
	msgs []telemetry.Message
	err  error
}

func (c *collectWriter) Write(m telemetry.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, m)
	return nil
}

func (c *collectWriter) all() []telemetry.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]telemetry.Message(nil), c.msgs...)
}

type batchCollectWriter struct {
	collectWriter
	batches int
}

func (b *batchCollectWriter) WriteBatch(msgs []telemetry.Message) error {
	b.batches++
	for _, m := range msgs {
		if err := b.Write(m); err != nil {
			return err
		}
	}
	return nil
}

var errSink = errors.New("sink down")

func statusMsg(id string, ts time.Time) telemetry.Message {
	return telemetry.Message{
		ID:    "s-" + id,
		Topic: telemetry.DefaultTopics().Status(id),
		Payload: telemetry.StatusUpdate{
			MachineID: id, Status: telemetry.StatusOperational,
			Temperature: 92.1, Pressure: 15.2, PowerUsage: 80.5,
			WaterLevel: 75, MilkLevel: 60, CoffeeBeansLevel: 55, SugarLevel: 90,
			CurrentOrder: "Latte", QueueLength: 2,
		},
		Timestamp: ts,
	}
}

func usageMsg(id string, ts time.Time) telemetry.Message {
	return telemetry.Message{
		ID:        "u-" + id,
		Topic:     telemetry.DefaultTopics().Usage(id),
		Payload:   telemetry.UsageUpdate{MachineID: id, CupsToday: 120, Revenue: 410, LastActivity: "Just now"},
		Timestamp: ts,
	}
}

func alertMsg(id string, ts time.Time) telemetry.Message {
	return telemetry.Message{
		ID:    "a-" + id,
		Topic: telemetry.DefaultAlertsTopic,
		Payload: telemetry.AlertNotice{
			Type: telemetry.AlertLowSupply, MachineID: id, Supply: telemetry.SupplyMilk,
			Level: 7, Message: "Supply level is critically low",
		},
		Timestamp: ts,
	}
}
