package telemetry

import "strings"

// Default topic names used by the dashboard UI.
const (
	DefaultDomain      = "coffee/machines"
	DefaultAlertsTopic = "coffee/alerts"
)

// Topics builds "<domain>/<machineId>/<kind>" routing strings and names the
// fleet-wide alerts topic.
type Topics struct {
	Domain string
	Alerts string
}

// DefaultTopics returns the topic layout the dashboard UI subscribes to.
func DefaultTopics() Topics {
	return Topics{Domain: DefaultDomain, Alerts: DefaultAlertsTopic}
}

// Status is the status topic for a machine.
func (t Topics) Status(machineID string) string {
	return t.Domain + "/" + machineID + "/status"
}

// Usage is the usage topic for a machine.
func (t Topics) Usage(machineID string) string {
	return t.Domain + "/" + machineID + "/usage"
}

// ForMachines returns every per-machine topic followed by the alerts topic.
func (t Topics) ForMachines(ids []string) []string {
	out := make([]string, 0, len(ids)*2+1)
	for _, id := range ids {
		out = append(out, t.Status(id), t.Usage(id))
	}
	return append(out, t.Alerts)
}

// Parse splits a per-machine topic into machine id and kind. ok is false for
// topics outside the domain, including the alerts topic.
func (t Topics) Parse(topic string) (machineID string, kind Kind, ok bool) {
	rest, found := strings.CutPrefix(topic, t.Domain+"/")
	if !found {
		return "", "", false
	}
	id, k, found := strings.Cut(rest, "/")
	if !found || id == "" || strings.Contains(k, "/") {
		return "", "", false
	}
	switch Kind(k) {
	case KindStatus, KindUsage:
		return id, Kind(k), true
	}
	return "", "", false
}
