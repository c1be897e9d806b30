// Package dashboard renders a Grafana dashboard over the GreptimeDB tables
// written by the simulator.
package dashboard

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"coffeefleet-sim/internal/sim"
)

//go:embed templates/grafana-dashboard.json.tmpl
var templates embed.FS

// DatasourceEnv names the environment variable holding the Grafana
// datasource UID of the GreptimeDB instance.
const DatasourceEnv = "GREPTIMEDB_DATASOURCE_UID"

// FileName is the rendered dashboard's file name.
const FileName = "grafana-dashboard.json"

type supplyPanel struct {
	Title  string
	Column string
}

type data struct {
	Title         string
	DatasourceUID string
	StatusTable   string
	UsageTable    string
	AlertTable    string
	Supplies      []supplyPanel
}

// Render writes the dashboard into outDir. An empty datasourceUID is read
// from GREPTIMEDB_DATASOURCE_UID.
func Render(outDir, datasourceUID string) (string, error) {
	if datasourceUID == "" {
		datasourceUID = os.Getenv(DatasourceEnv)
	}
	if datasourceUID == "" {
		return "", fmt.Errorf("environment variable %s not set", DatasourceEnv)
	}
	funcMap := template.FuncMap{
		"add": func(a, b int) int { return a + b },
		"mul": func(a, b int) int { return a * b },
	}
	t, err := template.New("grafana-dashboard.json.tmpl").Funcs(funcMap).ParseFS(templates, "templates/grafana-dashboard.json.tmpl")
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	err = t.Execute(&buf, data{
		Title:         "Coffee Fleet",
		DatasourceUID: datasourceUID,
		StatusTable:   sim.StatusTable,
		UsageTable:    sim.UsageTable,
		AlertTable:    sim.AlertTable,
		Supplies: []supplyPanel{
			{"Water", "water_level"},
			{"Milk", "milk_level"},
			{"Coffee beans", "coffee_beans_level"},
			{"Sugar", "sugar_level"},
		},
	})
	if err != nil {
		return "", err
	}
	if !json.Valid(buf.Bytes()) {
		return "", fmt.Errorf("rendered dashboard is not valid JSON")
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}
	outPath := filepath.Join(outDir, FileName)
	if err := os.WriteFile(outPath, buf.Bytes(), 0o644); err != nil {
		return "", err
	}
	return outPath, nil
}
