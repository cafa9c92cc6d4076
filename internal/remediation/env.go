package remediation

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"pagi-framework/fleetcheck/internal/report"
)

// EnvVar is an optional variable the advisory reports on.
type EnvVar struct {
	Name   string
	Effect string
}

// AdvisoryVars are the optional variables that change what a run covers.
var AdvisoryVars = []EnvVar{
	{"BASE_URL", "units are probed on http://localhost"},
	{"TIMEOUT", "probes time out after 10s"},
	{"OUTPUT_FILE", "report written to validation-report.json"},
	{"REPORT_SHAPE", "report grouped by phase"},
	{"LOG_FILE", "no log mirror file"},
	{"SWARM_REPO_URL", "knowledge synchronization phase skipped"},
	{"DIDCOMM_RELAY_URL", "store-and-forward relay phase skipped"},
	{"REDIS_URL", "redis probed at redis://localhost:6379/0"},
	{"KAFKA_BROKERS", "broker probed at localhost:9092"},
	{"NATS_URL", "NATS check skipped"},
	{"DATABASE_URL", "Postgres check skipped"},
	{"OTEL_EXPORTER_OTLP_ENDPOINT", "traces and metrics not exported"},
	{"COMPOSE_FILE", "docker-compose.yml in the working directory"},
}

// CheckEnv reports which advisory variables are unset. Absence is never a
// failure; it returns the number of unset variables.
func CheckEnv(w io.Writer, console *report.Console, lookup func(string) (string, bool)) int {
	if console == nil {
		console = report.Discard()
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Environment")
	t.AppendHeader(table.Row{"Variable", "State", "When unset"})

	unset := 0
	for _, v := range AdvisoryVars {
		state := "set"
		if val, ok := lookup(v.Name); !ok || val == "" {
			state = "unset"
			unset++
			console.Skip("%s not set: %s", v.Name, v.Effect)
		}
		t.AppendRow(table.Row{v.Name, state, v.Effect})
	}
	t.Render()

	if unset == 0 {
		console.Pass("All optional variables are set")
	} else {
		console.Info("%d optional variable(s) unset; defaults apply", unset)
	}
	return unset
}
