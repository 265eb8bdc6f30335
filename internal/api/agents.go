package api

import (
	"html/template"
	"sort"
	"strings"
	"time"

	"github.com/openjobspec/ojs-httpjob/internal/core"
)

var agentListTemplate = template.Must(template.New("agents").Parse(`<table class="table">
<thead><tr><th>Server</th><th>Address</th><th>Agents</th><th>Last heartbeat</th></tr></thead>
<tbody>
{{- range .}}
<tr><td>{{.ID}}</td><td>{{.Address}}</td><td>{{.Agents}}</td><td>{{.Seen}}</td></tr>
{{- else}}
<tr><td colspan="4">no agent server</td></tr>
{{- end}}
</tbody>
</table>`))

type agentRow struct {
	ID      string
	Address string
	Agents  string
	Seen    string
}

func renderAgentList(agents []core.AgentServer, now time.Time) (string, error) {
	rows := make([]agentRow, 0, len(agents))
	for _, a := range agents {
		names := append([]string(nil), a.Agents...)
		sort.Strings(names)
		rows = append(rows, agentRow{
			ID:      a.ID,
			Address: a.Address,
			Agents:  strings.Join(names, ", "),
			Seen:    now.Sub(a.LastHeartbeat).Truncate(time.Second).String() + " ago",
		})
	}
	var b strings.Builder
	if err := agentListTemplate.Execute(&b, rows); err != nil {
		return "", err
	}
	return b.String(), nil
}
