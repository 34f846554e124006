package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/yaml"

	pyresolve "github.com/albertocavalcante/go-pyresolve"
)

type outputFormat string

const (
	outputTable outputFormat = "table"
	outputJSON  outputFormat = "json"
	outputYAML  outputFormat = "yaml"
	outputDOT   outputFormat = "dot"
	outputTree  outputFormat = "tree"
)

var allOutputs = []outputFormat{outputTable, outputJSON, outputYAML, outputDOT, outputTree}

func outputNames() string {
	names := make([]string, len(allOutputs))
	for i, o := range allOutputs {
		names[i] = string(o)
	}
	return strings.Join(names, ", ")
}

func renderPlan(w io.Writer, output outputFormat, plan *pyresolve.Plan) error {
	var data []byte
	var err error
	switch output {
	case outputTable:
		data = encodePlanAsTable(plan)
	case outputJSON:
		data, err = json.MarshalIndent(plan, "", "  ")
		data = append(data, '\n')
	case outputYAML:
		data, err = yaml.Marshal(plan)
	case outputDOT, outputTree:
		g := plan.Graph()
		if g == nil {
			return fmt.Errorf("plan has no dependency graph")
		}
		if output == outputDOT {
			data = []byte(g.ToDOT())
		} else {
			data = []byte(g.ToText())
		}
	default:
		err = fmt.Errorf("unknown output format %q (want one of %s)", output, outputNames())
	}
	if err != nil {
		return fmt.Errorf("encoding plan as %q failed: %w", output, err)
	}
	_, err = w.Write(data)
	return err
}

func encodePlanAsTable(plan *pyresolve.Plan) []byte {
	var buf bytes.Buffer
	t := table.NewWriter()
	t.SetOutputMirror(&buf)
	t.AppendHeader(table.Row{"#", "Package", "Version", "Source", "Artifact", "Required By"})
	for i, n := range plan.Nodes {
		artifact := ""
		if n.Artifact != nil {
			artifact = n.Artifact.Filename
		}
		t.AppendRow(table.Row{i + 1, n.Name, n.Version, n.Source, artifact, requiredBy(n)})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d packages", plan.Summary.Total), "", fmt.Sprintf("%d to install", plan.Summary.ToInstall)})
	style := table.StyleLight
	style.Options.DrawBorder = false
	t.SetStyle(style)
	t.Render()

	for _, w := range plan.Warnings {
		fmt.Fprintf(&buf, "warning: %s\n", w)
	}
	return buf.Bytes()
}

func requiredBy(n *pyresolve.ResolvedNode) string {
	seen := make(map[string]bool, len(n.RequiredBy))
	var parents []string
	for _, e := range n.RequiredBy {
		from := e.From
		if from == "" {
			from = "<top>"
		}
		if !seen[from] {
			seen[from] = true
			parents = append(parents, from)
		}
	}
	return strings.Join(parents, ", ")
}

// renderStats prints the index request counters gathered in reg.
func renderStats(w io.Writer, reg prometheus.Gatherer) error {
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("gathering index statistics: %w", err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Index", "Kind", "Outcome", "Requests"})
	for _, mf := range families {
		if mf.GetName() != "pyresolve_index_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := make(map[string]string, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			t.AppendRow(table.Row{labels["index"], labels["kind"], labels["outcome"], int(m.GetCounter().GetValue())})
		}
	}
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 1, AutoMerge: true}})
	style := table.StyleLight
	style.Options.DrawBorder = false
	t.SetStyle(style)
	t.Render()
	return nil
}
