package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"wisefido-oximetry/internal/evaluator"
	"wisefido-oximetry/internal/models"
	"wisefido-oximetry/internal/report"
)

// Scenario is a YAML replay scenario: a named SpO2 series with optional rule overrides.
//
// Example:
//
//	name: floor reset
//	mode: streak_hold
//	series: "93 91 90 89 88 89 89 91 92"
//	rules:
//	  drop_threshold: 0.25
type Scenario struct {
	Name   string                 `yaml:"name"`
	Mode   string                 `yaml:"mode"`
	Series string                 `yaml:"series"`
	Rules  map[string]interface{} `yaml:"rules"`
}

func main() {
	// Parse command line arguments
	var seriesText = flag.String("series", "", "Inline SpO2 series, comma/space separated (e.g. '93,91,90,89')")
	var scenarioFile = flag.String("file", "", "Path to YAML scenario file")
	var mode = flag.String("mode", "", "Engine mode: streak_hold or floor_window (overrides scenario)")
	var format = flag.String("format", "table", "Output format: table, json or xlsx")
	var outPath = flag.String("out", "", "Output file path (required for xlsx, default stdout)")
	flag.Parse()

	if *seriesText == "" && *scenarioFile == "" {
		fmt.Fprintln(os.Stderr, "usage: oximetry-replay -series '93,91,90,89,88'")
		fmt.Fprintln(os.Stderr, "       oximetry-replay -file scenario.yaml [-mode floor_window] [-format xlsx -out report.xlsx]")
		os.Exit(2)
	}

	// Load scenario file if given; inline -series takes precedence over its series
	scenario := &Scenario{}
	if *scenarioFile != "" {
		data, err := os.ReadFile(*scenarioFile)
		if err != nil {
			log.Fatalf("Cannot read scenario file: %v", err)
		}
		if err := yaml.Unmarshal(data, scenario); err != nil {
			log.Fatalf("Cannot parse scenario file: %v", err)
		}
	}
	if *seriesText != "" {
		scenario.Series = *seriesText
	}
	if *mode != "" {
		scenario.Mode = *mode
	}
	if scenario.Name == "" {
		scenario.Name = "replay"
	}

	// Resolve rules: preset for the mode, then scenario overrides on top
	rules, err := models.RuleConfigForMode(scenario.Mode)
	if err != nil {
		log.Fatalf("Invalid mode: %v", err)
	}
	if len(scenario.Rules) > 0 {
		raw, err := json.Marshal(scenario.Rules)
		if err != nil {
			log.Fatalf("Cannot encode rule overrides: %v", err)
		}
		rules, err = rules.WithOverrides(raw)
		if err != nil {
			log.Fatalf("Invalid rule overrides: %v", err)
		}
	}

	samples, err := models.ParseSeries(scenario.Series)
	if err != nil {
		log.Fatalf("Invalid series: %v", err)
	}
	if len(samples) == 0 {
		log.Fatalf("No samples in series")
	}

	// Apply the rolling window the service would apply: keep the newest samples
	if len(samples) > rules.MaxPoints {
		fmt.Fprintf(os.Stderr, "series longer than window, keeping last %d of %d samples\n", rules.MaxPoints, len(samples))
		samples = samples[len(samples)-rules.MaxPoints:]
	}

	rows, err := evaluator.Evaluate(samples, rules)
	if err != nil {
		log.Fatalf("Evaluation failed: %v", err)
	}

	switch *format {
	case "table":
		writeTable(openOutput(*outPath), scenario.Name, string(rules.Mode), rows)
	case "json":
		writeJSON(openOutput(*outPath), rows)
	case "xlsx":
		if *outPath == "" {
			log.Fatalf("xlsx format requires -out")
		}
		data, err := report.GenerateTrendReport(scenario.Name, string(rules.Mode), rows)
		if err != nil {
			log.Fatalf("Cannot generate report: %v", err)
		}
		if err := os.WriteFile(*outPath, data, 0644); err != nil {
			log.Fatalf("Cannot write report: %v", err)
		}
		fmt.Printf("Report written to %s (%d rows)\n", *outPath, len(rows))
	default:
		log.Fatalf("Unknown format: %s", *format)
	}
}

// openOutput returns stdout or the file at path.
func openOutput(path string) io.Writer {
	if path == "" {
		return os.Stdout
	}
	f, err := os.Create(path)
	if err != nil {
		log.Fatalf("Cannot create output file: %v", err)
	}
	return f
}

// writeTable prints the decision rows as an aligned text table with a summary line.
func writeTable(w io.Writer, name, mode string, rows []models.TrendRow) {
	fmt.Fprintf(w, "Scenario: %s (mode %s)\n\n", name, mode)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MINUTE\tSPO2\tRESERVE\tDELTA\tDROP\tALERT\tREASON\tNOTE")

	alerting := 0
	for _, row := range rows {
		if row.Asserted() {
			alerting++
		}
		fmt.Fprintf(tw, "%d\t%d\t%.4f\t%s\t%s\t%s\t%s\t%s\n",
			row.Minute,
			row.SpO2,
			row.Reserve,
			formatOptional(row.Delta),
			formatOptional(row.Drop),
			row.Alert,
			row.Reason,
			row.Note,
		)
	}
	tw.Flush()

	fmt.Fprintf(w, "\nSummary: %d minutes, %d alerting\n", len(rows), alerting)
}

// writeJSON prints the decision rows as an indented JSON array.
func writeJSON(w io.Writer, rows []models.TrendRow) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rows); err != nil {
		log.Fatalf("Cannot encode rows: %v", err)
	}
}

// formatOptional renders a nullable reserve value ("-" for the first sample).
func formatOptional(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f", *v)
}
