package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/August26/proxyprobe/internal/model"
)

// PrintWorking writes one working proxy per line, as it appeared in the input.
func PrintWorking(w io.Writer, report model.ProbeReport) {
	for _, ep := range report.Working {
		fmt.Fprintln(w, ep.String())
	}
}

// PrintResultsTable prints a human-readable table of per-proxy results.
func PrintResultsTable(w io.Writer, outcomes []model.ProbeOutcome) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)

	// header
	fmt.Fprintln(tw, "PROXY\tSTATUS\tLAT(ms)\tIP\tANONYMITY\tCOUNTRY\tCITY\tISP\tDETAIL")

	for _, o := range outcomes {
		lat := "-"
		if o.Working() {
			lat = strconv.FormatInt(o.Latency.Milliseconds(), 10)
		}

		detail := "-"
		if !o.Working() {
			detail = o.Detail()
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			o.Endpoint.String(),
			o.Status,
			lat,
			dashIfEmpty(o.ObservedIP),
			dashIfEmpty(o.Anonymity),
			dashIfEmpty(o.Geo.Country),
			dashIfEmpty(o.Geo.City),
			dashIfEmpty(o.Geo.ISP),
			detail,
		)
	}

	tw.Flush()
}

// PrintSummary prints the aggregated batch stats.
func PrintSummary(w io.Writer, stats model.BatchStats) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Summary:")
	fmt.Fprintf(w, "  Total proxies:            %d\n", stats.TotalProxies)
	fmt.Fprintf(w, "  Unique proxies:           %d\n", stats.UniqueProxies)
	fmt.Fprintf(w, "  Working proxies:          %d (%.1f%%)\n", stats.WorkingProxies, stats.SuccessRatePct)
	fmt.Fprintf(w, "  HTTP errors:              %d\n", stats.HTTPErrors)
	fmt.Fprintf(w, "  Network errors:           %d\n", stats.NetworkErrors)
	fmt.Fprintf(w, "  Timeouts:                 %d\n", stats.Timeouts)
	fmt.Fprintf(w, "  Avg latency (working):    %.1f ms\n", stats.AvgLatencyMs)
	fmt.Fprintf(w, "  Batch time:               %.2f s\n", float64(stats.TotalProcessingTimeMs)/1000.0)
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// WriteFile writes the report and summary stats to path in json, csv or txt
// format. txt holds only the working proxies, one per line.
func WriteFile(path string, format string, report model.ProbeReport, stats model.BatchStats) error {
	var write func(io.Writer, model.ProbeReport, model.BatchStats) error
	switch format {
	case "json":
		write = writeJSON
	case "csv":
		write = writeCSV
	case "txt":
		write = func(w io.Writer, r model.ProbeReport, _ model.BatchStats) error {
			PrintWorking(w, r)
			return nil
		}
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f, report, stats); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

type outcomeView struct {
	Proxy       string  `json:"proxy"`
	Scheme      string  `json:"scheme"`
	Host        string  `json:"host"`
	Port        int     `json:"port"`
	Status      string  `json:"status"`
	HTTPCode    int     `json:"http_code,omitempty"`
	Error       string  `json:"error,omitempty"`
	LatencyMs   float64 `json:"latency_ms,omitempty"`
	ConnectMs   float64 `json:"connect_ms,omitempty"`
	FirstByteMs float64 `json:"first_byte_ms,omitempty"`
	IP          string  `json:"ip,omitempty"`
	Anonymity   string  `json:"anonymity,omitempty"`
	Country     string  `json:"country,omitempty"`
	City        string  `json:"city,omitempty"`
	ISP         string  `json:"isp,omitempty"`
	Attempts    int     `json:"attempts"`
}

func viewOf(o model.ProbeOutcome) outcomeView {
	v := outcomeView{
		Proxy:       o.Endpoint.String(),
		Scheme:      string(o.Endpoint.Scheme),
		Host:        o.Endpoint.Host,
		Port:        o.Endpoint.Port,
		Status:      o.Status.String(),
		HTTPCode:    o.HTTPCode,
		Error:       o.Message,
		LatencyMs:   ms(o.Latency),
		ConnectMs:   ms(o.ConnectLatency),
		FirstByteMs: ms(o.FirstByteLatency),
		IP:          o.ObservedIP,
		Anonymity:   o.Anonymity,
		Country:     o.Geo.Country,
		City:        o.Geo.City,
		ISP:         o.Geo.ISP,
		Attempts:    o.Attempts,
	}
	if o.Status == model.StatusTimeout {
		v.Error = "timeout"
	}
	return v
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}

// writeJSON writes an object with run metadata, "working", "results" and "summary".
func writeJSON(w io.Writer, report model.ProbeReport, stats model.BatchStats) error {
	working := make([]string, 0, len(report.Working))
	for _, ep := range report.Working {
		working = append(working, ep.String())
	}
	results := make([]outcomeView, 0, len(report.All))
	for _, o := range report.All {
		results = append(results, viewOf(o))
	}

	payload := struct {
		RunID     string           `json:"run_id"`
		Target    string           `json:"target"`
		StartedAt time.Time        `json:"started_at"`
		Working   []string         `json:"working"`
		Results   []outcomeView    `json:"results"`
		Summary   model.BatchStats `json:"summary"`
	}{
		RunID:     report.RunID,
		Target:    report.Target,
		StartedAt: report.StartedAt,
		Working:   working,
		Results:   results,
		Summary:   stats,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

// writeCSV writes per-proxy rows; the summary is not part of the CSV.
func writeCSV(w io.Writer, report model.ProbeReport, _ model.BatchStats) error {
	cw := csv.NewWriter(w)

	// header
	header := []string{
		"proxy",
		"scheme",
		"host",
		"port",
		"status",
		"http_code",
		"error",
		"latency_ms",
		"ip",
		"anonymity",
		"country",
		"city",
		"isp",
		"attempts",
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, o := range report.All {
		v := viewOf(o)
		row := []string{
			v.Proxy,
			v.Scheme,
			v.Host,
			strconv.Itoa(v.Port),
			v.Status,
			strconv.Itoa(v.HTTPCode),
			v.Error,
			strconv.FormatFloat(v.LatencyMs, 'f', 1, 64),
			v.IP,
			v.Anonymity,
			v.Country,
			v.City,
			v.ISP,
			strconv.Itoa(v.Attempts),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
