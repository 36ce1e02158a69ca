// Package report aggregates the outbound request audit log.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"text/template"
	"time"

	"github.com/FranksOps/searchmcp/internal/storage"
)

// ToolStats aggregates the requests of one tool.
type ToolStats struct {
	Requests   int           `json:"requests"`
	Errors     int           `json:"errors"`
	Detections int           `json:"detections"`
	Bytes      int64         `json:"bytes"`
	AvgLatency time.Duration `json:"avg_latency"`

	total time.Duration
}

// Summary contains aggregated metrics over a set of request records.
type Summary struct {
	TotalRequests   int                   `json:"total_requests"`
	TotalCalls      int                   `json:"total_calls"`
	TotalErrors     int                   `json:"total_errors"`
	TotalDetections int                   `json:"total_detections"`
	TotalBytes      int64                 `json:"total_bytes"`
	ProxiedRequests int                   `json:"proxied_requests"`
	StatusCodes     map[int]int           `json:"status_codes"`
	DetectionsBySrc map[string]int        `json:"detections_by_src"`
	Tools           map[string]*ToolStats `json:"tools"`
	StartTime       time.Time             `json:"start_time"`
	EndTime         time.Time             `json:"end_time"`
	Duration        time.Duration         `json:"duration"`
}

// GenerateSummary aggregates records. TotalCalls counts distinct call IDs.
func GenerateSummary(records []*storage.RequestRecord) Summary {
	s := Summary{
		StatusCodes:     make(map[int]int),
		DetectionsBySrc: make(map[string]int),
		Tools:           make(map[string]*ToolStats),
	}

	if len(records) == 0 {
		return s
	}

	s.StartTime = records[0].CreatedAt
	s.EndTime = records[0].CreatedAt
	calls := make(map[string]struct{})

	for _, r := range records {
		s.TotalRequests++
		ts := s.Tools[r.Tool]
		if ts == nil {
			ts = &ToolStats{}
			s.Tools[r.Tool] = ts
		}
		ts.Requests++
		ts.Bytes += r.Bytes
		ts.total += r.Duration

		if r.CallID != "" {
			calls[r.CallID] = struct{}{}
		}
		if r.Error != "" {
			s.TotalErrors++
			ts.Errors++
		}
		if r.DetectedBot {
			s.TotalDetections++
			s.DetectionsBySrc[r.DetectionSrc]++
			ts.Detections++
		}
		if r.StatusCode > 0 {
			s.StatusCodes[r.StatusCode]++
		}
		if r.Proxy != "" {
			s.ProxiedRequests++
		}
		s.TotalBytes += r.Bytes

		if r.CreatedAt.Before(s.StartTime) {
			s.StartTime = r.CreatedAt
		}
		if r.CreatedAt.After(s.EndTime) {
			s.EndTime = r.CreatedAt
		}
	}

	for _, ts := range s.Tools {
		ts.AvgLatency = ts.total / time.Duration(ts.Requests)
	}
	s.TotalCalls = len(calls)
	s.Duration = s.EndTime.Sub(s.StartTime)
	return s
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("report: encoding summary: %w", err)
	}
	return nil
}

var textReport = template.Must(template.New("textReport").Parse(`searchmcp Request Audit
-----------------------
Time:          {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Duration:      {{.Duration}}
Tool Calls:    {{.TotalCalls}}
Requests:      {{.TotalRequests}} ({{.ProxiedRequests}} via proxy)
Total Bytes:   {{.TotalBytes}} bytes
Total Errors:  {{.TotalErrors}}

Tools:
{{- range $tool, $st := .Tools}}
  {{$tool}}: {{$st.Requests}} requests, {{$st.Errors}} errors, {{$st.Detections}} detections, avg {{$st.AvgLatency}}
{{- else}}
  None
{{- end}}

Status Codes:
{{- range $code, $count := .StatusCodes}}
  {{$code}}: {{$count}}
{{- else}}
  None
{{- end}}

Detections: {{.TotalDetections}}
{{- range $src, $count := .DetectionsBySrc}}
  {{$src}}: {{$count}}
{{- else}}
  None
{{- end}}
`))

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	if err := textReport.Execute(w, summary); err != nil {
		return fmt.Errorf("report: rendering summary: %w", err)
	}
	return nil
}

// WriteRecords lists records as an aligned table, newest first.
func WriteRecords(w io.Writer, records []*storage.RequestRecord) error {
	sorted := append([]*storage.RequestRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tTOOL\tMETHOD\tSTATUS\tDURATION\tDETECTED\tURL")
	for _, r := range sorted {
		status := fmt.Sprint(r.StatusCode)
		if r.StatusCode == 0 {
			status = "-"
		}
		detected := "-"
		if r.DetectedBot {
			detected = r.DetectionSrc
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.CreatedAt.Format(time.RFC3339), r.Tool, r.Method, status,
			r.Duration.Round(time.Millisecond), detected, r.URL)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("report: writing records: %w", err)
	}
	return nil
}
