package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// CallSummary is printed once a call is over.
type CallSummary struct {
	RoomID      string
	Participant string
	Media       string
	Role        string
	Outcome     string
	Err         string
	States      []string
	Started     time.Time
	Connected   time.Time
	Ended       time.Time
}

func CallSummaryView(s CallSummary) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Color.Header = text.Colors{text.FgCyan, text.Bold}
	t.Style().Color.IndexColumn = text.Colors{text.FgHiBlack}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: text.Colors{text.Bold}},
		{Number: 2, WidthMax: 60},
	})

	t.AppendHeader(table.Row{"Call", "Value"})
	t.AppendRow(table.Row{"Room", s.RoomID})
	if s.Participant != "" {
		t.AppendRow(table.Row{"Participant", s.Participant})
	}
	t.AppendRow(table.Row{"Media", s.Media})
	if s.Role != "" {
		t.AppendRow(table.Row{"Role", s.Role})
	}

	outcome := s.Outcome
	if s.Err != "" {
		outcome = text.FgRed.Sprint(outcome)
	}
	t.AppendRow(table.Row{"Outcome", outcome})
	if s.Err != "" {
		t.AppendRow(table.Row{"Error", s.Err})
	}

	if !s.Connected.IsZero() && !s.Ended.IsZero() {
		t.AppendRow(table.Row{"Time in call", formatElapsed(s.Ended.Sub(s.Connected))})
	}
	if !s.Started.IsZero() && !s.Ended.IsZero() {
		t.AppendRow(table.Row{"Total", formatElapsed(s.Ended.Sub(s.Started))})
	}
	if len(s.States) > 0 {
		t.AppendSeparator()
		t.AppendRow(table.Row{"States", strings.Join(s.States, " → ")})
	}

	return t.Render()
}

func RenderCallSummary(s CallSummary) {
	fmt.Println(CallSummaryView(s))
}
