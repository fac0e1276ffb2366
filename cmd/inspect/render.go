package main

import (
	"duo-lab/services"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func section(w io.Writer, name string) {
	fmt.Fprintf(w, "\n%s\n", title.Render(fmt.Sprintf("  ====== %s ======", name)))
}

func render(w io.Writer, s *services.Session) {
	fmt.Fprintf(w, "Signed in as %s\n", notice.Render(s.Profiles.Name(s.Self)))

	at, configured := s.Data.NextMeeting()
	meeting := at.Local().Format("Mon 2 Jan 2006 15:04")
	if !configured {
		meeting += muted.Render(" (default)")
	}
	fmt.Fprintf(w, "Next meeting: %s\n", meeting)

	section(w, "Dates")
	dates := newTable(w, "When", "Title", "Category", "Location", "By")
	for _, d := range s.Data.FlatDates() {
		dates.Append([]string{d.At.Local().Format("2006-01-02 15:04"), d.Title, string(d.Category), d.Location, s.Profiles.Name(d.CreatedBy)})
	}
	dates.Render()

	section(w, "Plans")
	plans := newTable(w, "Done", "Title", "Category", "Location", "By")
	for _, p := range s.Data.Plans() {
		done := " "
		if p.Completed {
			done = "x"
		}
		plans.Append([]string{done, p.Title, string(p.Category), p.Location, s.Profiles.Name(p.CreatedBy)})
	}
	plans.Render()

	section(w, "Schedule")
	schedule := newTable(w, "User", "Day", "Period", "Subject", "Time")
	for _, c := range s.Data.Schedules() {
		schedule.Append([]string{s.Profiles.Name(c.User), c.Day, c.Period, c.Subject, c.Time})
	}
	schedule.Render()

	section(w, "Messages")
	messages := newTable(w, "At", "From", "Content")
	for _, m := range s.Chat.Messages() {
		messages.Append([]string{m.CreatedAt.Local().Format("01-02 15:04"), s.Profiles.Name(m.SenderID), strings.ReplaceAll(m.Content, "\n", " ")})
	}
	messages.Render()
}
