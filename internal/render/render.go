// Package render turns records and snapshots into text for chat, signs and
// the CLI.
package render

import (
	"fmt"
	"io"
	"strings"

	"wealthtop/internal/cache"
	"wealthtop/internal/wealth"
)

// Line is one leaderboard row. Position is 1-based.
type Line struct {
	Position int
	Name     string
	Total    string
}

// Page is one page of the leaderboard. Page is 1-based and clamped to
// [1, Pages].
type Page struct {
	Page  int
	Pages int
	Lines []Line
}

// Paginate cuts snap into pages of perPage rows and returns the requested
// one. perPage below 1 is treated as 10.
func Paginate(snap *cache.Snapshot, page, perPage int) Page {
	if perPage < 1 {
		perPage = 10
	}
	n := snap.Len()
	pages := max((n+perPage-1)/perPage, 1)
	page = min(max(page, 1), pages)

	out := Page{Page: page, Pages: pages}
	for i := (page - 1) * perPage; i < min(page*perPage, n); i++ {
		r, _ := snap.At(i)
		out.Lines = append(out.Lines, Line{Position: i + 1, Name: r.Name, Total: wealth.FormatValue(r.Total())})
	}
	return out
}

// WriteLeaderboard prints one page of snap.
func WriteLeaderboard(w io.Writer, snap *cache.Snapshot, page, perPage int) error {
	p := Paginate(snap, page, perPage)
	if _, err := fmt.Fprintf(w, "Wealth leaderboard (page %d/%d)\n", p.Page, p.Pages); err != nil {
		return err
	}
	if len(p.Lines) == 0 {
		_, err := fmt.Fprintln(w, "  no entries")
		return err
	}
	for _, l := range p.Lines {
		if _, err := fmt.Fprintf(w, "  %d. %s - %s\n", l.Position, l.Name, l.Total); err != nil {
			return err
		}
	}
	return nil
}

// Expand replaces every chat placeholder of rec found in template.
// Placeholders for categories the record lacks are left untouched.
func Expand(template string, rec *wealth.Record) string {
	if rec == nil || !strings.Contains(template, "{") {
		return template
	}
	ph := rec.Chat()
	pairs := make([]string, 0, 2*len(ph))
	for _, p := range ph {
		pairs = append(pairs, p.Token, p.Value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// DefaultStatsTemplate lists every category of a record, one per line.
var DefaultStatsTemplate = []string{
	"Wealth of {name}",
	"  balance: {balance_wealth}",
	"  land: {land_wealth} (blocks {blocks_wealth}, spawners {spawners_wealth}, containers {containers_wealth})",
	"  inventory: {inventory_wealth}",
	"  total: {total_wealth}",
}

// StatsLines renders rec with template, dropping lines that still hold an
// unresolved placeholder. External categories are appended after the
// template's last line when they have no line of their own.
func StatsLines(rec *wealth.Record, template []string) []string {
	if template == nil {
		template = DefaultStatsTemplate
	}
	out := make([]string, 0, len(template)+len(rec.External()))
	seen := strings.Join(template, "\n")
	for _, t := range template {
		line := Expand(t, rec)
		if strings.Contains(line, "_wealth}") {
			continue
		}
		out = append(out, line)
	}
	for _, c := range rec.External() {
		if strings.Contains(seen, "{"+c.Name+"_wealth}") {
			continue
		}
		out = append(out, fmt.Sprintf("  %s: %s", c.Name, wealth.FormatValue(c.Value)))
	}
	return out
}

// SignLines are the four lines of a rank sign for 1-based position. rec may
// be nil when nobody holds the position.
func SignLines(position int, rec *wealth.Record) [4]string {
	if rec == nil {
		return [4]string{fmt.Sprintf("#%d", position), "None", "", ""}
	}
	return [4]string{fmt.Sprintf("#%d", position), rec.Name, wealth.FormatValue(rec.Total()), "wealth"}
}
