package app

import (
	"slices"
	"time"

	"github.com/fatih/color"
	"github.com/rodaine/table"

	"github.com/daichitakahashi/condvar/events"
)

type (
	row struct {
		ts        int64 // timestamp
		operation string
		waiter    string
		caller    string
	}

	tablePrinter struct {
		rows []row
	}
)

func newTablePrinter() *tablePrinter {
	return &tablePrinter{
		rows: []row{},
	}
}

func (p *tablePrinter) insert(v row) {
	idx, _ := slices.BinarySearchFunc(p.rows, v, func(r1, r2 row) int {
		switch {
		case r1.ts == r2.ts:
			return 0
		case r1.ts < r2.ts:
			return -1
		default:
			return 1
		}
	})

	if idx == len(p.rows) {
		p.rows = append(p.rows, v)
	} else {
		p.rows = append(p.rows, row{})
		copy(p.rows[idx+1:], p.rows[idx:])
		p.rows[idx] = v
	}
}

func (p *tablePrinter) insertWaitLogs(wl []events.WaitLog) {
	for _, l := range wl {
		p.insert(row{
			ts:        l.Timestamp,
			operation: formatWaitOperation(l.Event),
			waiter:    l.Waiter,
			caller:    l.Caller,
		})
	}
}

func (p *tablePrinter) insertNotifyLogs(nl []events.NotifyLog) {
	for _, l := range nl {
		p.insert(row{
			ts:        l.Timestamp,
			operation: formatNotifyOperation(l.Event),
			caller:    l.Caller,
		})
	}
}

func (p *tablePrinter) print() {
	tbl := table.New("Time", "Elapsed", "Operation", "Waiter", "Caller").
		WithHeaderFormatter(
			color.New(color.FgGreen, color.Underline).SprintfFunc(),
		).
		WithFirstColumnFormatter(
			color.New(color.FgYellow).SprintfFunc(),
		)

	var last time.Time
	for _, r := range p.rows {
		timestamp, elapsed := formatTime(r.ts, &last)
		tbl.AddRow(timestamp, elapsed, r.operation, r.waiter, r.caller)
	}
	tbl.Print()
}

func formatWaitOperation(e events.WaitEvent) string {
	switch e {
	case events.WaitEventBlocked:
		return "wait:blocked"
	case events.WaitEventWoke:
		return "wait:woke"
	case events.WaitEventTimedOut:
		return "wait:timedout"
	default:
		return string(e)
	}
}

func formatNotifyOperation(e events.NotifyEvent) string {
	switch e {
	case events.NotifyEventSignal:
		return "notify:signal"
	case events.NotifyEventBroadcast:
		return "notify:broadcast"
	default:
		return string(e)
	}
}

func formatTime(ts int64, last *time.Time) (string, string) {
	t := time.Unix(0, ts)
	defer func() {
		*last = t
	}()
	s := t.Format("2006-01-02 15:04:05.999999999")
	if last.IsZero() {
		return s, ""
	}
	diff := t.Sub(*last)
	if diff >= 0 {
		return s, "+" + diff.String()
	}
	return s, diff.String()
}
