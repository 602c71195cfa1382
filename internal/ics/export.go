package ics

import (
	"fmt"
	"io"
	"localcal/internal/models"
	"log/slog"
	"strconv"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"
)

const productID = "-//localcal//EN"

// emptyCalendar is written when there is nothing to export; the ical encoder
// rejects a VCALENDAR without components.
const emptyCalendar = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:" + productID + "\r\n" +
	"END:VCALENDAR\r\n"

// Exporter writes stored events as an iCalendar stream.
type Exporter struct {
	logger *slog.Logger
	loc    *time.Location
	now    func() time.Time
}

// NewExporter creates an Exporter. loc is used for times without an offset.
func NewExporter(logger *slog.Logger, loc *time.Location) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Exporter{logger: logger, loc: loc, now: time.Now}
}

// Encode writes one VCALENDAR containing a VEVENT per event. Events whose
// time cannot be parsed are skipped. It returns the number of events written.
func (e *Exporter) Encode(w io.Writer, events []models.Event) (int, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)

	stamp := e.now().UTC()
	for _, ev := range events {
		vevent, err := e.toICal(ev, stamp)
		if err != nil {
			e.logger.Warn("Skipping event in export.", "title", ev.Title, "error", err)
			continue
		}
		cal.Children = append(cal.Children, vevent)
	}

	if len(cal.Children) == 0 {
		if _, err := io.WriteString(w, emptyCalendar); err != nil {
			return 0, fmt.Errorf("failed to write empty calendar: %w", err)
		}
		e.logger.Debug("Exported empty calendar.")
		return 0, nil
	}

	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return 0, fmt.Errorf("failed to encode calendar to iCal format: %w", err)
	}
	e.logger.Debug("Exported events.", "count", len(cal.Children))
	return len(cal.Children), nil
}

// toICal converts a stored event to a VEVENT component.
func (e *Exporter) toICal(ev models.Event, stamp time.Time) (*ical.Component, error) {
	start, err := ev.Start(e.loc)
	if err != nil {
		return nil, err
	}
	end, err := ev.End(e.loc)
	if err != nil {
		return nil, err
	}

	uid := ev.ID
	if uid == "" {
		uid = uuid.New().String()
	}

	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, uid)
	ve.Props.SetText(ical.PropSummary, ev.Title)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, stamp)
	ve.Props.SetDateTime(ical.PropDateTimeStart, start.UTC())
	ve.Props.SetDateTime(ical.PropDateTimeEnd, end.UTC())

	if ev.Category != "" {
		ve.Props.SetText(ical.PropCategories, ev.Category)
	}

	prio := ical.NewProp(ical.PropPriority)
	prio.Value = strconv.Itoa(priorityValue(ev.Priority))
	ve.Props.Set(prio)

	status := ical.NewProp(ical.PropStatus)
	status.Value = statusValue(ev.Status)
	ve.Props.Set(status)

	return ve, nil
}

// priorityValue maps to RFC 5545 PRIORITY, where 1 is highest and 0 undefined.
func priorityValue(p models.Priority) int {
	switch p {
	case models.PriorityHigh:
		return 1
	case models.PriorityNormal:
		return 5
	case models.PriorityLow:
		return 9
	}
	return 0
}

func statusValue(s models.Status) string {
	if s == models.StatusCanceled {
		return "CANCELLED"
	}
	return "CONFIRMED"
}
