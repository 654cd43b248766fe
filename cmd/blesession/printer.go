package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/srg/blesession/internal/device"
	"github.com/srg/blesession/pkg/session"
)

// Output formats
const (
	FormatText = "text"
	FormatJSON = "json"
)

const timeLayout = "15:04:05.000"

// EventPrinter writes session callbacks to a stream, one line per event.
// It is safe for concurrent use.
type EventPrinter struct {
	mu     sync.Mutex
	out    io.Writer
	json   bool
	now    func() time.Time
	colors map[string]*color.Color
}

var (
	_ session.Callback           = (*EventPrinter)(nil)
	_ session.DiagnosticListener = (*EventPrinter)(nil)
)

// NewEventPrinter creates a printer for format (text or json).
func NewEventPrinter(out io.Writer, format string, colored bool) (*EventPrinter, error) {
	p := &EventPrinter{out: out, now: time.Now}
	switch strings.ToLower(format) {
	case FormatText, "":
	case FormatJSON:
		p.json = true
	default:
		return nil, fmt.Errorf("invalid format %q: use text or json", format)
	}

	// Lifecycle events stand out, data events stay plain
	p.colors = map[string]*color.Color{
		"power":              color.New(color.FgBlue, color.Bold),
		"connecting":         color.New(color.FgYellow),
		"connected":          color.New(color.FgGreen, color.Bold),
		"disconnected":       color.New(color.FgRed, color.Bold),
		"streaming_ready":    color.New(color.FgCyan),
		"hr_ready":           color.New(color.FgCyan),
		"ftp_ready":          color.New(color.FgCyan),
		"negotiation_failed": color.New(color.FgMagenta),
	}
	// Toggle per color; the global color.NoColor stays untouched
	for _, c := range p.colors {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p, nil
}

// printedEvent is the JSON form of one callback.
type printedEvent struct {
	Time    string   `json:"time"`
	Event   string   `json:"event"`
	Device  string   `json:"device,omitempty"`
	Name    string   `json:"name,omitempty"`
	Powered *bool    `json:"powered,omitempty"`
	Streams []string `json:"streams,omitempty"`
	UUID    string   `json:"uuid,omitempty"`
	Value   string   `json:"value,omitempty"`
	Level   *int     `json:"level,omitempty"`
	HR      *int     `json:"hr,omitempty"`
	RRMs    []int    `json:"rr_ms,omitempty"`
	Contact *bool    `json:"contact,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// emit writes ev; detail is the text-mode tail.
func (p *EventPrinter) emit(ev printedEvent, detail string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ts := p.now()

	// JSON lines: one object per callback
	if p.json {
		ev.Time = ts.Format(time.RFC3339Nano)
		data, err := json.Marshal(ev)
		if err != nil {
			return // printedEvent holds only plain values
		}
		_, _ = fmt.Fprintf(p.out, "%s\n", data)
		return
	}

	// Text: "15:04:05.000 [device] event detail"
	name := ev.Event
	if c, ok := p.colors[ev.Event]; ok {
		name = c.Sprint(ev.Event)
	}
	line := ts.Format(timeLayout)
	if ev.Device != "" {
		line += " [" + ev.Device + "]"
	}
	line += " " + name
	if detail != "" {
		line += " " + detail
	}
	_, _ = fmt.Fprintln(p.out, line)
}

func (p *EventPrinter) BlePowerStateChanged(powered bool) {
	state := "off"
	if powered {
		state = "on"
	}
	p.emit(printedEvent{Event: "power", Powered: &powered}, "bluetooth "+state)
}

func (p *EventPrinter) lifecycle(event string, info device.Info) {
	p.emit(printedEvent{Event: event, Device: info.ID, Name: info.Name}, info.Name)
}

func (p *EventPrinter) DeviceConnecting(info device.Info) {
	p.lifecycle("connecting", info)
}

func (p *EventPrinter) DeviceConnected(info device.Info) {
	p.lifecycle("connected", info)
}

func (p *EventPrinter) DeviceDisconnected(info device.Info) {
	p.lifecycle("disconnected", info)
}

func (p *EventPrinter) StreamingFeaturesReady(id string, features []device.StreamingFeature) {
	names := make([]string, len(features))
	for i, f := range features {
		names[i] = f.String()
	}
	p.emit(printedEvent{Event: "streaming_ready", Device: id, Streams: names}, strings.Join(names, ","))
}

func (p *EventPrinter) HrFeatureReady(id string) {
	p.emit(printedEvent{Event: "hr_ready", Device: id}, "")
}

func (p *EventPrinter) PolarFtpFeatureReady(id string) {
	p.emit(printedEvent{Event: "ftp_ready", Device: id}, "")
}

func (p *EventPrinter) DisInformationReceived(id string, uuid string, value string) {
	p.emit(printedEvent{Event: "dis", Device: id, UUID: uuid, Value: value}, uuid+"="+value)
}

func (p *EventPrinter) BatteryLevelReceived(id string, level int) {
	p.emit(printedEvent{Event: "battery", Device: id, Level: &level}, fmt.Sprintf("%d%%", level))
}

func (p *EventPrinter) HrNotificationReceived(id string, sample device.HrSample) {
	ev := printedEvent{Event: "hr", Device: id, HR: &sample.Rate, RRMs: sample.RRMs}
	detail := fmt.Sprintf("%d bpm", sample.Rate)
	if len(sample.RRMs) > 0 {
		rr := make([]string, len(sample.RRMs))
		for i, v := range sample.RRMs {
			rr[i] = fmt.Sprint(v)
		}
		detail += " rr=" + strings.Join(rr, ",") + "ms"
	}
	// Contact is only meaningful when the strap reports support for it
	if sample.ContactSupported {
		contact := sample.Contact
		ev.Contact = &contact
		detail += fmt.Sprintf(" contact=%t", contact)
	}
	p.emit(ev, detail)
}

func (p *EventPrinter) FeatureNegotiationFailed(id string, err *session.NegotiationError) {
	p.emit(printedEvent{Event: "negotiation_failed", Device: id, Error: err.Error()}, err.Error())
}
