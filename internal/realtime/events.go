package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/franzego/tourpush/internal/toast"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const (
	EventRegister      = "register"
	EventRegistered    = "registered"
	EventRegisterError = "register.error"
	EventStatusChanged = "booking.status.changed"
	EventRescheduled   = "booking.rescheduled"
	EventRefunded      = "booking.refunded"
	defaultLocale      = "id-ID"
	dateLayout         = "2 Jan 2006"
	dateTimeLayout     = "2 Jan 2006 15:04"
)

var (
	ErrUnknownEvent = errors.New("unknown event")
	ErrMissingID    = errors.New("event without bookingId")
)

// Envelope is a single frame on the gateway socket.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type registerData struct {
	Token string `json:"token"`
}

type StatusChanged struct {
	BookingID *int      `json:"bookingId"`
	NewStatus string    `json:"newStatus"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Rescheduled struct {
	BookingID *int      `json:"bookingId"`
	NewDate   string    `json:"newDate"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Refunded struct {
	BookingID *int      `json:"bookingId"`
	RefundID  int       `json:"refundId"`
	Status    string    `json:"status"`
	Amount    float64   `json:"amount"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsDomainEvent reports whether event is one the bridge turns into a toast.
func IsDomainEvent(event string) bool {
	switch event {
	case EventStatusChanged, EventRescheduled, EventRefunded:
		return true
	}
	return false
}

// Formatter renders domain events for one locale.
type Formatter struct {
	printer *message.Printer
	loc     *time.Location
}

// NewFormatter falls back to id-ID when locale does not parse.
func NewFormatter(locale string, loc *time.Location) *Formatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.MustParse(defaultLocale)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Formatter{printer: message.NewPrinter(tag), loc: loc}
}

// Amount groups digits the way the locale does, e.g. 150.000 for id-ID.
func (f *Formatter) Amount(v float64) string {
	return f.printer.Sprint(number.Decimal(v, number.MaxFractionDigits(2)))
}

func (f *Formatter) Time(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(f.loc).Format(dateTimeLayout)
}

// Date accepts RFC 3339 timestamps and plain dates; anything else is shown
// as sent.
func (f *Formatter) Date(s string) string {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(f.loc).Format(dateLayout)
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.Format(dateLayout)
	}
	return s
}

// Toast turns a domain event into toast text.
func (f *Formatter) Toast(env Envelope) (toast.Toast, error) {
	switch env.Event {
	case EventStatusChanged:
		var ev StatusChanged
		if err := decode(env, &ev); err != nil {
			return toast.Toast{}, err
		}
		if ev.BookingID == nil {
			return toast.Toast{}, ErrMissingID
		}
		return toast.Toast{
			Title: fmt.Sprintf("Booking #%d · %s", *ev.BookingID, strings.ToUpper(ev.NewStatus)),
			Body:  f.updated(ev.UpdatedAt),
			Level: toast.LevelInfo,
		}, nil

	case EventRescheduled:
		var ev Rescheduled
		if err := decode(env, &ev); err != nil {
			return toast.Toast{}, err
		}
		if ev.BookingID == nil {
			return toast.Toast{}, ErrMissingID
		}
		return toast.Toast{
			Title: fmt.Sprintf("Booking #%d rescheduled", *ev.BookingID),
			Body:  joinLines("New date: "+f.Date(ev.NewDate), f.updated(ev.UpdatedAt)),
			Level: toast.LevelInfo,
		}, nil

	case EventRefunded:
		var ev Refunded
		if err := decode(env, &ev); err != nil {
			return toast.Toast{}, err
		}
		if ev.BookingID == nil {
			return toast.Toast{}, ErrMissingID
		}
		return toast.Toast{
			Title: fmt.Sprintf("Refund #%d · %s", ev.RefundID, strings.ToUpper(ev.Status)),
			Body: joinLines(
				fmt.Sprintf("Booking #%d · Amount %s", *ev.BookingID, f.Amount(ev.Amount)),
				f.updated(ev.UpdatedAt),
			),
			Level: toast.LevelSuccess,
		}, nil
	}
	return toast.Toast{}, fmt.Errorf("%w: %s", ErrUnknownEvent, env.Event)
}

func (f *Formatter) updated(t time.Time) string {
	if s := f.Time(t); s != "" {
		return "Updated " + s
	}
	return ""
}

func decode(env Envelope, v any) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%s: empty payload", env.Event)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%s: %w", env.Event, err)
	}
	return nil
}

func joinLines(lines ...string) string {
	out := lines[:0]
	for _, l := range lines {
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
