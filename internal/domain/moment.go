package domain

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MomentKind tags how a Moment was obtained.
type MomentKind int

const (
	// MomentInvalid marks values that could not be interpreted as a point in time.
	MomentInvalid MomentKind = iota
	// MomentTimestamp is a structured backend timestamp.
	MomentTimestamp
	// MomentDateTime is a "DD/MM/YYYY[,] HH:MM" string.
	MomentDateTime
	// MomentDate is a "DD/MM/YYYY" string with no time part.
	MomentDate
	// MomentGeneric is any other string or number accepted by the fallback parser.
	MomentGeneric
)

func (k MomentKind) String() string {
	switch k {
	case MomentTimestamp:
		return "timestamp"
	case MomentDateTime:
		return "datetime"
	case MomentDate:
		return "date"
	case MomentGeneric:
		return "generic"
	default:
		return "invalid"
	}
}

// Moment is a parsed point in time that remembers its original shape so it
// can be written back unchanged.
type Moment struct {
	Kind MomentKind
	Time time.Time
	Raw  string
}

const (
	// OrderDateLayout is the display format captured when an order draft starts.
	OrderDateLayout = "02/01/2006, 15:04"
	// MomentDisplayLayout is the format used when printing moments.
	MomentDisplayLayout = "02/01/2006 15:04"
	// InvalidMomentText is printed for values that do not parse.
	InvalidMomentText = "Invalid Date"
)

var (
	// Unanchored: the first day-first date anywhere in the text wins, so
	// "Pedido 12/03/2024, 10:30" and "12/03/2024 (retirada)" both parse.
	dateTimePattern = regexp.MustCompile(`(\d{2})/(\d{2})/(\d{4}),? (\d{2}):(\d{2})`)
	datePattern     = regexp.MustCompile(`(\d{2})/(\d{2})/(\d{4})`)

	genericLayouts = []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04:05",
		"2006-01-02",
		time.RFC1123Z,
		time.RFC1123,
		time.UnixDate,
		time.ANSIC,
	}

	saoPaulo = loadLocation("America/Sao_Paulo", -3*60*60)
)

func loadLocation(name string, fallbackOffset int) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("BRT", fallbackOffset)
	}
	return loc
}

// DefaultLocation is the atelier's wall-clock zone.
func DefaultLocation() *time.Location {
	return saoPaulo
}

// TimestampMoment wraps a structured timestamp.
func TimestampMoment(t time.Time) Moment {
	if t.IsZero() {
		return Moment{Kind: MomentInvalid}
	}
	return Moment{Kind: MomentTimestamp, Time: t}
}

// ParseMoment interprets value in the default location.
func ParseMoment(value any) Moment {
	return ParseMomentIn(value, saoPaulo)
}

// ParseMomentIn interprets a stored timestamp, display string, or epoch
// milliseconds. Strings in the day-first shapes are read by field extraction
// in loc; anything else goes through a list of ISO-like layouts.
func ParseMomentIn(value any, loc *time.Location) Moment {
	if loc == nil {
		loc = saoPaulo
	}
	switch v := value.(type) {
	case nil:
		return Moment{Kind: MomentInvalid}
	case Moment:
		return v
	case time.Time:
		return TimestampMoment(v)
	case *time.Time:
		if v == nil {
			return Moment{Kind: MomentInvalid}
		}
		return TimestampMoment(*v)
	case string:
		return parseMomentString(v, loc)
	case int64:
		return epochMillisMoment(float64(v))
	case int:
		return epochMillisMoment(float64(v))
	case float64:
		return epochMillisMoment(v)
	default:
		return Moment{Kind: MomentInvalid}
	}
}

func parseMomentString(raw string, loc *time.Location) Moment {
	value := strings.TrimSpace(raw)
	if value == "" {
		return Moment{Kind: MomentInvalid, Raw: raw}
	}
	if m := dateTimePattern.FindStringSubmatch(value); m != nil {
		day, month, year := atoi(m[1]), atoi(m[2]), atoi(m[3])
		hour, minute := atoi(m[4]), atoi(m[5])
		return Moment{
			Kind: MomentDateTime,
			Time: time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc),
			Raw:  raw,
		}
	}
	if m := datePattern.FindStringSubmatch(value); m != nil {
		day, month, year := atoi(m[1]), atoi(m[2]), atoi(m[3])
		return Moment{
			Kind: MomentDate,
			Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc),
			Raw:  raw,
		}
	}
	for _, layout := range genericLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return Moment{Kind: MomentGeneric, Time: t, Raw: raw}
		}
	}
	return Moment{Kind: MomentInvalid, Raw: raw}
}

func epochMillisMoment(ms float64) Moment {
	if math.IsNaN(ms) || math.IsInf(ms, 0) {
		return Moment{Kind: MomentInvalid}
	}
	return Moment{Kind: MomentGeneric, Time: time.UnixMilli(int64(ms))}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// Valid reports whether the moment resolved to a point in time.
func (m Moment) Valid() bool {
	return m.Kind != MomentInvalid
}

// Format renders the moment as "dd/mm/yyyy hh:mm" in loc, or "Invalid Date".
func (m Moment) Format(loc *time.Location) string {
	if !m.Valid() {
		return InvalidMomentText
	}
	t := m.Time
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(MomentDisplayLayout)
}

// Value returns the representation to persist: the timestamp for structured
// moments, the original text otherwise.
func (m Moment) Value() any {
	if m.Kind == MomentTimestamp {
		return m.Time
	}
	if m.Raw != "" {
		return m.Raw
	}
	if m.Valid() {
		return m.Time
	}
	return nil
}

// Text returns the original string when present, otherwise the formatted moment.
func (m Moment) Text(loc *time.Location) string {
	if m.Raw != "" {
		return m.Raw
	}
	return m.Format(loc)
}

// OrderDateNow captures the display order date the way order entry records it.
func OrderDateNow(now time.Time, loc *time.Location) Moment {
	if loc == nil {
		loc = saoPaulo
	}
	return ParseMomentIn(now.In(loc).Format(OrderDateLayout), loc)
}
