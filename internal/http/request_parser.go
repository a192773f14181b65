package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"kharcha/internal/core"
)

const maxBodyBytes = 1 << 20

// errMalformed marks a request the server could not read at all, as
// opposed to one that breaks a business rule.
var errMalformed = errors.New("malformed request")

// ParsePeriodParams reads year and month from the query. Missing values
// default to now; a period with withMonth false is the whole year.
func ParsePeriodParams(query url.Values, now time.Time, withMonth bool) (core.Period, error) {
	year := now.Year()
	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return core.Period{}, core.Invalid("year", core.ErrInvalidPeriod)
		}
		year = y
	}
	if !withMonth {
		p := core.YearPeriod(year)
		return p, p.Validate()
	}

	month := int(now.Month())
	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return core.Period{}, core.Invalid("month", core.ErrInvalidPeriod)
		}
		month = m
	}
	p := core.MonthPeriod(year, month)
	return p, p.Validate()
}

// decodeJSON reads a single JSON object into dst, rejecting unknown
// fields and oversized bodies.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", errMalformed, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return fmt.Errorf("%w: empty body", errMalformed)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var ve *core.ValidationError
		if errors.As(err, &ve) {
			return err
		}
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data", errMalformed)
	}
	return nil
}

// amountParam accepts integer minor units (1250) or a decimal string in
// major units ("12.50").
type amountParam struct {
	core.Money
}

func (a *amountParam) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if strings.HasPrefix(s, `"`) {
		var text string
		if err := json.Unmarshal(b, &text); err != nil {
			return err
		}
		m, err := core.NewMoney(text)
		if err != nil {
			return core.Invalid("amount", err)
		}
		a.Money = m
		return nil
	}
	cents, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return core.Invalid("amount", core.ErrInvalidAmount)
	}
	a.Money = core.Money{Cents: cents}
	return nil
}

// dateParam is a YYYY-MM-DD date.
type dateParam struct {
	core.Date
}

func (d *dateParam) UnmarshalJSON(b []byte) error {
	var text string
	if err := json.Unmarshal(b, &text); err != nil {
		return core.Invalid("date", core.ErrInvalidDate)
	}
	parsed, err := core.ParseDate(strings.TrimSpace(text))
	if err != nil {
		return core.Invalid("date", core.ErrInvalidDate)
	}
	d.Date = parsed
	return nil
}

// sanitizeInput removes control characters except tab and newlines, then
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

func sanitizePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := sanitizeInput(*s)
	return &v
}
