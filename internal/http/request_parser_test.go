package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"kharcha/internal/core"
)

func TestParsePeriodParams(t *testing.T) {
	now := time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		query     url.Values
		withMonth bool
		want      core.Period
		wantErr   bool
	}{
		{name: "both values", query: url.Values{"year": {"2024"}, "month": {"12"}}, withMonth: true, want: core.MonthPeriod(2024, 12)},
		{name: "defaults to now", query: url.Values{}, withMonth: true, want: core.MonthPeriod(2025, 7)},
		{name: "only month", query: url.Values{"month": {"5"}}, withMonth: true, want: core.MonthPeriod(2025, 5)},
		{name: "year view ignores month", query: url.Values{"year": {"2023"}, "month": {"2"}}, want: core.YearPeriod(2023)},
		{name: "month out of range", query: url.Values{"month": {"13"}}, withMonth: true, wantErr: true},
		{name: "non numeric month", query: url.Values{"month": {"abc"}}, withMonth: true, wantErr: true},
		{name: "non numeric year", query: url.Values{"year": {"twenty"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePeriodParams(tt.query, now, tt.withMonth)
			if tt.wantErr {
				if !core.IsValidation(err) {
					t.Fatalf("err = %v, want validation error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("period = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Amount amountParam `json:"amount"`
		Date   dateParam   `json:"date"`
		Item   string      `json:"item"`
	}

	decode := func(body string) (payload, error) {
		var p payload
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		err := decodeJSON(httptest.NewRecorder(), req, &p)
		return p, err
	}

	p, err := decode(`{"amount": "12.50", "date": "2025-03-01", "item": "Lunch"}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Amount.Cents != 1250 || p.Date.String() != "2025-03-01" || p.Item != "Lunch" {
		t.Errorf("decoded %+v", p)
	}

	p, err = decode(`{"amount": 990}`)
	if err != nil || p.Amount.Cents != 990 {
		t.Errorf("cents amount: %+v, %v", p, err)
	}

	for _, body := range []string{``, `not json`, `{"unknown": 1}`, `{} {}`} {
		if _, err := decode(body); !errors.Is(err, errMalformed) {
			t.Errorf("decode(%q) err = %v, want malformed", body, err)
		}
	}

	_, err = decode(`{"amount": "abc"}`)
	if !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("bad amount err = %v", err)
	}
	_, err = decode(`{"date": "2025-02-30"}`)
	if !errors.Is(err, core.ErrInvalidDate) {
		t.Errorf("bad date err = %v", err)
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct{ in, want string }{
		{"  hello  ", "hello"},
		{"a\x00b\x07c", "abc"},
		{"line1\nline2\ttab", "line1\nline2\ttab"},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.in); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
