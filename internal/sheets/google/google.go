// Package google mirrors record events into a Google Sheets spreadsheet,
// one yearly tab per base sheet name ("2025 Records").
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"kharcha/internal/log"
	"kharcha/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Config locates the spreadsheet and its credentials. CredentialsJSON
// wins over CredentialsFile.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

type RecordSheet struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetBase     string

	mu      sync.Mutex
	headers map[string]bool // tabs whose header row is known to exist
}

var _ sheets.RowWriter = (*RecordSheet)(nil)

// New creates a RecordSheet authenticated with a service account.
func New(ctx context.Context, cfg Config) (*RecordSheet, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return newRecordSheet(svc, cfg.SpreadsheetID, cfg.SheetName), nil
}

func newRecordSheet(svc *gsheet.Service, spreadsheetID, sheetBase string) *RecordSheet {
	if strings.TrimSpace(sheetBase) == "" {
		sheetBase = "Records"
	}
	return &RecordSheet{
		svc:           svc,
		spreadsheetID: strings.TrimSpace(spreadsheetID),
		sheetBase:     sheetBase,
		headers:       make(map[string]bool),
	}
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(cfg.CredentialsJSON)
	serviceAccountFile := strings.TrimSpace(cfg.CredentialsFile)

	var credentialsJSON []byte
	var err error

	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials", log.FieldComponent, log.ComponentSheets)
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		slog.InfoContext(ctx, "Reading credentials from file",
			log.FieldComponent, log.ComponentSheets,
			"path", serviceAccountFile)
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created successfully",
		log.FieldComponent, log.ComponentSheets,
		"credentials_size", len(credentialsJSON))
	return service, nil
}

// Append writes row below the last used line of the tab for the row's
// year, adding the header first when the tab is empty.
func (s *RecordSheet) Append(ctx context.Context, row sheets.Row) (string, error) {
	if s.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	year := row.Timestamp.Year()
	if !row.Date.IsZero() {
		year = row.Date.Year()
	}
	tab := yearPrefixedName(s.sheetBase, year)

	// Serialize appends so two events never claim the same row.
	s.mu.Lock()
	defer s.mu.Unlock()

	rng := fmt.Sprintf("'%s'!A:A", tab)
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("get sheet data: %w", err)
	}
	nextRow := len(resp.Values) + 1

	values := [][]any{row.Values()}
	if nextRow == 1 && !s.headers[tab] {
		values = [][]any{sheets.Header, row.Values()}
		nextRow = 2
	}
	s.headers[tab] = true

	first := nextRow - len(values) + 1
	writeRange := fmt.Sprintf("'%s'!A%d:%s%d", tab, first, lastColumn(), nextRow)
	_, err = s.svc.Spreadsheets.Values.Update(s.spreadsheetID, writeRange, &gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("write row: %w", err)
	}
	return fmt.Sprintf("%s!%d", tab, nextRow), nil
}

// lastColumn is the letter of the final header column.
func lastColumn() string {
	return string(rune('A' + len(sheets.Header) - 1))
}

// yearPrefixedName prefixes base with year unless base already starts
// with a four digit year and a space.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
