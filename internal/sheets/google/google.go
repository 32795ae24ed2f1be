// Package google writes the payment ledger to a Google Sheets spreadsheet.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"nasiya/internal/core"
	ports "nasiya/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const defaultSheetName = "Payments"

var header = []interface{}{
	"ID", "Recorded at", "Debtor ID", "Debtor", "Date", "Time",
	"Amount", "Applied", "Duration (months)", "Note", "Images",
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// base name without year (e.g. "Payments"); the payment's year is prefixed.
	sheetBase string
	now       func() time.Time
}

var _ ports.PaymentLedger = (*Client)(nil)

// New creates a client over an existing Sheets service.
func New(svc *gsheet.Service, spreadsheetID, sheetBase string) *Client {
	if strings.TrimSpace(sheetBase) == "" {
		sheetBase = defaultSheetName
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetBase: sheetBase, now: time.Now}
}

// NewFromEnv creates a Sheets client from the environment.
// Required: GOOGLE_SPREADSHEET_ID.
// Optional: GOOGLE_SHEET_NAME (default "Payments").
// Credentials: GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS.
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return New(svc, spreadsheetID, os.Getenv("GOOGLE_SHEET_NAME")), nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// AppendPayment writes one row per payment to "<year> <sheet>". A payment id
// already present in column A is not written again.
func (c *Client) AppendPayment(ctx context.Context, row ports.LedgerRow) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if row.PaymentID <= 0 {
		return "", errors.New("ledger row without payment id")
	}

	sheet := yearPrefixedName(c.sheetBase, c.yearOf(row.Date))

	ids, err := c.readIDs(ctx, sheet)
	if err != nil {
		return "", err
	}
	want := strconv.FormatInt(row.PaymentID, 10)
	for i, id := range ids {
		if id == want {
			ref := fmt.Sprintf("%s!A%d", quoteSheet(sheet), i+1)
			slog.InfoContext(ctx, "Payment already in ledger", "payment_id", row.PaymentID, "ref", ref)
			return ref, nil
		}
	}

	values := [][]interface{}{toValues(row)}
	if len(ids) == 0 {
		values = append([][]interface{}{header}, values...)
	}

	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, quoteSheet(sheet)+"!A:K",
		&gsheet.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("append payment %d: %w", row.PaymentID, err)
	}

	ref := ""
	if resp.Updates != nil {
		ref = resp.Updates.UpdatedRange
	}
	slog.InfoContext(ctx, "Payment appended to ledger",
		"payment_id", row.PaymentID,
		"debtor_id", row.DebtorID,
		"amount", row.Amount,
		"ref", ref)
	return ref, nil
}

func (c *Client) readIDs(ctx context.Context, sheet string) ([]string, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, quoteSheet(sheet)+"!A:A").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("read ledger ids: %w", err)
	}
	ids := make([]string, 0, len(resp.Values))
	for _, r := range resp.Values {
		if len(r) == 0 {
			ids = append(ids, "")
			continue
		}
		ids = append(ids, strings.TrimSpace(fmt.Sprint(r[0])))
	}
	return ids, nil
}

func (c *Client) yearOf(date string) int {
	if t, err := time.Parse(core.DateLayout, date); err == nil {
		return t.Year()
	}
	return c.now().Year()
}

func toValues(r ports.LedgerRow) []interface{} {
	recorded := ""
	if !r.RecordedAt.IsZero() {
		recorded = r.RecordedAt.UTC().Format(time.RFC3339)
	}
	return []interface{}{
		strconv.FormatInt(r.PaymentID, 10),
		recorded,
		r.DebtorID,
		r.DebtorName,
		r.Date,
		r.Time,
		r.Amount,
		r.Applied,
		r.DurationMonths,
		r.Note,
		r.Images,
	}
}

// quoteSheet wraps a sheet name for A1 notation.
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
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
