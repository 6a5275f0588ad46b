// Package export turns stored leads into a downloadable spreadsheet.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/example/bannerdesk/internal/store"
)

const (
	SheetName   = "Customers"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	notSelected = "미선택"
	agreed      = "동의"
	declined    = "미동의"
)

var CustomerHeader = []string{"이름", "전화번호", "이메일", "휴대폰기종", "통신사옵션", "개인정보동의", "마케팅동의", "신청일시"}

// CustomerRows flattens leads into rows matching CustomerHeader. Timestamps
// are rendered in loc.
func CustomerRows(customers []store.Customer, loc *time.Location) [][]string {
	if loc == nil {
		loc = time.UTC
	}
	rows := make([][]string, 0, len(customers))
	for _, c := range customers {
		rows = append(rows, []string{
			c.Name,
			c.Phone,
			c.Email,
			orDefault(c.PhoneOption),
			orDefault(c.CarrierOption),
			consent(c.PrivacyConsent),
			consent(c.MarketingConsent),
			FormatTimestamp(c.CreatedAt.In(loc)),
		})
	}
	return rows
}

// FormatTimestamp renders t the way Korean locale clocks read,
// e.g. "2025. 1. 2. 오후 3:04:05".
func FormatTimestamp(t time.Time) string {
	meridiem := "오전"
	if t.Hour() >= 12 {
		meridiem = "오후"
	}
	hour := t.Hour() % 12
	if hour == 0 {
		hour = 12
	}
	return fmt.Sprintf("%d. %d. %d. %s %d:%02d:%02d", t.Year(), int(t.Month()), t.Day(), meridiem, hour, t.Minute(), t.Second())
}

// WriteXLSX writes a single-sheet workbook with header as the first row.
func WriteXLSX(w io.Writer, sheet string, header []string, rows [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	if err := setRow(f, sheet, 1, header); err != nil {
		return err
	}
	for i, row := range rows {
		if err := setRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(sheet, "A", columnName(len(header)), 18); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// FileName is the download name for an export taken at now.
func FileName(now time.Time) string {
	return "고객데이터_" + now.Format(time.DateOnly) + ".xlsx"
}

func setRow(f *excelize.File, sheet string, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	vals := make([]any, len(values))
	for i, v := range values {
		vals[i] = v
	}
	if err := f.SetSheetRow(sheet, cell, &vals); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}

func columnName(n int) string {
	if n < 1 {
		n = 1
	}
	name, err := excelize.ColumnNumberToName(n)
	if err != nil {
		return "A"
	}
	return name
}

func orDefault(v string) string {
	if v == "" {
		return notSelected
	}
	return v
}

func consent(v bool) string {
	if v {
		return agreed
	}
	return declined
}
