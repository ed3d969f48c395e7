package sqlstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/warp/tour-engine/engine"
	"github.com/warp/tour-engine/tours"
)

// timeLayout is fixed width, so text comparison orders instants.
const timeLayout = "2006-01-02T15:04:05.000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: time %q: %v", ErrDecode, s, err)
	}
	return t, nil
}

type lineRow struct {
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

func encodeLines(lines []tours.Line) (string, error) {
	rows := make([]lineRow, len(lines))
	for i, l := range lines {
		rows[i] = lineRow{Name: l.Name, UnitPrice: l.UnitPrice.Int64(), Quantity: l.Quantity}
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("%w: lines: %v", ErrDecode, err)
	}
	return string(b), nil
}

func decodeLines(s string) ([]tours.Line, error) {
	var rows []lineRow
	if err := json.Unmarshal([]byte(s), &rows); err != nil {
		return nil, fmt.Errorf("%w: lines: %v", ErrDecode, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	lines := make([]tours.Line, len(rows))
	for i, r := range rows {
		lines[i] = tours.Line{Name: r.Name, UnitPrice: engine.Money(r.UnitPrice), Quantity: r.Quantity}
	}
	return lines, nil
}
