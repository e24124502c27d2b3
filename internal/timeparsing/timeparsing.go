// Package timeparsing turns user-entered date strings into calendar dates.
// It accepts ISO dates (2026-09-15) and natural language ("tomorrow",
// "next friday", "in 2 weeks") via the when parser.
package timeparsing

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/edavis10/issuekit/internal/types"
)

var parser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// ParseDate resolves input to a date relative to now. Empty input returns
// nil without error, matching the "clear this date" convention of edits.
func ParseDate(input string, now time.Time) (*types.Date, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, nil
	}
	if d, err := types.ParseDate(input); err == nil {
		return &d, nil
	}
	result, err := parser.Parse(input, now)
	if err != nil || result == nil {
		return nil, fmt.Errorf("unrecognized date %q (use YYYY-MM-DD or e.g. \"next friday\")", input)
	}
	d := types.DateOf(result.Time)
	return &d, nil
}
