// internal/pipeline/understand/salary.go
package understand

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// salaryPattern matches salary expressions like "25k", "25-35k", "3万",
// "1.5万-2万" and "年薪36万". The annual marker may precede the number.
var salaryPattern = regexp.MustCompile(`(年薪)?\s*(\d+(?:\.\d+)?)\s*(k|K|万)?\s*(?:[-~至])\s*(\d+(?:\.\d+)?)\s*(k|K|万)|(年薪)?\s*(\d+(?:\.\d+)?)\s*(k|K|万)`)

// ParseSalaryRange extracts a monthly salary range from free text. All
// figures are converted to monthly currency units at parse time: "k" means
// thousands, "万" ten-thousands, and an annual figure ("年薪") is divided
// by 12. A single concrete number fills both ends of the range. Returns
// nil, nil when the text carries no salary expression.
func ParseSalaryRange(text string) (*int, *int) {
	m := salaryPattern.FindStringSubmatch(text)
	if m == nil {
		return nil, nil
	}

	// Range form: groups 1-5. Single form: groups 6-8.
	if m[2] != "" && m[4] != "" {
		annual := m[1] != ""
		unit := m[5]
		if m[3] != "" {
			unit = m[3]
		}
		min := toMonthly(m[2], unit, annual)
		max := toMonthly(m[4], m[5], annual)
		if min > max {
			min, max = max, min
		}
		return &min, &max
	}

	if m[7] != "" {
		annual := m[6] != ""
		v := toMonthly(m[7], m[8], annual)
		return &v, &v
	}

	return nil, nil
}

func toMonthly(num, unit string, annual bool) int {
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	switch strings.ToLower(unit) {
	case "k":
		v *= 1000
	case "万":
		v *= 10000
	}
	if annual {
		v /= 12
	}
	return int(math.Round(v))
}
