package routequota

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

const barLength = 40

// Render writes the operator view of the status: usage, a progress bar and
// exhausted/low warnings per API.
func (s Status) Render(w io.Writer, lowQuotaWarning int) error {
	rule := strings.Repeat("=", 60)
	var b strings.Builder

	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "API QUOTA STATUS")
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "Month: %s\n", s.Month)
	if !s.ResetAt.IsZero() {
		fmt.Fprintf(&b, "Resets: %s\n", s.ResetAt.Format("2006-01-02 15:04 MST"))
	}
	fmt.Fprintln(&b)

	names := make([]string, 0, len(s.APIs))
	for api := range s.APIs {
		names = append(names, api)
	}
	sort.Strings(names)

	for _, api := range names {
		st := s.APIs[api]
		fmt.Fprintf(&b, "%s:\n", strings.ToUpper(api))
		fmt.Fprintf(&b, "  Used:      %d/%d (%.1f%%)\n", st.Used, st.Total, st.Percentage)
		fmt.Fprintf(&b, "  Remaining: %d\n", st.Remaining)
		fmt.Fprintf(&b, "  [%s]\n", progressBar(st.Used, st.Total))

		switch {
		case st.Remaining <= 0:
			fmt.Fprintln(&b, "  QUOTA EXHAUSTED - Resets next month")
		case st.Remaining <= lowQuotaWarning:
			fmt.Fprintf(&b, "  LOW QUOTA - %d requests left\n", st.Remaining)
		}
		fmt.Fprintln(&b)
	}
	fmt.Fprintln(&b, rule)

	_, err := io.WriteString(w, b.String())
	return err
}

func progressBar(used, total int) string {
	filled := 0
	if total > 0 {
		filled = barLength * used / total
	} else if used > 0 {
		filled = barLength
	}
	if filled < 0 {
		filled = 0
	}
	if filled > barLength {
		filled = barLength
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", barLength-filled)
}
