package registry

import "strings"

// joinCSV joins values with commas, skipping empty entries, matching the
// *_csv columns documented in spec §3.
func joinCSV(values []string) string {
	kept := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			kept = append(kept, v)
		}
	}
	return strings.Join(kept, ",")
}

// splitCSV splits a comma-separated column value, dropping empty entries
// produced by a leading/trailing/double comma.
func splitCSV(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
