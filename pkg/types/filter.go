package types

// MaxWeeklyHours bounds an open-ended working-hours filter.
const MaxWeeklyHours = 168

// Filter is a structured, per-request job query. Empty fields impose no constraint.
type Filter struct {
	Search       string   `json:"search,omitempty"`
	Types        []string `json:"types,omitempty"`
	Fields       []string `json:"fields,omitempty"`
	Domains      []string `json:"domains,omitempty"`
	Homeoffice   []string `json:"homeoffice,omitempty"`
	WorkingHours *[2]int  `json:"working_hours,omitempty"`
	JobIDs       []string `json:"job_ids,omitempty"`
}

// IsEmpty reports whether the filter imposes no constraint at all.
func (f *Filter) IsEmpty() bool {
	return f.Search == "" &&
		len(f.Types) == 0 &&
		len(f.Fields) == 0 &&
		len(f.Domains) == 0 &&
		len(f.Homeoffice) == 0 &&
		f.WorkingHours == nil &&
		len(f.JobIDs) == 0
}

// HoursFrom returns an open-ended working-hours range starting at v.
func HoursFrom(v int) *[2]int {
	return &[2]int{v, MaxWeeklyHours}
}
