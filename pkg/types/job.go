package types

import (
	"errors"
	"time"
)

// Section is one titled block of a posting's long text.
type Section struct {
	Title string `json:"title,omitempty"`
	Text  string `json:"text,omitempty"`
}

// JobPosting is an ingested job advertisement. The ranking core only reads it.
type JobPosting struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	Company     string    `json:"company"`
	Location    string    `json:"location"`
	Country     string    `json:"country,omitempty"`
	DisplayText string    `json:"display_text,omitempty"`
	PublishedAt time.Time `json:"published_at"`

	Intro        Section `json:"intro"`
	Tasks        Section `json:"tasks"`
	Expectations Section `json:"expectations"`
	Offer        Section `json:"offer"`
	Contact      Section `json:"contact"`

	WorkingHoursMin int      `json:"working_hours_min"`
	WorkingHoursMax int      `json:"working_hours_max"`
	Types           []string `json:"types,omitempty"`
	Fields          []string `json:"fields,omitempty"`
	Domains         []string `json:"domains,omitempty"`
	Homeoffice      []string `json:"homeoffice,omitempty"`
}

// FieldText returns the raw text that is chunked for field.
func (j *JobPosting) FieldText(field FieldType) string {
	switch field {
	case FieldTitle:
		return j.Title
	case FieldSummary:
		return j.Summary
	case FieldIntro:
		return j.Intro.Text
	case FieldTasks:
		return j.Tasks.Text
	case FieldExpectations:
		return j.Expectations.Text
	case FieldOffer:
		return j.Offer.Text
	case FieldContact:
		return j.Contact.Text
	default:
		return ""
	}
}

// Validate checks the fields required for ingestion.
func (j *JobPosting) Validate() error {
	if j.ID == "" {
		return errors.New("job ID is required")
	}
	if j.Title == "" {
		return errors.New("job title is required")
	}
	if j.WorkingHoursMin < 0 || j.WorkingHoursMax < 0 {
		return errors.New("working hours must be >= 0")
	}
	if j.WorkingHoursMax < j.WorkingHoursMin {
		return errors.New("working hours max must be >= min")
	}
	return nil
}
