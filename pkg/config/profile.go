package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const DefaultTitle = "Digital Forensics & Incident Response Analyst"

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^[\+]?[1-9][\d]{0,15}$`)
	phoneStrip   = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "")
)

// AnalystProfile identifies the person a report is attributed to.
type AnalystProfile struct {
	Name               string `yaml:"name,omitempty" json:"analystName"`
	Organization       string `yaml:"organization,omitempty" json:"organization"`
	Email              string `yaml:"email,omitempty" json:"email"`
	Phone              string `yaml:"phone,omitempty" json:"phone"`
	Title              string `yaml:"title,omitempty" json:"title"`
	Certifications     string `yaml:"certifications,omitempty" json:"certifications"`
	BadgeNumber        string `yaml:"badge_number,omitempty" json:"badgeNumber"`
	IncludeContactInfo bool   `yaml:"include_contact_info" json:"includeContactInfo"`
}

// Validate checks the email and phone formats when present.
func (p AnalystProfile) Validate() error {
	var errs []error
	if p.Email != "" && !emailPattern.MatchString(p.Email) {
		errs = append(errs, fmt.Errorf("invalid email address: %q", p.Email))
	}
	if p.Phone != "" && !phonePattern.MatchString(phoneStrip.Replace(p.Phone)) {
		errs = append(errs, fmt.Errorf("invalid phone number: %q", p.Phone))
	}
	return errors.Join(errs...)
}

// Attribution renders the analyst block appended to full reports. An empty
// profile yields an empty string.
func (p AnalystProfile) Attribution() string {
	if p.Name == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Analyst Information\n\n")
	fmt.Fprintf(&b, "**Analyst:** %s\n", p.Name)
	title := p.Title
	if title == "" {
		title = DefaultTitle
	}
	fmt.Fprintf(&b, "**Title:** %s\n", title)
	if p.Organization != "" {
		fmt.Fprintf(&b, "**Organization:** %s\n", p.Organization)
	}
	if p.Certifications != "" {
		fmt.Fprintf(&b, "**Certifications:** %s\n", p.Certifications)
	}
	if p.BadgeNumber != "" {
		fmt.Fprintf(&b, "**Badge/ID Number:** %s\n", p.BadgeNumber)
	}
	if p.IncludeContactInfo {
		if p.Email != "" {
			fmt.Fprintf(&b, "**Email:** %s\n", p.Email)
		}
		if p.Phone != "" {
			fmt.Fprintf(&b, "**Phone:** %s\n", p.Phone)
		}
	}
	return b.String()
}
