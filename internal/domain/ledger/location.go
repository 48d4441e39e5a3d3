package ledger

import "strings"

const locationSeparator = "/"

// Location identifies where stock is held: a site, optionally narrowed to a zone
// and a bin within that zone.
type Location struct {
	Site string `json:"site"`
	Zone string `json:"zone,omitempty"`
	Bin  string `json:"bin,omitempty"`
}

// NewLocation validates and creates a location
func NewLocation(site, zone, bin string) (Location, error) {
	loc := Location{
		Site: strings.TrimSpace(site),
		Zone: strings.TrimSpace(zone),
		Bin:  strings.TrimSpace(bin),
	}
	if err := loc.Validate(); err != nil {
		return Location{}, err
	}
	return loc, nil
}

// ParseLocation parses a "site/zone/bin" code; zone and bin are optional
func ParseLocation(code string) (Location, error) {
	parts := strings.Split(strings.TrimSpace(code), locationSeparator)
	if len(parts) > 3 {
		return Location{}, invalidLocation("%q has more than three segments", code)
	}
	for len(parts) < 3 {
		parts = append(parts, "")
	}
	return NewLocation(parts[0], parts[1], parts[2])
}

// Validate checks the location hierarchy
func (l Location) Validate() error {
	if l.Site == "" {
		return invalidLocation("site is required")
	}
	if l.Bin != "" && l.Zone == "" {
		return invalidLocation("bin %q requires a zone", l.Bin)
	}
	for _, part := range []string{l.Site, l.Zone, l.Bin} {
		for _, reserved := range []string{locationSeparator, keySeparator, keyWildcard} {
			if strings.Contains(part, reserved) {
				return invalidLocation("segment %q contains %q", part, reserved)
			}
		}
	}
	return nil
}

// IsZero reports whether the location is unset
func (l Location) IsZero() bool {
	return l.Site == "" && l.Zone == "" && l.Bin == ""
}

// Code returns the canonical "site/zone/bin" form without trailing empty segments
func (l Location) Code() string {
	switch {
	case l.Bin != "":
		return l.Site + locationSeparator + l.Zone + locationSeparator + l.Bin
	case l.Zone != "":
		return l.Site + locationSeparator + l.Zone
	default:
		return l.Site
	}
}

// String implements fmt.Stringer
func (l Location) String() string {
	return l.Code()
}

// Contains reports whether other lies within l. A site contains all of its
// zones and bins; a zone contains all of its bins.
func (l Location) Contains(other Location) bool {
	if l.Site != other.Site {
		return false
	}
	if l.Zone != "" && l.Zone != other.Zone {
		return false
	}
	if l.Bin != "" && l.Bin != other.Bin {
		return false
	}
	return true
}
