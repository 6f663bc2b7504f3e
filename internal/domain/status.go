package domain

import (
	"fmt"
	"strings"
)

// StatusName identifies a worker status flag as shown on the balancer-manager page.
type StatusName string

const (
	StatusOK           StatusName = "ok"
	StatusError        StatusName = "error"
	StatusIgnoreErrors StatusName = "ignore_errors"
	StatusDrainingMode StatusName = "draining_mode"
	StatusDisabled     StatusName = "disabled"
	StatusHotStandby   StatusName = "hot_standby"
	StatusHotSpare     StatusName = "hot_spare"
	StatusStopped      StatusName = "stopped"
)

// LegacyDisableCode is the 2.2.x query parameter toggling the disabled flag.
const LegacyDisableCode = "dw"

// hot_spare ("R") first appears in 2.4.34.
var hotSpareSince = Version{Major: 2, Minor: 4, Patch: 34}

// Status is one flag of a route.
// Mutable statuses carry the form code used to submit a change.
type Status struct {
	Name     StatusName
	Value    bool
	Mutable  bool
	FormCode string
}

// StatusSpec describes a status as it exists for a given httpd version.
type StatusSpec struct {
	Name     StatusName
	Mutable  bool
	FormCode string // empty for read-only statuses

	// PageCode is the short code printed in the route Status cell.
	PageCode string
}

// StatusesFor returns the statuses a balancer-manager page of version v can
// display, in page order. Statuses missing from the result are absent for v.
func StatusesFor(v Version) []StatusSpec {
	specs := []StatusSpec{
		{Name: StatusOK, PageCode: "Ok"},
		{Name: StatusError, PageCode: "Err"},
	}

	switch {
	case v.Legacy():
		return append(specs,
			StatusSpec{Name: StatusDisabled, Mutable: true, FormCode: LegacyDisableCode, PageCode: "Dis"},
			StatusSpec{Name: StatusHotStandby, PageCode: "Stby"},
			StatusSpec{Name: StatusStopped, PageCode: "Stop"},
		)
	case v.Major == 2 && v.Minor == 4:
		specs = append(specs,
			StatusSpec{Name: StatusIgnoreErrors, Mutable: true, FormCode: "I", PageCode: "Ign"},
			StatusSpec{Name: StatusDrainingMode, Mutable: true, FormCode: "N", PageCode: "Drn"},
			StatusSpec{Name: StatusDisabled, Mutable: true, FormCode: "D", PageCode: "Dis"},
			StatusSpec{Name: StatusHotStandby, Mutable: true, FormCode: "H", PageCode: "Stby"},
		)
		if v.AtLeast(hotSpareSince) {
			specs = append(specs,
				StatusSpec{Name: StatusHotSpare, Mutable: true, FormCode: "R", PageCode: "Spar"})
		}
		return append(specs,
			StatusSpec{Name: StatusStopped, Mutable: true, FormCode: "S", PageCode: "Stop"})
	default:
		return nil
	}
}

// MutableStatusesFor returns the statuses an edit may change on version v.
func MutableStatusesFor(v Version) []StatusName {
	var names []StatusName
	for _, s := range StatusesFor(v) {
		if s.Mutable {
			names = append(names, s.Name)
		}
	}
	return names
}

// StatusSpecFor looks up a single status for version v.
func StatusSpecFor(v Version, name StatusName) (StatusSpec, bool) {
	for _, s := range StatusesFor(v) {
		if s.Name == name {
			return s, true
		}
	}
	return StatusSpec{}, false
}

// CheckMutable returns an UnsupportedVersionError when name cannot be
// changed through the balancer-manager of version v.
func CheckMutable(v Version, name StatusName) error {
	spec, ok := StatusSpecFor(v, name)
	if !ok || !spec.Mutable {
		return &UnsupportedVersionError{Version: v, Status: name}
	}
	return nil
}

// KnownStatusNames lists every status name any supported version can expose.
func KnownStatusNames() []StatusName {
	return []StatusName{
		StatusOK, StatusError, StatusIgnoreErrors, StatusDrainingMode,
		StatusDisabled, StatusHotStandby, StatusHotSpare, StatusStopped,
	}
}

// IsMutableName reports whether name is mutable on at least one supported version.
func IsMutableName(name StatusName) bool {
	switch name {
	case StatusIgnoreErrors, StatusDrainingMode, StatusDisabled,
		StatusHotStandby, StatusHotSpare, StatusStopped:
		return true
	}
	return false
}

// ParseStatusName normalises user input ("Draining-Mode", "disabled") to a StatusName.
func ParseStatusName(s string) (StatusName, error) {
	n := StatusName(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	for _, known := range KnownStatusNames() {
		if n == known {
			return n, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}
