package monitor

import "strings"

// MemberStatus is the closed set of membership states the platform
// reports. Raw status strings are parsed once at the boundary; anything
// unrecognized becomes StatusUnknown.
type MemberStatus int

const (
	StatusUnknown MemberStatus = iota
	StatusCreator
	StatusAdministrator
	StatusMember
	StatusRestricted
	StatusLeft
	StatusKicked
)

func ParseMemberStatus(s string) MemberStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "creator":
		return StatusCreator
	case "administrator":
		return StatusAdministrator
	case "member":
		return StatusMember
	case "restricted":
		return StatusRestricted
	case "left":
		return StatusLeft
	case "kicked", "banned":
		return StatusKicked
	default:
		return StatusUnknown
	}
}

// InChat reports whether the status means the user is currently inside the
// channel. Restricted users are still members.
func (s MemberStatus) InChat() bool {
	switch s {
	case StatusCreator, StatusAdministrator, StatusMember, StatusRestricted:
		return true
	default:
		return false
	}
}

func (s MemberStatus) String() string {
	switch s {
	case StatusCreator:
		return "creator"
	case StatusAdministrator:
		return "administrator"
	case StatusMember:
		return "member"
	case StatusRestricted:
		return "restricted"
	case StatusLeft:
		return "left"
	case StatusKicked:
		return "kicked"
	default:
		return "unknown"
	}
}
