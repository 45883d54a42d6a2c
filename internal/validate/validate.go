package validate

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
)

// ZFS refuses names of 256 bytes or more.
const maxNameLen = 255

var (
	rePool    = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.:-]*$`)
	reOptions = regexp.MustCompile(`^[[:graph:]]+$`)

	ErrBadPool    = errors.New("invalid pool name")
	ErrBadArg     = errors.New("not usable as a zpool argument")
	ErrBadValue   = errors.New("not usable in a unit file")
	ErrBadOptions = errors.New("invalid mount options")
)

// PoolName checks s against the ZFS pool naming rules. Anything that
// passes is also safe to place on an ExecStart= line unquoted.
func PoolName(s string) error {
	if len(s) > maxNameLen || !rePool.MatchString(s) {
		return ErrBadPool
	}
	return nil
}

// ImportArg accepts s when it reaches zpool import as exactly one
// non-option argument: it must be non-empty, must not start with '-'
// and must not contain whitespace or control characters.
func ImportArg(s string) error {
	if s == "" || strings.HasPrefix(s, "-") {
		return ErrBadArg
	}
	if strings.IndexFunc(s, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) }) > -1 {
		return ErrBadArg
	}
	return nil
}

// UnitValue rejects control characters, which would end the current
// line of a unit file and start a new one.
func UnitValue(s string) error {
	if strings.IndexFunc(s, unicode.IsControl) > -1 {
		return ErrBadValue
	}
	return nil
}

// MountOptions rejects whitespace and control characters, which would
// break the Options= line of a mount unit.
func MountOptions(s string) error {
	if !reOptions.MatchString(s) {
		return ErrBadOptions
	}
	return nil
}
