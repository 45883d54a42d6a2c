package rootspec

import "strings"

const (
	optZfsutil = "zfsutil"
	optRO      = "ro"
	forceFlag  = " -f"
)

// MountOptions returns the Options= value for sysroot.mount. base is the
// rootflags= value and is only used when hasBase is set. zfsutil is added
// unless base already carries it as an option of its own, and ro is added
// unless the boot was requested read-write.
func MountOptions(base string, hasBase bool, readWrite bool) string {
	var opts []string
	if hasBase {
		opts = append(opts, base)
		if !hasOption(base, optZfsutil) {
			opts = append(opts, optZfsutil)
		}
	} else {
		opts = append(opts, optZfsutil)
	}
	if !readWrite {
		opts = append(opts, optRO)
	}
	return strings.Join(opts, ",")
}

func hasOption(opts, name string) bool {
	for _, o := range strings.Split(opts, ",") {
		if strings.TrimSpace(o) == name {
			return true
		}
	}
	return false
}

// ImportFlags returns the extra zpool import arguments. The result is
// appended directly to the command line, hence the leading space.
func ImportFlags(force bool) string {
	if force {
		return forceFlag
	}
	return ""
}

// Enabled reports whether a flag-style parameter such as zfs_force or
// zfs_ignorecache was set to exactly "1".
func Enabled(value string, found bool) bool {
	return found && value == "1"
}

// IgnoreCache reports whether pool import must skip the cache file. Only
// an explicit zfs_ignorecache=1 does; anything else respects the cache.
func IgnoreCache(value string, found bool) bool {
	return Enabled(value, found)
}
