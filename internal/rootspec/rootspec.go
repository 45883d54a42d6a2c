// Package rootspec classifies the root= kernel parameter and derives the
// pool, dataset, snapshot and mount options the initrd needs.
package rootspec

import (
	"errors"
	"fmt"
	"strings"

	"nithronos/boot/zfsgen/internal/validate"
)

const (
	// Prefix marks a root= value as a ZFS root.
	Prefix = "zfs:"
	// Auto selects whichever importable pool has bootfs set.
	Auto = "AUTO"
	// AnyPool is handed to zpool import in place of a pool name when the
	// pool is not known up front.
	AnyPool = "-a"
)

var ErrMalformed = errors.New("malformed zfs root specification")

type Kind int

const (
	KindNotZFS Kind = iota
	KindAuto
	KindExplicit
)

func (k Kind) String() string {
	switch k {
	case KindNotZFS:
		return "not-zfs"
	case KindAuto:
		return "auto"
	case KindExplicit:
		return "explicit"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Spec is a classified root= value. Snapshot is empty when none was given.
type Spec struct {
	Kind     Kind   `yaml:"kind" json:"kind"`
	Pool     string `yaml:"pool,omitempty" json:"pool,omitempty"`
	Dataset  string `yaml:"dataset,omitempty" json:"dataset,omitempty"`
	Snapshot string `yaml:"snapshot,omitempty" json:"snapshot,omitempty"`
}

func (s Spec) IsZFS() bool { return s.Kind != KindNotZFS }

// Parse classifies raw, the value of root=. Values without the zfs:
// prefix are KindNotZFS and never an error. The snapshot is everything
// after the first '@'. Only values that cannot be written into the units
// are rejected: an empty pool, a pool that would not reach zpool import
// as one plain argument, or control characters anywhere.
func Parse(raw string) (Spec, error) {
	rest, ok := strings.CutPrefix(raw, Prefix)
	if !ok {
		return Spec{Kind: KindNotZFS}, nil
	}
	if err := validate.UnitValue(rest); err != nil {
		return Spec{}, fmt.Errorf("%w: %q: %v", ErrMalformed, rest, err)
	}

	name, snap, _ := strings.Cut(rest, "@")
	if name == Auto {
		return Spec{Kind: KindAuto, Pool: AnyPool, Snapshot: snap}, nil
	}

	pool, _, _ := strings.Cut(name, "/")
	if err := validate.ImportArg(pool); err != nil {
		return Spec{}, fmt.Errorf("%w: pool %q: %v", ErrMalformed, pool, err)
	}
	return Spec{Kind: KindExplicit, Pool: pool, Dataset: name, Snapshot: snap}, nil
}

// What builds the What= value of the sysroot mount drop-in. rpool only
// matters for KindAuto, where it narrows the bootfs lookup to one pool.
func (s Spec) What(rpool string) string {
	var what string
	switch s.Kind {
	case KindAuto:
		what = Prefix + Auto
		if rpool != "" {
			what += ":" + rpool
		}
	case KindExplicit:
		what = s.Dataset
	default:
		return ""
	}
	if s.Snapshot != "" {
		what += "@" + s.Snapshot
	}
	return what
}
