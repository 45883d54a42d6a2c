// Package generator turns the kernel command line into the ZFS import and
// sysroot mount units for the initrd.
package generator

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"nithronos/boot/zfsgen/internal/cmdline"
	"nithronos/boot/zfsgen/internal/rootspec"
	"nithronos/boot/zfsgen/internal/units"
	"nithronos/boot/zfsgen/internal/validate"
)

// Kernel command line parameters.
const (
	KeyRoot        = "root"
	KeyRootFlags   = "rootflags"
	KeyForce       = "zfs_force"
	KeyIgnoreCache = "zfs_ignorecache"
	KeyRPool       = "rpool"
	SwitchRW       = "rw"
)

// ErrQuery means a required parameter could not be read.
var ErrQuery = errors.New("kernel command line query failed")

// Query is the subset of *cmdline.Cmdline the generator needs.
type Query interface {
	Param(key string) (string, cmdline.Status, error)
	Switch(name string) (bool, error)
}

// Emitter is the subset of *units.Emitter the generator needs.
type Emitter interface {
	ScanImport(imp units.Import) error
	CacheImport(imp units.Import) error
	SysrootDropin(what, options string) error
}

// Plan is everything decided for one boot. A zero Plan has nothing to do.
type Plan struct {
	Root        rootspec.Spec `yaml:"root" json:"root"`
	Force       bool          `yaml:"force" json:"force"`
	ImportFlags string        `yaml:"importFlags" json:"importFlags"`
	IgnoreCache bool          `yaml:"ignoreCache" json:"ignoreCache"`
	RPool       string        `yaml:"rpool,omitempty" json:"rpool,omitempty"`
	ReadWrite   bool          `yaml:"readWrite" json:"readWrite"`
	What        string        `yaml:"what,omitempty" json:"what,omitempty"`
	Options     string        `yaml:"options,omitempty" json:"options,omitempty"`
}

// NothingToDo reports whether the boot is not a ZFS root boot.
func (p Plan) NothingToDo() bool { return !p.Root.IsZFS() }

// Import returns the variable parts of the import units.
func (p Plan) Import() units.Import {
	return units.Import{Pool: p.Root.Pool, Flags: p.ImportFlags, IgnoreCache: p.IgnoreCache}
}

// Decide reads the command line and works out the plan. Only root= is
// required; every other parameter falls back to a default when it cannot
// be read.
func Decide(q Query, log zerolog.Logger) (Plan, error) {
	raw, st, err := q.Param(KeyRoot)
	if err != nil {
		return Plan{}, fmt.Errorf("%w: %s=: %w", ErrQuery, KeyRoot, err)
	}
	switch st {
	case cmdline.StatusFound:
	case cmdline.StatusAbsent, cmdline.StatusNoValue:
		log.Info().Msg("no root= parameter specified, nothing to do")
		return Plan{}, nil
	default:
		return Plan{}, fmt.Errorf("%w: %s=: unexpected status %s", ErrQuery, KeyRoot, st)
	}

	spec, err := rootspec.Parse(raw)
	if err != nil {
		return Plan{}, err
	}
	if !spec.IsZFS() {
		log.Info().Str("root", raw).Msg("root= does not point to anything ZFS related, nothing to do")
		return Plan{Root: spec}, nil
	}

	p := Plan{Root: spec}

	// checked only now, there is no point before knowing this is a ZFS boot
	v, found := optional(q, KeyForce, log)
	p.Force = rootspec.Enabled(v, found)
	p.ImportFlags = rootspec.ImportFlags(p.Force)

	v, found = optional(q, KeyIgnoreCache, log)
	p.IgnoreCache = rootspec.IgnoreCache(v, found)

	if spec.Kind == rootspec.KindAuto {
		if v, found = optional(q, KeyRPool, log); found {
			if err := validate.PoolName(v); err != nil {
				return Plan{}, fmt.Errorf("%w: %s=%q: %v", rootspec.ErrMalformed, KeyRPool, v, err)
			}
			p.RPool = v
			log.Info().Str("pool", v).Msg("will use bootfs of pool")
		} else {
			log.Info().Msg("will use bootfs value of any pool")
		}
	}
	p.What = spec.What(p.RPool)

	base, hasBase := optional(q, KeyRootFlags, log)
	if hasBase {
		if err := validate.MountOptions(base); err != nil {
			log.Warn().Str("rootflags", base).Err(err).Msg("ignoring rootflags=, using defaults")
			base, hasBase = "", false
		}
	}
	rw, err := q.Switch(SwitchRW)
	if err != nil {
		log.Warn().Err(err).Msg("could not read rw switch, mounting read-only")
		rw = false
	}
	p.ReadWrite = rw
	p.Options = rootspec.MountOptions(base, hasBase, rw)

	log.Debug().
		Str("kind", spec.Kind.String()).
		Str("pool", spec.Pool).
		Str("what", p.What).
		Str("options", p.Options).
		Bool("ignoreCache", p.IgnoreCache).
		Bool("force", p.Force).
		Msg("plan decided")
	return p, nil
}

// optional reads a parameter that has a default. Read failures and
// statuses other than found are logged and reported as not found.
func optional(q Query, key string, log zerolog.Logger) (string, bool) {
	v, st, err := q.Param(key)
	if err != nil {
		log.Warn().Err(err).Str("param", key).Msg("could not read parameter, using default")
		return "", false
	}
	switch st {
	case cmdline.StatusFound:
		return v, true
	case cmdline.StatusAbsent, cmdline.StatusNoValue:
		return "", false
	default:
		log.Warn().Str("param", key).Stringer("status", st).Msg("unexpected parameter status, using default")
		return "", false
	}
}

// Apply writes the units for p. The scan unit is always attempted, the
// cache unit only when the cache is respected, then the sysroot drop-in.
// The first failure stops the run; units already written stay in place.
func Apply(p Plan, e Emitter, log zerolog.Logger) error {
	if p.NothingToDo() {
		return nil
	}
	imp := p.Import()
	if err := e.ScanImport(imp); err != nil {
		return err
	}
	if p.IgnoreCache {
		log.Info().Msg("zfs_ignorecache set, not generating cache import unit")
	} else if err := e.CacheImport(imp); err != nil {
		return err
	}
	return e.SysrootDropin(p.What, p.Options)
}

// Run decides and applies in one go.
func Run(q Query, e Emitter, log zerolog.Logger) error {
	p, err := Decide(q, log)
	if err != nil {
		return err
	}
	return Apply(p, e, log)
}
