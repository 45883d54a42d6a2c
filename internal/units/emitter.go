// Package units writes the systemd units that import the root pool and
// mount the root dataset in the initrd.
package units

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/rs/zerolog"

	"nithronos/boot/zfsgen/internal/fsatomic"
)

const (
	ImportTarget  = "initrd-root-device.target.wants"
	ScanUnit      = "zfs-import-scan.service"
	CacheUnit     = "zfs-import-cache.service"
	DropinDir     = "sysroot.mount.d"
	SysrootDropin = "zfs.conf"

	DefaultCacheFile = "/etc/zfs/zpool.cache"
	DefaultZpool     = "/usr/bin/zpool"

	dirPerm  = 0o775
	unitPerm = 0o644
)

// ErrArtifact wraps every failure that leaves a unit file unwritten.
var ErrArtifact = errors.New("unit artifact not written")

// Import carries the variable parts of the two pool import units.
type Import struct {
	Pool        string
	Flags       string
	IgnoreCache bool
}

// Emitter creates unit files under one generator output directory.
// Existing unit files are never overwritten, so running it again in the
// same boot only fills in what is missing.
type Emitter struct {
	dir       string
	cacheFile string
	zpool     string
	log       zerolog.Logger
}

type Option func(*Emitter)

// WithCacheFile changes the pool cache file the import units refer to.
func WithCacheFile(path string) Option {
	return func(e *Emitter) {
		if path != "" {
			e.cacheFile = path
		}
	}
}

// WithZpool changes the zpool binary used by ExecStart=.
func WithZpool(path string) Option {
	return func(e *Emitter) {
		if path != "" {
			e.zpool = path
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Emitter) { e.log = l }
}

func New(dir string, opts ...Option) *Emitter {
	e := &Emitter{
		dir:       dir,
		cacheFile: DefaultCacheFile,
		zpool:     DefaultZpool,
		log:       zerolog.Nop(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Emitter) Dir() string { return e.dir }

// artifact describes one file to emit. targetDir is relative to the
// output directory. Wanted units live in the output directory itself and
// are only symlinked into targetDir.
type artifact struct {
	targetDir string
	name      string
	wanted    bool
	tmpl      *template.Template
	vars      any
}

// ScanImport writes the unit importing pools by scanning devices. When
// the cache is respected it only runs if no cache file exists.
func (e *Emitter) ScanImport(imp Import) error {
	cond := ""
	if !imp.IgnoreCache {
		cond = "ConditionPathExists=!" + e.cacheFile
	}
	return e.emit(artifact{
		targetDir: ImportTarget,
		name:      ScanUnit,
		wanted:    true,
		tmpl:      scanTmpl,
		vars: importVars{
			Condition: cond,
			Zpool:     e.zpool,
			Pool:      imp.Pool,
			Flags:     imp.Flags,
		},
	})
}

// CacheImport writes the unit importing pools from the cache file.
// Callers skip it when the cache is ignored.
func (e *Emitter) CacheImport(imp Import) error {
	return e.emit(artifact{
		targetDir: ImportTarget,
		name:      CacheUnit,
		wanted:    true,
		tmpl:      cacheTmpl,
		vars: importVars{
			CacheFile: e.cacheFile,
			Zpool:     e.zpool,
			Pool:      imp.Pool,
			Flags:     imp.Flags,
		},
	})
}

// SysrootDropin writes the sysroot.mount drop-in pointing at the root
// dataset.
func (e *Emitter) SysrootDropin(what, options string) error {
	return e.emit(artifact{
		targetDir: DropinDir,
		name:      SysrootDropin,
		tmpl:      dropinTmpl,
		vars:      dropinVars{What: what, Options: options},
	})
}

func (e *Emitter) emit(a artifact) error {
	log := e.log.With().Str("unit", a.name).Logger()

	targetDir := filepath.Join(e.dir, a.targetDir)
	if err := fsatomic.MkdirExist(targetDir, dirPerm); err != nil {
		return fmt.Errorf("%w: %s: create directory %s: %w", ErrArtifact, a.name, targetDir, err)
	}

	unitPath := filepath.Join(targetDir, a.name)
	if a.wanted {
		link := unitPath
		if err := os.Symlink(filepath.Join("..", a.name), link); err != nil {
			// usually already there from an earlier run
			log.Debug().Err(err).Str("link", link).Msg("wants symlink not created")
		}
		unitPath = filepath.Join(e.dir, a.name)
	}

	if fsatomic.Readable(unitPath) {
		log.Info().Str("path", unitPath).Msg("unit file already exists, leaving it alone")
		return nil
	}

	data, err := render(a.tmpl, a.vars)
	if err != nil {
		return fmt.Errorf("%w: %s: render: %w", ErrArtifact, a.name, err)
	}
	if err := fsatomic.WriteFile(unitPath, data, unitPerm); err != nil {
		return fmt.Errorf("%w: %s: write %s: %w", ErrArtifact, a.name, unitPath, err)
	}
	log.Info().Str("path", unitPath).Msg("unit file written")
	return nil
}
