package units

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/coreos/go-systemd/v22/unit"
)

// ImportUnit summarizes a generated pool import unit.
type ImportUnit struct {
	Path      string   `yaml:"path" json:"path"`
	Wanted    bool     `yaml:"wanted" json:"wanted"`
	ExecStart string   `yaml:"execStart" json:"execStart"`
	Condition []string `yaml:"condition,omitempty" json:"condition,omitempty"`
}

// MountDropin summarizes the generated sysroot.mount drop-in.
type MountDropin struct {
	Path    string `yaml:"path" json:"path"`
	What    string `yaml:"what" json:"what"`
	Type    string `yaml:"type" json:"type"`
	Options string `yaml:"options" json:"options"`
}

// Report lists whichever artifacts exist in a generator directory.
type Report struct {
	Dir     string       `yaml:"dir" json:"dir"`
	Scan    *ImportUnit  `yaml:"scan,omitempty" json:"scan,omitempty"`
	Cache   *ImportUnit  `yaml:"cache,omitempty" json:"cache,omitempty"`
	Sysroot *MountDropin `yaml:"sysroot,omitempty" json:"sysroot,omitempty"`
}

// Empty reports whether no artifact was found.
func (r Report) Empty() bool {
	return r.Scan == nil && r.Cache == nil && r.Sysroot == nil
}

// Inspect reads back the artifacts under dir. Missing files are not an
// error; unparsable ones are.
func Inspect(dir string) (Report, error) {
	rep := Report{Dir: dir}
	var err error
	if rep.Scan, err = inspectImport(dir, ScanUnit); err != nil {
		return rep, err
	}
	if rep.Cache, err = inspectImport(dir, CacheUnit); err != nil {
		return rep, err
	}
	path := filepath.Join(dir, DropinDir, SysrootDropin)
	opts, err := readOptions(path)
	if err != nil || opts == nil {
		return rep, err
	}
	d := &MountDropin{Path: path}
	for _, o := range opts {
		if o.Section != "Mount" {
			continue
		}
		switch o.Name {
		case "What":
			d.What = o.Value
		case "Type":
			d.Type = o.Value
		case "Options":
			d.Options = o.Value
		}
	}
	rep.Sysroot = d
	return rep, nil
}

func inspectImport(dir, name string) (*ImportUnit, error) {
	path := filepath.Join(dir, name)
	opts, err := readOptions(path)
	if err != nil || opts == nil {
		return nil, err
	}
	u := &ImportUnit{Path: path}
	for _, o := range opts {
		switch {
		case o.Section == "Service" && o.Name == "ExecStart":
			u.ExecStart = o.Value
		case o.Section == "Unit" && o.Name == "ConditionPathExists":
			u.Condition = append(u.Condition, o.Value)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, ImportTarget, name)); err == nil {
		u.Wanted = true
	}
	return u, nil
}

// readOptions returns nil options and no error when path does not exist.
func readOptions(path string) ([]*unit.UnitOption, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	opts, err := unit.DeserializeOptions(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return opts, nil
}
