package units

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const wantScan = `[Unit]
Description=Import ZFS pools by device scanning
DefaultDependencies=no
Requires=systemd-udev-settle.service
After=systemd-udev-settle.service
After=cryptsetup.target
Before=sysroot.mount
ConditionPathExists=!/etc/zfs/zpool.cache

[Service]
Type=oneshot
RemainAfterExit=yes
ExecStart=/usr/bin/zpool import tank -N -o cachefile=none -f
`

const wantScanIgnoreCache = `[Unit]
Description=Import ZFS pools by device scanning
DefaultDependencies=no
Requires=systemd-udev-settle.service
After=systemd-udev-settle.service
After=cryptsetup.target
Before=sysroot.mount


[Service]
Type=oneshot
RemainAfterExit=yes
ExecStart=/usr/bin/zpool import -a -N -o cachefile=none
`

const wantCache = `[Unit]
Description=Import ZFS pools by cache file
DefaultDependencies=no
Requires=systemd-udev-settle.service
After=systemd-udev-settle.service
After=cryptsetup.target
Before=sysroot.mount
ConditionPathExists=/etc/zfs/zpool.cache

[Service]
Type=oneshot
RemainAfterExit=yes
ExecStart=/usr/bin/zpool import tank -N -c /etc/zfs/zpool.cache
`

const wantDropin = `[Mount]
What=tank/data@snap1
Type=initrd_zfs
Options=zfsutil,ro
`

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

func TestScanImport(t *testing.T) {
	dir := t.TempDir()
	e := New(dir)
	if err := e.ScanImport(Import{Pool: "tank", Flags: " -f"}); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(wantScan, readFile(t, filepath.Join(dir, ScanUnit))); diff != "" {
		t.Fatalf("scan unit mismatch (-want +got):\n%s", diff)
	}
	link := filepath.Join(dir, ImportTarget, ScanUnit)
	target, err := os.Readlink(link)
	if err != nil {
		t.Fatalf("readlink: %v", err)
	}
	if target != filepath.Join("..", ScanUnit) {
		t.Fatalf("symlink target: %s", target)
	}
	// the link resolves to the unit file itself
	if readFile(t, link) != wantScan {
		t.Fatalf("symlink does not resolve to the unit file")
	}
}

func TestScanImport_IgnoreCache(t *testing.T) {
	dir := t.TempDir()
	if err := New(dir).ScanImport(Import{Pool: "-a", IgnoreCache: true}); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(wantScanIgnoreCache, readFile(t, filepath.Join(dir, ScanUnit))); diff != "" {
		t.Fatalf("scan unit mismatch (-want +got):\n%s", diff)
	}
}

func TestCacheImport(t *testing.T) {
	dir := t.TempDir()
	if err := New(dir).CacheImport(Import{Pool: "tank"}); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(wantCache, readFile(t, filepath.Join(dir, CacheUnit))); diff != "" {
		t.Fatalf("cache unit mismatch (-want +got):\n%s", diff)
	}
	if _, err := os.Lstat(filepath.Join(dir, ImportTarget, CacheUnit)); err != nil {
		t.Fatalf("cache unit not wanted: %v", err)
	}
}

func TestSysrootDropin(t *testing.T) {
	dir := t.TempDir()
	if err := New(dir).SysrootDropin("tank/data@snap1", "zfsutil,ro"); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(wantDropin, readFile(t, filepath.Join(dir, DropinDir, SysrootDropin))); diff != "" {
		t.Fatalf("drop-in mismatch (-want +got):\n%s", diff)
	}
}

func TestCustomPaths(t *testing.T) {
	dir := t.TempDir()
	e := New(dir, WithCacheFile("/run/zpool.cache"), WithZpool("/sbin/zpool"))
	if err := e.CacheImport(Import{Pool: "rpool", Flags: " -f"}); err != nil {
		t.Fatal(err)
	}
	got := readFile(t, filepath.Join(dir, CacheUnit))
	want := "ExecStart=/sbin/zpool import rpool -N -c /run/zpool.cache -f\n"
	if got[len(got)-len(want):] != want {
		t.Fatalf("custom exec line, got:\n%s", got)
	}
}

func TestExistingFilesAreKept(t *testing.T) {
	dir := t.TempDir()
	custom := "# operator override\n"
	if err := os.MkdirAll(filepath.Join(dir, DropinDir), 0o755); err != nil {
		t.Fatal(err)
	}
	paths := []string{
		filepath.Join(dir, ScanUnit),
		filepath.Join(dir, CacheUnit),
		filepath.Join(dir, DropinDir, SysrootDropin),
	}
	for _, p := range paths {
		if err := os.WriteFile(p, []byte(custom), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	e := New(dir)
	if err := e.ScanImport(Import{Pool: "tank"}); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if err := e.CacheImport(Import{Pool: "tank"}); err != nil {
		t.Fatalf("cache: %v", err)
	}
	if err := e.SysrootDropin("tank", "zfsutil"); err != nil {
		t.Fatalf("dropin: %v", err)
	}
	for _, p := range paths {
		if got := readFile(t, p); got != custom {
			t.Fatalf("%s was overwritten: %q", p, got)
		}
	}
}

func TestRerunKeepsSymlink(t *testing.T) {
	dir := t.TempDir()
	e := New(dir)
	for i := 0; i < 2; i++ {
		if err := e.ScanImport(Import{Pool: "tank"}); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if _, err := os.Readlink(filepath.Join(dir, ImportTarget, ScanUnit)); err != nil {
		t.Fatalf("symlink lost: %v", err)
	}
}

func TestDirectoryFailureIsFatal(t *testing.T) {
	base := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(base, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	e := New(base)
	if err := e.ScanImport(Import{Pool: "tank"}); !errors.Is(err, ErrArtifact) {
		t.Fatalf("scan: want ErrArtifact, got %v", err)
	}
	if err := e.SysrootDropin("tank", "zfsutil"); !errors.Is(err, ErrArtifact) {
		t.Fatalf("dropin: want ErrArtifact, got %v", err)
	}
}

func TestMissingBaseDirIsFatal(t *testing.T) {
	e := New(filepath.Join(t.TempDir(), "missing"))
	if err := e.CacheImport(Import{Pool: "tank"}); !errors.Is(err, ErrArtifact) {
		t.Fatalf("want ErrArtifact, got %v", err)
	}
}
