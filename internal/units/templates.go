package units

import (
	"bytes"
	"text/template"
)

var scanTmpl = template.Must(template.New(ScanUnit).Parse(`[Unit]
Description=Import ZFS pools by device scanning
DefaultDependencies=no
Requires=systemd-udev-settle.service
After=systemd-udev-settle.service
After=cryptsetup.target
Before=sysroot.mount
{{.Condition}}

[Service]
Type=oneshot
RemainAfterExit=yes
ExecStart={{.Zpool}} import {{.Pool}} -N -o cachefile=none{{.Flags}}
`))

var cacheTmpl = template.Must(template.New(CacheUnit).Parse(`[Unit]
Description=Import ZFS pools by cache file
DefaultDependencies=no
Requires=systemd-udev-settle.service
After=systemd-udev-settle.service
After=cryptsetup.target
Before=sysroot.mount
ConditionPathExists={{.CacheFile}}

[Service]
Type=oneshot
RemainAfterExit=yes
ExecStart={{.Zpool}} import {{.Pool}} -N -c {{.CacheFile}}{{.Flags}}
`))

var dropinTmpl = template.Must(template.New(SysrootDropin).Parse(`[Mount]
What={{.What}}
Type=initrd_zfs
Options={{.Options}}
`))

type importVars struct {
	Condition string
	CacheFile string
	Zpool     string
	Pool      string
	Flags     string
}

type dropinVars struct {
	What    string
	Options string
}

func render(t *template.Template, v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
