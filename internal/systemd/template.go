// Package systemd renders the unit file for running the dashboard as a
// service.
package systemd

import (
	"bytes"
	"errors"
	"strings"
	"text/template"
)

// UnitOptions fills the dashboard unit template.
type UnitOptions struct {
	Binary    string // absolute path of the vetter binary
	User      string
	Addr      string
	Reference string // optional --reference path
	ExtraArgs []string
}

var unitTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description=vetter account vetting dashboard
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
User={{.User}}
ExecStart={{.ExecStart}}
Restart=on-failure
RestartSec=2
NoNewPrivileges=true
PrivateTmp=true
ProtectSystem=strict
ProtectHome=read-only
ReadWritePaths=-/home/{{.User}}/.vetter

[Install]
WantedBy=multi-user.target
`))

// DashboardUnit returns the systemd unit for `vetter serve`.
func DashboardUnit(opts UnitOptions) (string, error) {
	if opts.Binary == "" || !strings.HasPrefix(opts.Binary, "/") {
		return "", errors.New("systemd: binary must be an absolute path")
	}
	if opts.User == "" {
		opts.User = "vetter"
	}
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:8080"
	}

	args := []string{opts.Binary}
	if opts.Reference != "" {
		args = append(args, "--reference", opts.Reference)
	}
	args = append(args, "serve", "--addr", opts.Addr)
	args = append(args, opts.ExtraArgs...)

	var buf bytes.Buffer
	err := unitTemplate.Execute(&buf, struct {
		User      string
		ExecStart string
	}{opts.User, strings.Join(args, " ")})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
