package dashboard

import (
	"html/template"
	"strings"

	"github.com/ppiankov/vetter/internal/history"
	"github.com/ppiankov/vetter/internal/model"
	"github.com/ppiankov/vetter/internal/report"
)

type pageData struct {
	Username string
	Remote   bool
	Report   *report.Report
	Error    string
	Recent   []history.Record
}

var funcs = template.FuncMap{
	"lower": func(s model.Status) string { return strings.ToLower(string(s)) },
	"bySeverity": func(v model.Verdict, sev string) []model.Flag {
		var out []model.Flag
		for _, f := range v.Flags {
			if string(f.Severity) == sev {
				out = append(out, f)
			}
		}
		return out
	},
}

var indexTemplate = template.Must(template.New("index").Funcs(funcs).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>vetter</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 52rem; margin: 2rem auto; padding: 0 1rem; }
.verified { color: #1a7f37; } .flagged { color: #9a6700; } .dismissed { color: #cf222e; }
table { border-collapse: collapse; width: 100%; } td, th { text-align: left; padding: .25rem .5rem; }
.error { color: #cf222e; }
</style>
</head>
<body>
<h1>vetter</h1>
<form method="get" action="/">
  <input name="username" value="{{.Username}}" placeholder="username" autofocus>
  <label><input type="checkbox" name="remote" value="true"{{if .Remote}} checked{{end}}> remote denylist</label>
  <button type="submit">Verify</button>
</form>
{{with .Error}}<p class="error">{{.}}</p>{{end}}
{{with .Report}}
<h2>{{.Profile.Username}} <small>({{.Profile.UserID}})</small></h2>
{{if .AvatarURL}}<img src="{{.AvatarURL}}" alt="avatar" width="96" height="96">{{end}}
<p class="{{lower .Verdict.Status}}"><strong>{{.Verdict.Status}}</strong></p>
<table>
  <tr><th>Display name</th><td>{{.Profile.DisplayName}}</td></tr>
  <tr><th>Account age</th><td>{{.Profile.AccountAgeDays}} days</td></tr>
  <tr><th>Friends</th><td>{{.Profile.FriendCount}}</td></tr>
  <tr><th>Groups</th><td>{{len .Profile.Groups}} ({{.NonTrustedGroups}} non-trusted)</td></tr>
  <tr><th>Badges</th><td>{{.Profile.BadgeCount}}</td></tr>
  {{if not .Profile.DataComplete}}<tr><th>Data</th><td>incomplete</td></tr>{{end}}
  <tr><th>Profile</th><td><a href="{{.ProfileURL}}">{{.ProfileURL}}</a></td></tr>
</table>
{{with bySeverity .Verdict "disqualifying"}}
<h3>Disqualifying</h3>
<ul>{{range .}}<li><code>{{.RuleID}}</code> {{.Message}}</li>{{end}}</ul>
{{end}}
{{with bySeverity .Verdict "advisory"}}
<h3>Review</h3>
<ul>{{range .}}<li><code>{{.RuleID}}</code> {{.Message}}</li>{{end}}</ul>
{{end}}
{{if not .Verdict.Flags}}<p>No rules triggered.</p>{{end}}
{{with .Remote}}<p>Remote denylist: {{if .Loaded}}loaded ({{.IDs}} ids){{else}}unavailable, local lists only{{end}}</p>{{end}}
<p><small>Reference {{.RefHash}}</small></p>
{{end}}
{{if .Recent}}
<h2>Recent</h2>
<table>
  <tr><th>Checked</th><th>User</th><th>Status</th></tr>
  {{range .Recent}}<tr><td>{{.CheckedAt.Format "2006-01-02 15:04"}}</td><td><a href="/?username={{.Username}}">{{.Username}}</a></td><td class="{{lower .Status}}">{{.Status}}</td></tr>
  {{end}}
</table>
{{end}}
</body>
</html>
`))
