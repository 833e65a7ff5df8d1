package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

const layoutHead = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1.0"></head>
<body style="margin:0;padding:0;background-color:#f5f5f5;font-family:Arial,Helvetica,sans-serif;">
<table width="100%" cellpadding="0" cellspacing="0" style="padding:40px 20px;"><tr><td align="center">
<table width="600" cellpadding="0" cellspacing="0" style="background-color:#000000;border-radius:12px;color:#ffffff;">`

const layoutFoot = `<tr><td style="padding:20px 40px;text-align:center;border-top:1px solid #111111;">
<p style="margin:0;color:#444444;font-size:12px;">&copy; {{.Year}} {{.Brand}}</p></td></tr>
</table></td></tr></table></body></html>`

const mailTemplates = `
{{define "head"}}` + layoutHead + `{{end}}
{{define "foot"}}` + layoutFoot + `{{end}}

{{define "row"}}<tr><td style="padding:16px 20px;border-bottom:1px solid #222222;">
<p style="margin:0 0 5px 0;color:#666666;font-size:12px;text-transform:uppercase;">{{.Label}}</p>
<p style="margin:0;font-size:18px;font-weight:bold;">{{.Value}}</p></td></tr>{{end}}

{{define "code"}}{{template "head" .}}
<tr><td style="padding:40px;text-align:center;">
<h1 style="margin:0;font-size:24px;">Your verification code</h1>
<p style="margin:24px 0;font-size:36px;letter-spacing:8px;font-weight:bold;">{{.Code}}</p>
<p style="margin:0;color:#888888;">The code is valid for {{.Minutes}} minutes.</p>
</td></tr>
{{template "foot" .}}{{end}}

{{define "customer"}}{{template "head" .}}
<tr><td style="padding:30px 40px 20px 40px;text-align:center;">
<h1 style="margin:0;font-size:28px;">Thank you for your booking!</h1>
<p style="margin:10px 0 0 0;color:#888888;">Hi {{.Booking.Name}}, your time is confirmed.</p>
</td></tr>
<tr><td style="padding:30px 40px;"><table width="100%" cellpadding="0" cellspacing="0" style="background-color:#111111;border-radius:8px;">
{{template "row" (field "Date" .Booking.Date)}}
{{template "row" (field "Time" .Booking.Slot)}}
{{template "row" (field "Duration" .Duration)}}
</table></td></tr>
<tr><td style="padding:0 40px 40px 40px;text-align:center;">
<a href="{{.Booking.MeetingLink}}" style="display:inline-block;background-color:#ffffff;color:#000000;text-decoration:none;font-weight:bold;padding:16px 40px;border-radius:8px;">Join the meeting</a>
<p style="margin:20px 0 0 0;color:#444444;font-size:12px;word-break:break-all;">{{.Booking.MeetingLink}}</p>
</td></tr>
{{template "foot" .}}{{end}}

{{define "operator"}}{{template "head" .}}
<tr><td style="padding:30px 40px 20px 40px;text-align:center;">
<h1 style="margin:0;font-size:24px;">New booking received</h1>
</td></tr>
<tr><td style="padding:30px 40px;"><table width="100%" cellpadding="0" cellspacing="0" style="background-color:#111111;border-radius:8px;">
{{template "row" (field "Name" .Booking.Name)}}
{{template "row" (field "Email" .Booking.Email)}}
{{template "row" (field "Phone" .Booking.Phone)}}
{{template "row" (field "Customer" .Booking.CustomerType.Label)}}
{{with .Booking.Description}}{{template "row" (field "Description" .)}}{{end}}
{{template "row" (field "Date" .Booking.Date)}}
{{template "row" (field "Time" .Booking.Slot)}}
{{template "row" (field "Meeting" .Booking.MeetingLink)}}
</table></td></tr>
{{template "foot" .}}{{end}}
`

type fieldRow struct {
	Label string
	Value string
}

var templates = template.Must(template.New("mail").Funcs(template.FuncMap{
	"field": func(label, value string) fieldRow { return fieldRow{Label: label, Value: value} },
}).Parse(mailTemplates))

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func humanDuration(d time.Duration) string {
	switch {
	case d == time.Hour:
		return "1 hour"
	case d%time.Hour == 0:
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	default:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
}
