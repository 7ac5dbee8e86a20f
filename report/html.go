package report

import (
	_ "embed"
	"html/template"
	"io"
	"strings"
)

//go:embed templates/report.html.tmpl
var htmlSource string

var htmlTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(htmlSource))

type htmlView struct {
	*Report
	EmptyActivityMessage string
	EmptyUsersMessage    string
}

// RenderHTML writes rep as a standalone HTML dashboard.
func RenderHTML(w io.Writer, rep *Report) error {
	return htmlTemplate.Execute(w, htmlView{
		Report:               rep,
		EmptyActivityMessage: EmptyActivityMessage,
		EmptyUsersMessage:    EmptyUsersMessage,
	})
}
