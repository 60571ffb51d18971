// Package views renders the HTML pages and HTMX fragments.
package views

import (
	"context"
	"embed"
	"html/template"
	"io"
	"io/fs"
	"time"

	"github.com/a-h/templ"
	"github.com/howitz/howitz/internal/events"
	"github.com/howitz/howitz/internal/eventtable"
	"github.com/howitz/howitz/internal/http/viewmodels"
)

var (
	//go:embed templates/*.html
	templateFS embed.FS

	//go:embed static
	staticFS embed.FS
)

var pages = template.Must(template.New("views").Funcs(template.FuncMap{
	"stamp":       FormatStamp,
	"rowView":     newRowView,
	"isPortState": func(t events.Type) bool { return t == events.TypePortState },
	"alertRole":   alertRole,
	"ariaCurrent": AriaCurrent,
	"layout": func(title, csrf string, toast *viewmodels.ToastViewData) viewmodels.LayoutData {
		return viewmodels.LayoutData{Title: title, CSRFToken: csrf, Toast: toast}
	},
}).ParseFS(templateFS, "templates/*.html"))

// Static holds the stylesheet served under /static.
func Static() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

// rowView lets a row carry its out-of-band swap mode into the row template.
type rowView struct {
	eventtable.Row
	OOB string
}

func newRowView(row eventtable.Row, oob string) rowView {
	return rowView{Row: row, OOB: oob}
}

type rowFragment struct {
	Row           eventtable.Row
	SelectedCount int
}

func render(name string, data any) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		return pages.ExecuteTemplate(w, name, data)
	})
}

func LoginPage(data viewmodels.LoginViewData) templ.Component {
	return render("login", data)
}

func EventsPage(data viewmodels.EventsViewData) templ.Component {
	return render("events_page", data)
}

// EventTable renders the whole table. It replaces #eventlist.
func EventTable(data viewmodels.EventTableData) templ.Component {
	return render("event_table", data)
}

// EventRow renders a single row together with the selection counter and a
// cleared modal, both swapped out of band.
func EventRow(row eventtable.Row, selectedCount int) templ.Component {
	return render("row_fragment", rowFragment{Row: row, SelectedCount: selectedCount})
}

// EventRefresh renders a delta as out-of-band swaps only.
func EventRefresh(data viewmodels.EventRefreshData) templ.Component {
	return render("event_refresh", data)
}

func StatusForm(data viewmodels.EventStatusFormData) templ.Component {
	return render("status_form", data)
}

func BulkResult(data viewmodels.EventBulkData) templ.Component {
	return render("bulk_result", data)
}

func SelectedCount(n int) templ.Component {
	return render("selected_count_oob", n)
}

func Alert(data viewmodels.AlertViewData) templ.Component {
	return render("alert", data)
}

func FormatStamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

func AriaCurrent(activePath, target string) string {
	if activePath == target {
		return "page"
	}
	return ""
}

func alertRole(category string) string {
	if category == "error" || category == "warning" {
		return "alert"
	}
	return "status"
}
