// Package receipt renders the printable two-copy receipt of an order.
package receipt

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/Thaynan-souza/raphietro-atelier/internal/domain"
)

//go:embed templates/receipt.tmpl
var templateFS embed.FS

var receiptTemplates = template.Must(template.ParseFS(templateFS, "templates/receipt.tmpl"))

// Document is a rendered receipt. ClientCopy and CompanyCopy are HTML
// fragments; HTML is the complete printable page with both copies separated
// by a page break.
type Document struct {
	ClientCopy  template.HTML
	CompanyCopy template.HTML
	HTML        string
}

// Renderer turns order snapshots into receipts. It is safe for concurrent use.
type Renderer struct {
	profile Profile
	footer  template.HTML
}

// NewRenderer builds a renderer with profile, filling blank fields from DefaultProfile.
func NewRenderer(profile Profile) *Renderer {
	defaults := DefaultProfile()
	if strings.TrimSpace(profile.BusinessName) == "" {
		profile.BusinessName = defaults.BusinessName
	}
	if strings.TrimSpace(profile.PageWidth) == "" {
		profile.PageWidth = defaults.PageWidth
	}
	if profile.Location == nil {
		profile.Location = defaults.Location
	}
	footer := strings.TrimSpace(bluemonday.UGCPolicy().Sanitize(profile.FooterHTML))
	return &Renderer{profile: profile, footer: template.HTML(footer)}
}

type lineView struct {
	Category  string
	Item      string
	Quantity  string
	UnitPrice string
	Subtotal  string
}

type historyView struct {
	Status      string
	Date        string
	Actor       string
	Observation string
}

type receiptView struct {
	BusinessName    string
	Tagline         string
	PageWidth       string
	ShortID         string
	OrderDate       string
	ClientName      string
	ClientPhone     string
	Lines           []lineView
	Total           string
	Notes           string
	History         []historyView
	StaffName       string
	StaffEmployeeID string
	Status          string
	Footer          template.HTML
}

// Render derives the receipt for order. It performs no I/O.
func (r *Renderer) Render(order domain.Order) (Document, error) {
	view := r.view(order)

	clientCopy, err := execute("client", view)
	if err != nil {
		return Document{}, err
	}
	companyCopy, err := execute("company", view)
	if err != nil {
		return Document{}, err
	}
	page, err := execute("document", struct {
		View        receiptView
		ClientCopy  template.HTML
		CompanyCopy template.HTML
	}{view, clientCopy, companyCopy})
	if err != nil {
		return Document{}, err
	}

	return Document{
		ClientCopy:  clientCopy,
		CompanyCopy: companyCopy,
		HTML:        string(page),
	}, nil
}

func (r *Renderer) view(order domain.Order) receiptView {
	loc := r.profile.Location
	view := receiptView{
		BusinessName:    r.text(r.profile.BusinessName),
		Tagline:         r.text(r.profile.Tagline),
		PageWidth:       r.profile.PageWidth,
		ShortID:         r.text(order.ShortID()),
		OrderDate:       order.OrderDate.Format(loc),
		ClientName:      r.text(order.ClientName),
		ClientPhone:     r.text(order.ClientPhone),
		Total:           domain.FormatMoney(order.Total),
		Notes:           r.text(order.Notes),
		StaffName:       r.text(order.StaffName),
		StaffEmployeeID: r.text(order.StaffEmployeeID),
		Status:          r.text(string(order.Status)),
		Footer:          r.footer,
	}

	view.Lines = make([]lineView, 0, len(order.Items))
	for _, item := range order.Items {
		line := lineView{
			Category:  r.text(item.Category),
			Item:      r.text(item.Item),
			Quantity:  strconv.Itoa(item.Quantity),
			UnitPrice: "0.00",
			Subtotal:  "0.00",
		}
		if !item.PriceMissing {
			line.UnitPrice = domain.FormatMoney(item.UnitPrice)
			line.Subtotal = domain.FormatMoney(item.ComputeSubtotal())
		}
		view.Lines = append(view.Lines, line)
	}

	for _, entry := range order.StatusHistory {
		actor := entry.ActorLocalPart()
		if actor == "" {
			actor = UnknownActor
		}
		h := historyView{
			Status: r.text(string(entry.Status)),
			Date:   entry.Date.Format(loc),
			Actor:  r.text(actor),
		}
		if entry.Observation != nil {
			h.Observation = r.text(*entry.Observation)
		}
		view.History = append(view.History, h)
	}
	return view
}

// text trims free text; html/template escapes it on output.
func (r *Renderer) text(value string) string {
	return strings.TrimSpace(value)
}

func execute(name string, data any) (template.HTML, error) {
	var buf bytes.Buffer
	if err := receiptTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("receipt: render %s: %w", name, err)
	}
	return template.HTML(buf.String()), nil
}
