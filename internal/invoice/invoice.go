// Package invoice renders booking invoices as PDF.
package invoice

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/phpdave11/gofpdf"

	"github.com/sixeradda/ground-booking/internal/model"
	"github.com/sixeradda/ground-booking/internal/notify"
)

// GSTPercent is applied on the amount charged after discount.
const GSTPercent = 18

// Venue is printed in the header and footer.
type Venue struct {
	Name    string
	Address string
	Contact string
}

// Breakdown holds invoice amounts in paise.
type Breakdown struct {
	SlotCharge int64
	Discount   int64
	Subtotal   int64
	GST        int64
	Total      int64
}

// Compute derives the amounts for b.  The slot charge comes from the
// catalog; when the slot is unknown the final price is used as is.
func Compute(b model.Booking) Breakdown {
	charge := b.FinalPrice
	if s, ok := b.Slot(); ok {
		charge = s.Price
	}
	bd := Breakdown{
		SlotCharge: charge * 100,
		Subtotal:   b.FinalPrice * 100,
	}
	bd.Discount = bd.SlotCharge - bd.Subtotal
	bd.GST = bd.Subtotal * GSTPercent / 100
	bd.Total = bd.Subtotal + bd.GST
	return bd
}

// Rupees formats paise as "Rs. 1,234.56" with Indian digit grouping.
func Rupees(paise int64) string {
	sign := ""
	if paise < 0 {
		sign, paise = "-", -paise
	}
	whole := fmt.Sprintf("%d", paise/100)
	if len(whole) > 3 {
		head, tail := whole[:len(whole)-3], whole[len(whole)-3:]
		var groups []string
		for len(head) > 2 {
			groups = append([]string{head[len(head)-2:]}, groups...)
			head = head[:len(head)-2]
		}
		if head != "" {
			groups = append([]string{head}, groups...)
		}
		whole = strings.Join(groups, ",") + "," + tail
	}
	return fmt.Sprintf("%sRs. %s.%02d", sign, whole, paise%100)
}

var terms = []string{
	"1. Please arrive 15 minutes before your scheduled time.",
	"2. Bring your own cricket equipment. We provide the pitch and stumps.",
	"3. In case of cancellation, please inform us 2 hours in advance.",
	"4. Payment to be made at the venue before starting the game.",
}

// Renderer builds invoice PDFs.
type Renderer struct {
	Venue Venue
	Now   func() time.Time
}

// FileName is "<Venue>_Booking_<yyyyMMdd>_<slot>.pdf".
func (r Renderer) FileName(b model.Booking) string {
	venue := strings.NewReplacer(" ", "", "/", "", "\\", "").Replace(r.Venue.Name)
	if venue == "" {
		venue = "Ground"
	}
	return fmt.Sprintf("%s_Booking_%s_%s.pdf", venue, strings.ReplaceAll(b.BookingDate, "-", ""), b.SlotID)
}

// Render returns the PDF bytes and a file name for b.
func (r Renderer) Render(b model.Booking) ([]byte, string, error) {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	bd := Compute(b)

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Invoice "+b.ID, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, r.Venue.Name+" - Booking Confirmation", "", 1, "C", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "", 11)
	pdf.SetTextColor(100, 100, 100)
	pdf.Cell(0, 7, "Booking ID : "+b.ID)
	pdf.Ln(7)
	pdf.Cell(0, 7, "Generated  : "+now().Format("2006-01-02 15:04"))
	pdf.Ln(10)
	pdf.SetTextColor(0, 0, 0)

	section(pdf, "Customer Information")
	lines(pdf,
		"Name    : "+b.Name,
		"Mobile  : "+b.MobileNumber,
		fmt.Sprintf("Players : %d", b.Players),
	)

	session := "Day Session"
	if b.IsNightSession {
		session = "Night Session (with lights)"
	}
	section(pdf, "Booking Details")
	lines(pdf,
		"Date : "+notify.DisplayDate(b.BookingDate),
		"Time : "+notify.SlotTime(b),
		"Type : "+session,
	)

	section(pdf, "Payment Details")
	rows := [][2]string{{"Slot Charge", Rupees(bd.SlotCharge)}}
	if bd.Discount > 0 {
		code := "Discount"
		if b.DiscountCode != nil {
			code = "Coupon " + *b.DiscountCode
		}
		rows = append(rows, [2]string{code, "-" + Rupees(bd.Discount)})
	}
	rows = append(rows,
		[2]string{fmt.Sprintf("GST (%d%%)", GSTPercent), Rupees(bd.GST)},
		[2]string{"Total", Rupees(bd.Total)},
	)
	table(pdf, rows)

	pdf.SetFont("Helvetica", "I", 10)
	pdf.CellFormat(0, 7, "Payment Status: To be paid at venue", "", 1, "L", false, 0, "")
	pdf.Ln(4)

	section(pdf, "Terms & Conditions")
	pdf.SetFont("Helvetica", "", 10)
	for _, t := range terms {
		pdf.MultiCell(0, 6, t, "", "", false)
	}

	pdf.SetY(-25)
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, r.Venue.Name+" - "+r.Venue.Address, "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, "Contact: "+r.Venue.Contact, "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), r.FileName(b), nil
}

func section(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, title)
	pdf.Ln(9)
}

func lines(pdf *gofpdf.Fpdf, ls ...string) {
	pdf.SetFont("Helvetica", "", 12)
	for _, l := range ls {
		pdf.Cell(0, 7, l)
		pdf.Ln(7)
	}
	pdf.Ln(4)
}

func table(pdf *gofpdf.Fpdf, rows [][2]string) {
	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetFillColor(39, 174, 96)
	pdf.SetTextColor(255, 255, 255)
	pdf.CellFormat(120, 8, "Description", "1", 0, "L", true, 0, "")
	pdf.CellFormat(50, 8, "Amount", "1", 1, "R", true, 0, "")
	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Helvetica", "", 11)
	for i, row := range rows {
		if i == len(rows)-1 {
			pdf.SetFont("Helvetica", "B", 11)
		}
		pdf.CellFormat(120, 8, row[0], "1", 0, "L", false, 0, "")
		pdf.CellFormat(50, 8, row[1], "1", 1, "R", false, 0, "")
	}
	pdf.Ln(4)
}

// Archive writes rendered invoices below Dir.  It backs the invoice.render
// task.
type Archive struct {
	Renderer Renderer
	Dir      string
}

// Write renders b and stores it as Dir/<booking date>/<file name>.
func (a Archive) Write(ctx context.Context, b model.Booking) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, name, err := a.Renderer.Render(b)
	if err != nil {
		return "", fmt.Errorf("render invoice: %w", err)
	}
	dir := filepath.Join(a.Dir, b.BookingDate)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir invoices: %w", err)
	}
	path := filepath.Join(dir, b.ID+"_"+name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write invoice: %w", err)
	}
	return path, nil
}
