package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// CertificateDocument carries the fields printed on a completion certificate.
type CertificateDocument struct {
	CertificateNo string
	StudentName   string
	StudentRegNo  string
	CourseTitle   string
	IssueDate     time.Time
	Remarks       string
	VerifyURL     string
}

// ReceiptDocument carries the fields printed on a fee receipt.
type ReceiptDocument struct {
	ReceiptNo    string
	StudentName  string
	StudentRegNo string
	CourseTitle  string
	Amount       float64
	Mode         string
	TxnID        string
	Date         time.Time
	TotalPaid    float64
	Due          float64
}

// DocumentRenderer renders institute documents as PDFs.
type DocumentRenderer struct {
	instituteName string
}

// NewDocumentRenderer constructs a renderer branded with the institute name.
func NewDocumentRenderer(instituteName string) *DocumentRenderer {
	if instituteName == "" {
		instituteName = "Institute"
	}
	return &DocumentRenderer{instituteName: instituteName}
}

// RenderCertificate produces a landscape A4 certificate PDF.
func (r *DocumentRenderer) RenderCertificate(doc CertificateDocument) ([]byte, error) {
	if doc.CertificateNo == "" {
		return nil, fmt.Errorf("certificate requires a number")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(20, 25, 20)
	pdf.AddPage()

	pdf.SetLineWidth(1.2)
	pdf.Rect(10, 10, 277, 190, "D")

	pdf.SetFont("Times", "B", 26)
	pdf.CellFormat(0, 16, r.instituteName, "", 1, "C", false, 0, "")
	pdf.SetFont("Times", "", 14)
	pdf.CellFormat(0, 10, "Certificate of Completion", "", 1, "C", false, 0, "")
	pdf.Ln(10)

	pdf.SetFont("Times", "", 12)
	pdf.CellFormat(0, 8, "This is to certify that", "", 1, "C", false, 0, "")
	pdf.SetFont("Times", "B", 20)
	pdf.CellFormat(0, 12, doc.StudentName, "", 1, "C", false, 0, "")
	pdf.SetFont("Times", "", 11)
	pdf.CellFormat(0, 7, fmt.Sprintf("Registration No. %s", doc.StudentRegNo), "", 1, "C", false, 0, "")
	pdf.Ln(4)
	pdf.SetFont("Times", "", 12)
	pdf.CellFormat(0, 8, "has successfully completed the course", "", 1, "C", false, 0, "")
	pdf.SetFont("Times", "B", 16)
	pdf.CellFormat(0, 10, doc.CourseTitle, "", 1, "C", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Times", "", 11)
	pdf.CellFormat(0, 7, fmt.Sprintf("Issued on %s", doc.IssueDate.Format("02 January 2006")), "", 1, "C", false, 0, "")
	if doc.Remarks != "" {
		pdf.CellFormat(0, 7, doc.Remarks, "", 1, "C", false, 0, "")
	}

	pdf.SetY(-45)
	pdf.SetFont("Courier", "", 9)
	pdf.CellFormat(0, 6, fmt.Sprintf("Certificate No: %s", doc.CertificateNo), "", 1, "C", false, 0, "")
	if doc.VerifyURL != "" {
		pdf.CellFormat(0, 6, fmt.Sprintf("Verify at %s", doc.VerifyURL), "", 1, "C", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render certificate pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderReceipt produces a portrait A4 fee receipt PDF.
func (r *DocumentRenderer) RenderReceipt(doc ReceiptDocument) ([]byte, error) {
	if doc.ReceiptNo == "" {
		return nil, fmt.Errorf("receipt requires a number")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, r.instituteName, "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 12)
	pdf.CellFormat(0, 8, "Fee Receipt", "", 1, "C", false, 0, "")
	pdf.Ln(6)

	rows := [][2]string{
		{"Receipt No", doc.ReceiptNo},
		{"Date", doc.Date.Format("02 Jan 2006")},
		{"Student", fmt.Sprintf("%s (%s)", doc.StudentName, doc.StudentRegNo)},
		{"Course", doc.CourseTitle},
		{"Amount Paid", fmt.Sprintf("%.2f", doc.Amount)},
		{"Payment Mode", doc.Mode},
	}
	if doc.TxnID != "" {
		rows = append(rows, [2]string{"Transaction Ref", doc.TxnID})
	}
	rows = append(rows,
		[2]string{"Total Paid To Date", fmt.Sprintf("%.2f", doc.TotalPaid)},
		[2]string{"Balance Due", fmt.Sprintf("%.2f", doc.Due)},
	)

	pdf.SetFont("Arial", "", 10)
	for _, row := range rows {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(55, 8, row[0], "1", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(125, 8, row[1], "1", 1, "", false, 0, "")
	}

	pdf.Ln(10)
	pdf.SetFont("Arial", "I", 8)
	pdf.CellFormat(0, 6, "This is a system generated receipt.", "", 1, "C", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render receipt pdf: %w", err)
	}
	return buf.Bytes(), nil
}
