package certificate

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"registration-workers/internal/models"

	"github.com/jung-kurt/gofpdf"
	"github.com/skip2/go-qrcode"
)

const printDate = "02 Jan 2006"

// VerificationLink is the URL printed into the certificate's QR code.
func VerificationLink(baseURL, certificateNumber string) string {
	if baseURL == "" {
		return certificateNumber
	}
	return strings.TrimRight(baseURL, "/") + "/" + certificateNumber
}

// Render lays out cert as a single A4 page with a QR code pointing at
// verifyURL.
func Render(cert *models.Certificate, verifyURL string) ([]byte, error) {
	if cert == nil || cert.CertificateNumber == "" {
		return nil, fmt.Errorf("render certificate: no certificate number")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Registration Certificate "+cert.CertificateNumber, true)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 18)
	pdf.SetXY(15, 25)
	pdf.CellFormat(180, 10, "Certificate of Registration", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(180, 6, "Home Stay Establishment", "", 1, "C", false, 0, "")
	pdf.Rect(10, 15, 190, 267, "D")

	rows := [][2]string{
		{"Certificate No.", cert.CertificateNumber},
		{"Property", cert.PropertyName},
		{"Owner", cert.OwnerName},
		{"Address", cert.Address},
		{"District", cert.District},
		{"Category", cert.Category},
		{"Rooms", strconv.Itoa(cert.RoomCount)},
		{"Valid From", cert.ValidFrom.Format(printDate)},
		{"Valid Upto", cert.ValidUpto.Format(printDate)},
	}
	y := 60.0
	for _, r := range rows {
		pdf.SetXY(25, y)
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(45, 8, r[0], "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 11)
		pdf.MultiCell(115, 8, r[1], "", "L", false)
		y = pdf.GetY() + 2
	}

	png, err := qrcode.Encode(verifyURL, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("render certificate qr: %w", err)
	}
	opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: true}
	pdf.RegisterImageOptionsReader("verify", opts, bytes.NewReader(png))
	pdf.ImageOptions("verify", 145, 220, 40, 40, false, opts, 0, "")

	pdf.SetFont("Arial", "", 8)
	pdf.SetXY(25, 262)
	pdf.CellFormat(110, 5, "Issued "+cert.IssuedAt.Format(printDate)+" by "+cert.IssuedBy, "", 0, "L", false, 0, "")
	pdf.SetXY(135, 262)
	pdf.CellFormat(60, 5, "Scan to verify", "", 0, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render certificate: %w", err)
	}
	return buf.Bytes(), nil
}
