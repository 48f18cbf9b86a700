package sequence

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"registration-workers/internal/models"
)

// Formatter renders serials into human-readable numbers.
type Formatter struct {
	districtCodes map[string]string
}

func NewFormatter(districtCodes map[string]string) Formatter {
	codes := make(map[string]string, len(districtCodes))
	for district, code := range districtCodes {
		codes[strings.ToLower(strings.TrimSpace(district))] = strings.ToUpper(code)
	}
	return Formatter{districtCodes: codes}
}

// DistrictCode returns the configured code, or the first three letters of
// the district name upper-cased.
func (f Formatter) DistrictCode(district string) string {
	if code, ok := f.districtCodes[strings.ToLower(strings.TrimSpace(district))]; ok {
		return code
	}
	var b strings.Builder
	n := 0
	for _, r := range district {
		if unicode.IsLetter(r) {
			b.WriteRune(unicode.ToUpper(r))
			if n++; n == 3 {
				break
			}
		}
	}
	if n == 0 {
		return "XXX"
	}
	return b.String()
}

// ApplicationNumber is {KIND}-{YEAR}-{DISTRICT}-{SERIAL:06d}.
func (f Formatter) ApplicationNumber(kind models.Kind, district string, serial int64, at time.Time) string {
	return fmt.Sprintf("%s-%d-%s-%06d", kind.Code(), at.Year(), f.DistrictCode(district), serial)
}

// CertificateNumber is RC-{YEAR}-{DISTRICT}-{SERIAL:06d}.
func (f Formatter) CertificateNumber(district string, serial int64, at time.Time) string {
	return fmt.Sprintf("RC-%d-%s-%06d", at.Year(), f.DistrictCode(district), serial)
}
