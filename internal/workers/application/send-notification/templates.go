// internal/workers/application/send-notification/templates.go
package sendnotification

import (
	"fmt"
	"strings"

	"registration-workers/internal/models"
)

type template struct {
	Subject string
	Body    string
}

var templates = map[models.EventType]template{
	models.EventApplicationSubmitted: {
		Subject: "Application {{applicationNumber}} submitted",
		Body:    "Your homestay registration application {{applicationNumber}} has been submitted and is awaiting scrutiny.",
	},
	models.EventSentBackForCorrections: {
		Subject: "Corrections required for {{applicationNumber}}",
		Body:    "Your application {{applicationNumber}} needs corrections: {{correctionNotes}} Issues: {{issues}}. Please update and resubmit.",
	},
	models.EventInspectionScheduled: {
		Subject: "Site inspection scheduled for {{applicationNumber}}",
		Body:    "A site inspection of your property for application {{applicationNumber}} is scheduled on {{inspectionDate}}.",
	},
	models.EventApproved: {
		Subject: "Application {{applicationNumber}} approved",
		Body:    "Your application {{applicationNumber}} has been approved. Your registration certificate can be downloaded from the portal.",
	},
	models.EventRejected: {
		Subject: "Application {{applicationNumber}} rejected",
		Body:    "Your application {{applicationNumber}} has been rejected. Please contact the district tourism office for details.",
	},
}

// renderTemplate substitutes {{key}} placeholders and drops any left unfilled.
func renderTemplate(tmpl string, data map[string]interface{}) string {
	result := tmpl
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		value := ""
		if s, ok := v.(string); ok {
			value = s
		} else if v != nil {
			value = fmt.Sprintf("%v", v)
		}
		result = strings.ReplaceAll(result, placeholder, value)
	}

	for {
		start := strings.Index(result, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			break
		}
		end += start + 2
		result = result[:start] + result[end:]
	}
	return result
}
