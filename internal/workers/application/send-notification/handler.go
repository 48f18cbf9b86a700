// internal/workers/application/send-notification/handler.go
package sendnotification

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"registration-workers/internal/common/camunda"
	"registration-workers/internal/common/errors"
	"registration-workers/internal/common/logger"
	"registration-workers/internal/common/validation"
	"registration-workers/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	TaskType = "send-notification"
)

// Define interfaces for mocking
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Handler struct {
	config    *Config
	db        *sql.DB
	logger    logger.Logger
	responder *camunda.Responder
	sesClient SESService
	snsClient SNSService
	limiter   *rate.Limiter
}

func NewHandler(config *Config, db *sql.DB, sesClient SESService, snsClient SNSService, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:    config,
		db:        db,
		logger:    log,
		responder: camunda.NewResponder(TaskType, log),
		sesClient: sesClient,
		snsClient: snsClient,
		limiter:   newLimiter(config.SendRate),
	}
}

// newLimiter returns the token bucket shared by email and SMS sends.
func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.responder.Fail(client, job, errors.NewPayloadValidationError(fmt.Sprintf("parse input: %v", err)))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.Execute(ctx, &input)
	if err != nil {
		h.responder.Fail(client, job, err)
		return
	}
	h.responder.Complete(client, job, output)
}

// Execute tells the application owner about a lifecycle event. Email goes
// first; a failed email fails the job so the broker retries it. SMS is best
// effort once the email is out.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if err := inputSchema.Validate(input); err != nil {
		return nil, err
	}
	tmpl := templates[models.EventType(input.EventType)]

	notificationID := uuid.New().String()
	sentAt := time.Now().UTC().Format(time.RFC3339)
	disabled := &Output{NotificationID: notificationID, Status: StatusDisabled, SentAt: sentAt}

	email, phone, err := h.getRecipientContact(ctx, input.OwnerUserID)
	if stderrors.Is(err, sql.ErrNoRows) {
		h.logger.Warn("recipient not found", map[string]interface{}{"ownerUserId": input.OwnerUserID})
		return disabled, nil
	}
	if err != nil {
		return nil, errors.NewDatabaseOperationError("get recipient contact", err)
	}

	data := templateData(input)
	subject := renderTemplate(tmpl.Subject, data)
	body := renderTemplate(tmpl.Body, data)

	var channels []string
	if h.config.EmailEnabled && email != "" {
		if err := h.sendEmail(ctx, email, subject, body); err != nil {
			h.logger.Error("email send failed", map[string]interface{}{
				"error":         err,
				"applicationId": input.ApplicationID,
			})
			return nil, errors.NewNotificationSendFailedError(ChannelEmail, err)
		}
		channels = append(channels, ChannelEmail)
	}

	status := StatusSent
	if h.config.SMSEnabled && phone != "" {
		if err := h.sendSMS(ctx, phone, body); err != nil {
			h.logger.Warn("SMS send failed", map[string]interface{}{
				"error":         err,
				"applicationId": input.ApplicationID,
			})
			if len(channels) == 0 {
				return nil, errors.NewNotificationSendFailedError(ChannelSMS, err)
			}
			status = StatusPartial
		} else {
			channels = append(channels, ChannelSMS)
		}
	}

	if len(channels) == 0 {
		return disabled, nil
	}

	h.logger.Info("notification sent", map[string]interface{}{
		"notificationId": notificationID,
		"eventType":      input.EventType,
		"applicationId":  input.ApplicationID,
		"channels":       channels,
	})
	return &Output{
		NotificationID: notificationID,
		Status:         status,
		Channels:       channels,
		SentAt:         sentAt,
	}, nil
}

func templateData(input *Input) map[string]interface{} {
	data := map[string]interface{}{
		"applicationId":     input.ApplicationID,
		"applicationNumber": input.ApplicationNumber,
		"status":            input.Status,
		"correctionNotes":   input.CorrectionNotes,
		"issues":            strings.Join(input.IssuesFound, "; "),
	}
	if input.InspectionDate != "" {
		if d, err := validation.ParseDate("inspectionDate", input.InspectionDate); err == nil {
			data["inspectionDate"] = d.Format("02 Jan 2006")
		}
	}
	return data
}

func (h *Handler) getRecipientContact(ctx context.Context, userID string) (string, string, error) {
	var email, phone sql.NullString
	err := h.db.QueryRowContext(ctx, `SELECT email, phone FROM users WHERE id = $1`, userID).Scan(&email, &phone)
	return email.String, phone.String, err
}

func (h *Handler) sendEmail(ctx context.Context, to, subject, body string) error {
	if err := h.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := h.sesClient.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(h.config.FromEmail),
	})
	return err
}

func (h *Handler) sendSMS(ctx context.Context, to, message string) error {
	if err := h.limiter.Wait(ctx); err != nil {
		return err
	}
	in := &sns.PublishInput{
		PhoneNumber: aws.String(to),
		Message:     aws.String(message),
	}
	if h.config.SMSSenderID != "" {
		in.MessageAttributes = map[string]snstypes.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {DataType: aws.String("String"), StringValue: aws.String(h.config.SMSSenderID)},
		}
	}
	_, err := h.snsClient.Publish(ctx, in)
	return err
}
