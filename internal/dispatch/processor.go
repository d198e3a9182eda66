package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ignite/collection-dispatcher/internal/provider"
	"github.com/ignite/collection-dispatcher/internal/render"
	"github.com/ignite/collection-dispatcher/internal/store"
)

// ProcessorStore is the subset of the Store Gateway the Batch Processor
// needs, narrowed so tests can substitute a fake.
type ProcessorStore interface {
	GetExecution(ctx context.Context, id string) (*store.Execution, error)
	GetClientsByIDs(ctx context.Context, ids []string) ([]store.Recipient, error)
	GetAttachments(ctx context.Context, ids []string) ([]store.Attachment, error)
	GetBlacklistedEmails(ctx context.Context, businessID string) (map[string]struct{}, error)
	GetCustomerEmail(ctx context.Context, customerID string) (string, error)
	GetBusinessNameOrDefault(ctx context.Context, businessID string) string
	GetTemplate(ctx context.Context, id string) (*store.EmailTemplate, error)
	UpdateClientStatus(ctx context.Context, id, status string, customData map[string]interface{}) error
	UpdateBatchStatus(ctx context.Context, id, status string) error
	GetExecutionBatches(ctx context.Context, executionID string) ([]store.Batch, error)
	UpdateExecutionStatus(ctx context.Context, id, status string) error
}

// ErrExecutionFinished reports that the batch's execution is already in a
// terminal state. The controller leaves such messages on the queue so the
// queue's dead-letter policy eventually reaps them.
var ErrExecutionFinished = errors.New("execution already finished")

// Processor implements the Batch Processor: the per-recipient
// send algorithm that a single batch message drives.
type Processor struct {
	store    ProcessorStore
	provider provider.Provider
	fromAddr string
	isDev    bool
	log      *logrus.Entry
}

// NewProcessor constructs a Processor. fromAddr is the verified sender
// address every outgoing message is sent from; isDev enables the
// inter-recipient throttle used in development environments.
func NewProcessor(s ProcessorStore, p provider.Provider, fromAddr string, isDev bool, log *logrus.Entry) *Processor {
	return &Processor{store: s, provider: p, fromAddr: fromAddr, isDev: isDev, log: log}
}

// Process runs the full per-batch algorithm: load the execution and its
// recipients, resolve each recipient's email and template, render, send,
// persist the outcome, then mark the batch completed and check whether the
// execution is done.
func (p *Processor) Process(ctx context.Context, msg *BatchMessage) error {
	execution, err := p.store.GetExecution(ctx, msg.ExecutionID)
	if err != nil {
		return fmt.Errorf("dispatch: load execution %s: %w", msg.ExecutionID, err)
	}

	if execution.Status == store.ExecutionCompleted || execution.Status == store.ExecutionFailed {
		p.log.WithField("execution_id", msg.ExecutionID).Info("execution already finished, skipping batch")
		return ErrExecutionFinished
	}

	recipients, err := p.store.GetClientsByIDs(ctx, msg.ClientIDs)
	if err != nil {
		return fmt.Errorf("dispatch: load recipients for batch %s: %w", msg.BatchID, err)
	}

	var attachments []store.Attachment
	if len(execution.AttachmentIDs) > 0 {
		loaded, attErr := p.store.GetAttachments(ctx, execution.AttachmentIDs)
		if attErr != nil {
			p.log.WithError(attErr).Warn("attachment load failed, proceeding without attachments")
		} else {
			attachments = loaded
		}
	}

	blacklist, err := p.store.GetBlacklistedEmails(ctx, msg.BusinessID)
	if err != nil {
		p.log.WithError(err).Warn("blacklist load failed, proceeding with empty set")
		blacklist = map[string]struct{}{}
	}

	businessName := p.store.GetBusinessNameOrDefault(ctx, msg.BusinessID)

	for i, recipient := range recipients {
		if p.isDev && i > 0 {
			time.Sleep(time.Second)
		}
		// Re-pickups converge: a recipient a previous attempt already
		// resolved stays untouched.
		if recipient.Status != "" && recipient.Status != store.RecipientPending {
			p.log.WithFields(logrus.Fields{"client_id": recipient.ID, "status": recipient.Status}).Info("recipient already resolved, skipping")
			continue
		}
		p.processRecipient(ctx, recipient, execution, blacklist, attachments, businessName)
	}

	if err := p.store.UpdateBatchStatus(ctx, msg.BatchID, store.BatchCompleted); err != nil {
		return fmt.Errorf("dispatch: mark batch %s completed: %w", msg.BatchID, err)
	}

	p.checkAndCompleteExecution(ctx, msg.ExecutionID)
	return nil
}

func (p *Processor) processRecipient(ctx context.Context, recipient store.Recipient, execution *store.Execution, blacklist map[string]struct{}, attachments []store.Attachment, businessName string) {
	emails := p.resolveEmails(ctx, &recipient)
	if len(emails) == 0 {
		p.failRecipient(ctx, recipient.ID, "no emails", "")
		return
	}

	filtered := filterBlacklisted(emails, blacklist, recipient.ID, p.log)
	if len(filtered) == 0 {
		p.failRecipientTyped(ctx, recipient.ID, "All emails are blacklisted", "blacklisted_emails", "")
		return
	}

	templateID := resolveTemplateID(recipient, execution)
	if templateID == "" {
		p.failRecipientTyped(ctx, recipient.ID, "No email template configured", "missing_template", "")
		return
	}

	template, err := p.store.GetTemplate(ctx, templateID)
	if err != nil {
		p.log.WithError(err).WithField("template_id", templateID).Error("failed to fetch template")
		p.failRecipientTyped(ctx, recipient.ID, fmt.Sprintf("Failed to fetch template: %v", err), "template_fetch_failed", templateID)
		return
	}

	html, text := p.renderEmail(template, recipient)

	result, err := p.provider.Send(ctx, provider.Message{
		To:          filtered,
		Subject:     template.Subject,
		HTMLBody:    html,
		TextBody:    text,
		From:        fmt.Sprintf("%s - Cartera <%s>", businessName, p.fromAddr),
		Attachments: toProviderAttachments(attachments),
		ClientID:    recipient.ID,
		ExecutionID: execution.ID,
	})
	if err != nil {
		p.log.WithError(err).WithField("client_id", recipient.ID).Error("failed to send email")
		customData := cloneCustomData(recipient.CustomData)
		customData["error"] = err.Error()
		customData["template_id"] = templateID
		if updErr := p.store.UpdateClientStatus(ctx, recipient.ID, store.RecipientFailed, customData); updErr != nil {
			p.log.WithError(updErr).Error("failed to update client to failed status")
		}
		return
	}

	customData := cloneCustomData(recipient.CustomData)
	customData["message_id"] = result.MessageID
	customData["email_sent_at"] = time.Now().UTC().Format(time.RFC3339)
	customData["template_id"] = templateID
	if recipient.ThresholdID != nil {
		customData["threshold_id"] = *recipient.ThresholdID
	}
	if err := p.store.UpdateClientStatus(ctx, recipient.ID, store.RecipientSent, customData); err != nil {
		p.log.WithError(err).Error("CRITICAL: failed to update client to sent status")
	}
}

// resolveEmails prefers custom_data.email, else resolves customer_id
// against the customers table, mutating only the in-memory copy.
func (p *Processor) resolveEmails(ctx context.Context, recipient *store.Recipient) []string {
	if v, ok := recipient.CustomData["email"].(string); ok && v != "" {
		return []string{v}
	}
	if recipient.CustomerID != nil && *recipient.CustomerID != "" {
		email, err := p.store.GetCustomerEmail(ctx, *recipient.CustomerID)
		if err != nil || email == "" {
			return nil
		}
		if recipient.CustomData == nil {
			recipient.CustomData = map[string]interface{}{}
		}
		recipient.CustomData["email"] = email
		return []string{email}
	}
	return nil
}

func filterBlacklisted(emails []string, blacklist map[string]struct{}, recipientID string, log *logrus.Entry) []string {
	filtered := make([]string, 0, len(emails))
	for _, email := range emails {
		if _, blocked := blacklist[strings.ToLower(email)]; blocked {
			log.WithField("client_id", recipientID).Warnf("skipping blacklisted email %s", email)
			continue
		}
		filtered = append(filtered, email)
	}
	return filtered
}

func resolveTemplateID(recipient store.Recipient, execution *store.Execution) string {
	if recipient.EmailTemplateID != nil && *recipient.EmailTemplateID != "" {
		return *recipient.EmailTemplateID
	}
	if execution.EmailTemplateID != nil && *execution.EmailTemplateID != "" {
		return *execution.EmailTemplateID
	}
	return ""
}

func (p *Processor) renderEmail(template *store.EmailTemplate, recipient store.Recipient) (html, text string) {
	invoiceViews := make([]render.InvoiceView, len(recipient.Invoices))
	for i, inv := range recipient.Invoices {
		invoiceViews[i] = render.InvoiceView{
			Description: inv.Description,
			AmountDue:   render.FormatCurrency(inv.AmountDue),
		}
	}

	ctx := render.Context{
		FullName:       recipient.FullName(),
		TotalAmountDue: render.FormatCurrency(recipient.TotalAmountDue()),
		Invoices:       invoiceViews,
		Extra:          recipient.CustomData,
	}

	html, text, err := render.Render(template.Content(), ctx)
	if err != nil {
		p.log.WithError(err).WithField("template_id", template.ID).Warn("render error, used fallback substitution")
	}
	return html, text
}

func (p *Processor) failRecipient(ctx context.Context, recipientID, errMsg, templateID string) {
	data := map[string]interface{}{"error": errMsg}
	if templateID != "" {
		data["template_id"] = templateID
	}
	if err := p.store.UpdateClientStatus(ctx, recipientID, store.RecipientFailed, data); err != nil {
		p.log.WithError(err).Error("failed to mark recipient failed")
	}
}

func (p *Processor) failRecipientTyped(ctx context.Context, recipientID, errMsg, errType, templateID string) {
	data := map[string]interface{}{"error": errMsg, "error_type": errType}
	if templateID != "" {
		data["template_id"] = templateID
	}
	if err := p.store.UpdateClientStatus(ctx, recipientID, store.RecipientFailed, data); err != nil {
		p.log.WithError(err).Error("failed to mark recipient failed")
	}
}

func cloneCustomData(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src)+4)
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func toProviderAttachments(attachments []store.Attachment) []provider.Attachment {
	out := make([]provider.Attachment, len(attachments))
	for i, a := range attachments {
		out[i] = provider.Attachment{Name: a.Name, FileType: a.FileType, Data: a.Data}
	}
	return out
}

// checkAndCompleteExecution implements the execution-completion check
//: an execution transitions to completed only when every one
// of its batches is completed; dlq batches block completion.
func (p *Processor) checkAndCompleteExecution(ctx context.Context, executionID string) {
	batches, err := p.store.GetExecutionBatches(ctx, executionID)
	if err != nil {
		p.log.WithError(err).WithField("execution_id", executionID).Error("failed to check batches for completion")
		return
	}

	allCompleted := true
	completedCount := 0
	for _, b := range batches {
		if b.Status == store.BatchCompleted {
			completedCount++
		} else {
			allCompleted = false
		}
	}

	if allCompleted {
		if err := p.store.UpdateExecutionStatus(ctx, executionID, store.ExecutionCompleted); err != nil {
			p.log.WithError(err).WithField("execution_id", executionID).Error("failed to mark execution completed")
			return
		}
		p.log.WithField("execution_id", executionID).Info("execution marked completed")
		return
	}

	p.log.WithField("execution_id", executionID).Infof("execution has %d/%d batches completed", completedCount, len(batches))
}
