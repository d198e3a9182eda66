// Package eventhandler is the sibling consumer that turns provider
// delivery notifications (SES bounce/delivery/open/complaint events,
// relayed via SNS or SQS) into recipient status transitions and an
// append-only delivery event trail. The same reconciliation core runs
// behind both an HTTP endpoint and a queue poll-loop.
package eventhandler

// SNSEnvelope is the outer SNS delivery wrapper AWS wraps each SES
// notification in before invoking a subscribed endpoint.
type SNSEnvelope struct {
	Type             string `json:"Type"`
	MessageID        string `json:"MessageId"`
	TopicArn         string `json:"TopicArn"`
	Message          string `json:"Message"`
	SubscribeURL     string `json:"SubscribeURL,omitempty"`
	Token            string `json:"Token,omitempty"`
	Timestamp        string `json:"Timestamp,omitempty"`
}

// SNSEvent is the batch form delivered over SQS-relayed SNS fan-out.
type SNSEvent struct {
	Records []SNSRecord `json:"Records"`
}

// SNSRecord wraps one SNS notification inside an SNSEvent.
type SNSRecord struct {
	SNS SNSMessage `json:"Sns"`
}

// SNSMessage is the inner SNS payload carrying the SES event as a JSON
// string.
type SNSMessage struct {
	Message string `json:"Message"`
}

// SESEvent is a single SES delivery notification, keyed by its eventType
// field (Bounce | Delivery | Open | Send | Reject | Complaint).
type SESEvent struct {
	NotificationType string        `json:"eventType"`
	Mail             SESMail       `json:"mail"`
	Bounce           *SESBounce    `json:"bounce,omitempty"`
	Complaint        *SESComplaint `json:"complaint,omitempty"`
	Delivery         *SESDelivery  `json:"delivery,omitempty"`
	Open             *SESOpen      `json:"open,omitempty"`
}

// SESMail identifies the message a notification describes.
type SESMail struct {
	MessageID         string  `json:"messageId"`
	Destination       []string `json:"destination"`
	SendingAccountID  *string `json:"sendingAccountId,omitempty"`
	Timestamp         *string `json:"timestamp,omitempty"`
}

// SESBounce is the detail payload of a Bounce notification.
type SESBounce struct {
	BounceType        string        `json:"bounceType"`
	BounceSubType     string        `json:"bounceSubType"`
	BouncedRecipients []SESRecipient `json:"bouncedRecipients"`
	Timestamp         *string       `json:"timestamp,omitempty"`
}

// SESComplaint is the detail payload of a Complaint notification.
type SESComplaint struct {
	ComplaintFeedbackType *string        `json:"complaintFeedbackType,omitempty"`
	ComplainedRecipients  []SESRecipient `json:"complainedRecipients,omitempty"`
	Timestamp             *string        `json:"timestamp,omitempty"`
}

// SESDelivery is the detail payload of a Delivery notification.
type SESDelivery struct {
	Timestamp    *string  `json:"timestamp,omitempty"`
	Recipients   []string `json:"recipients,omitempty"`
	SMTPResponse *string  `json:"smtpResponse,omitempty"`
	ReportingMTA *string  `json:"reportingMTA,omitempty"`
}

// SESOpen is the detail payload of an Open notification.
type SESOpen struct {
	IPAddress *string `json:"ipAddress,omitempty"`
	Timestamp *string `json:"timestamp,omitempty"`
	UserAgent *string `json:"userAgent,omitempty"`
}

// SESRecipient is one address named in a Bounce or Complaint detail.
type SESRecipient struct {
	EmailAddress   string  `json:"emailAddress"`
	Status         *string `json:"status,omitempty"`
	DiagnosticCode *string `json:"diagnosticCode,omitempty"`
}

// Result is a processed/error count pair. Neither ingestion mode builds or
// returns one.
type Result struct {
	Processed int `json:"processed"`
	Errors    int `json:"errors"`
}
