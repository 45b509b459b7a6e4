package model

import "time"

// Event names carried on the real-time channel.
const (
	EventMessageUpdate   = "message_update"
	EventRecipientUpdate = "recipient_update"
	EventNotification    = "notification"
	EventAnalyticsUpdate = "analytics_update"
	EventPing            = "ping"
)

type MessageUpdate struct {
	MessageID       string        `json:"messageId"`
	Status          MessageStatus `json:"status"`
	TotalRecipients int           `json:"totalRecipients"`
	SuccessCount    int           `json:"successCount"`
	FailedCount     int           `json:"failedCount"`
	Cost            float64       `json:"cost"`
}

type RecipientUpdate struct {
	MessageID    string          `json:"messageId"`
	RecipientID  string          `json:"recipientId"`
	Phone        string          `json:"phone"`
	Status       RecipientStatus `json:"status"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
}

type Notification struct {
	Title string    `json:"title"`
	Body  string    `json:"body"`
	Type  string    `json:"type"`
	At    time.Time `json:"at"`
}

type AnalyticsUpdate struct {
	UserID         string  `json:"userId"`
	TotalMessages  int     `json:"totalMessages"`
	TotalSent      int     `json:"totalSent"`
	TotalFailed    int     `json:"totalFailed"`
	TotalDelivered int     `json:"totalDelivered"`
	TotalCost      float64 `json:"totalCost"`
}
