package domain

type NotificationLevel string

const (
	NotifyWarning NotificationLevel = "warning"
	NotifySuccess NotificationLevel = "success"
)

// Notification is a transient message shown to the user once.
type Notification struct {
	Level   NotificationLevel `json:"level"`
	Message string            `json:"message"`
}

func Warning(msg string) Notification {
	return Notification{Level: NotifyWarning, Message: msg}
}

func Success(msg string) Notification {
	return Notification{Level: NotifySuccess, Message: msg}
}
