package models

type BlastRequest struct {
	SendToAll   bool    `json:"sendToAll"`
	UserIDs     []int64 `json:"userIds"`
	Message     string  `json:"message"`
	TemplateID  int64   `json:"templateId,omitempty"`
	IsSendEmail bool    `json:"isSendEmail"`
	Attachment  string  `json:"attachment,omitempty"`
}

// HasRecipients is the precondition checked before any blast I/O happens.
func (r BlastRequest) HasRecipients() bool {
	return r.SendToAll || len(r.UserIDs) > 0
}

type BlastResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
