package api

type (
	// NotificationsResponse contains a list of notifications
	NotificationsResponse struct {
		Notifications []*Notification `json:"notifications"`
		Count         int             `json:"count"`
	}

	// MarkReadResponse reports how many notifications were marked read
	MarkReadResponse struct {
		Count int `json:"count"`
	}

	// HealthResponse provides service health information
	HealthResponse struct {
		Service string `json:"service"`
		Version string `json:"version"`
		Status  string `json:"status"`
	}

	// MessageResponse contains a simple message string
	MessageResponse struct {
		Message string `json:"message"`
	}

	// ErrorResponse contains error details for failed requests
	ErrorResponse struct {
		Error  string `json:"error"`
		Status int    `json:"status,omitempty"`
	}
)
