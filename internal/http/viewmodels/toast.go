package viewmodels

// ToastViewData is a transient notification. Category is one of success,
// error, warning or info.
type ToastViewData struct {
	Category    string `json:"category"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// AlertViewData is an inline error alert. ID is also logged so operators
// can find the server side of a reported alert.
type AlertViewData struct {
	ID      string
	Title   string
	Message string
	Class   string
}
