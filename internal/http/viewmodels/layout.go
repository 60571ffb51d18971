package viewmodels

type LayoutData struct {
	Title      string
	CSRFToken  string
	Username   string
	Toast      *ToastViewData
	ActivePath string
}
