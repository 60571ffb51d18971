package viewmodels

type LoginViewData struct {
	CSRFToken     string
	Username      string
	Next          string
	ErrorMessage  string
	SetupRequired bool
	Toast         *ToastViewData
}
