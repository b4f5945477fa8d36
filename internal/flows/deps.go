package flows

// Deps groups flow dependency sets. The root engine builds this once and
// delegates request methods to the matching flow implementation.
type Deps struct {
	Issue        IssueDeps
	Refresh      RefreshDeps
	Logout       LogoutDeps
	Authenticate AuthenticateDeps
	OTP          OTPDeps
}

// Principal is the flow-local view of an authenticated user.
type Principal struct {
	UserID  int64
	Subject string
	Name    string
	Role    string
}
