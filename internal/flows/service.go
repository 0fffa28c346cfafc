package flows

import "context"

// Service is the flow runner built once by the engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired.
func (s Service) Initialized() bool {
	return s.deps.Validate.ParseAccess != nil && s.deps.Refresh.Rotate != nil
}

func (s Service) Login(ctx context.Context, identifier, password string) LoginResult {
	return RunLogin(ctx, identifier, password, s.deps.Login)
}

func (s Service) Refresh(ctx context.Context, refreshToken string) RefreshResult {
	return RunRefresh(ctx, refreshToken, s.deps.Refresh)
}

func (s Service) Validate(ctx context.Context, accessToken string) ValidateResult {
	return RunValidate(ctx, accessToken, s.deps.Validate)
}

func (s Service) Logout(ctx context.Context, refreshToken, accessToken string) LogoutResult {
	return RunLogout(ctx, refreshToken, accessToken, s.deps.Logout)
}
