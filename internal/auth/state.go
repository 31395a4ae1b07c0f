package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hitoshi/superkart/internal/model"
	"github.com/hitoshi/superkart/internal/storeapi"
	"golang.org/x/sync/singleflight"
)

// 通知メッセージ
const (
	msgSignupSuccess = "Signup successful!"
	msgSignupFailed  = "signup failed"
	msgLoginSuccess  = "Login successful!"
	msgLoginFailed   = "Login failed"
	msgLoggedOut     = "Logged out"
)

// API は認証状態が使用する外部APIの操作。
type API interface {
	SignUp(ctx context.Context, req storeapi.SignUpRequest) (*storeapi.AuthResult, error)
	SignIn(ctx context.Context, req storeapi.SignInRequest) (*storeapi.AuthResult, error)
	VerifyToken(ctx context.Context, token string) (*model.User, error)
}

// Notifier は利用者への通知先。
type Notifier interface {
	Success(message string)
	Error(message string)
	Info(message string)
}

// State はブラウザセッションの認証状態。
// Anonymous → (ログイン成功) → Authenticated → (ログアウト | 再検証失敗) → Anonymous
type State struct {
	api      API
	cred     *Credential
	notifier Notifier
	logger   *slog.Logger

	mu   sync.RWMutex
	user *model.User

	busy  atomic.Int32
	group singleflight.Group

	subMu       sync.Mutex
	subscribers map[int]func(authenticated bool)
	nextSubID   int
}

// NewState はStateを生成する。
func NewState(api API, cred *Credential, notifier Notifier, logger *slog.Logger) *State {
	return &State{
		api:         api,
		cred:        cred,
		notifier:    notifier,
		logger:      logger,
		subscribers: make(map[int]func(bool)),
	}
}

// Token は現在のベアラートークンを返す。カート・ウィッシュリストが参照する。
func (s *State) Token() string {
	return s.cred.Token()
}

// IsAuthenticated はCredentialが存在するかを返す。
func (s *State) IsAuthenticated() bool {
	return s.cred.Present()
}

// User は現在の利用者情報のコピーを返す。未ログインまたは未取得の場合はnil。
func (s *State) User() *model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Busy は会員登録またはログインの処理中かを返す。
func (s *State) Busy() bool {
	return s.busy.Load() > 0
}

// Subscribe は認証状態の遷移の通知先を登録し、解除関数を返す。
// ログインでトークンが変わった場合（別アカウントへの切り替えを含む）はtrue、
// ログアウトではfalseで呼ばれる。
func (s *State) Subscribe(fn func(authenticated bool)) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subscribers, id)
	}
}

func (s *State) emit(authenticated bool) {
	s.subMu.Lock()
	fns := make([]func(bool), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(authenticated)
	}
}

// SignUp は会員登録を行う。成功してもログイン状態にはならない。
func (s *State) SignUp(ctx context.Context, in SignUpInput) (*storeapi.AuthResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	s.busy.Add(1)
	defer s.busy.Add(-1)

	res, err := s.api.SignUp(ctx, storeapi.SignUpRequest{
		Name:       in.Name,
		Email:      in.Email,
		Password:   in.Password,
		RePassword: in.RePassword,
		Phone:      in.Phone,
	})
	if err != nil {
		msg := storeapi.ServerMessage(err, msgSignupFailed)
		s.logger.Warn("会員登録に失敗しました", slog.String("error", err.Error()))
		s.notifier.Error(msg)
		return nil, model.NewSignupFailedError(msg)
	}

	s.notifier.Success(msgSignupSuccess)
	return res, nil
}

// Login はログインし、トークンをCredentialとして保持した後に再検証する。
// 再検証でトークンが拒否された場合はログアウト状態に戻りエラーを返す。
func (s *State) Login(ctx context.Context, c Credentials) (*model.User, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	s.busy.Add(1)
	res, err := s.api.SignIn(ctx, storeapi.SignInRequest{Email: c.Email, Password: c.Password})
	if err != nil {
		s.busy.Add(-1)
		msg := storeapi.ServerMessage(err, msgLoginFailed)
		s.logger.Warn("ログインに失敗しました", slog.String("error", err.Error()))
		s.notifier.Error(msg)
		return nil, model.NewLoginFailedError(msg)
	}

	prevToken := s.cred.Token()
	if err := s.cred.Set(ctx, res.Token); err != nil {
		s.busy.Add(-1)
		s.logger.Error("Credentialの保存に失敗しました", slog.String("error", err.Error()))
		s.notifier.Error(msgLoginFailed)
		return nil, model.NewLoginFailedError(msgLoginFailed)
	}
	s.setUser(userFromLogin(res))
	s.busy.Add(-1)

	s.notifier.Success(msgLoginSuccess)
	if prevToken != res.Token {
		s.emit(true)
	}

	if err := s.Revalidate(ctx); err != nil {
		if errors.Is(err, errCredentialRejected) {
			return nil, model.NewAuthRequiredError()
		}
		// 通信失敗時はログイン状態を維持する
		s.logger.Warn("ログイン直後のトークン再検証に失敗しました", slog.String("error", err.Error()))
	}
	return s.User(), nil
}

// Logout はCredentialと利用者情報を無条件に破棄する。外部APIは呼び出さない。
func (s *State) Logout(ctx context.Context) error {
	wasAuthenticated := s.cred.Present()
	err := s.cred.Clear(ctx)
	s.afterLogout(wasAuthenticated)
	if err != nil {
		s.logger.Error("Credential破棄の永続化に失敗しました", slog.String("error", err.Error()))
	}
	return err
}

func (s *State) afterLogout(wasAuthenticated bool) {
	s.setUser(nil)
	s.notifier.Info(msgLoggedOut)
	if wasAuthenticated {
		s.emit(false)
	}
}

// errCredentialRejected は再検証でサーバーがトークンを拒否したことを表す。
var errCredentialRejected = errors.New("credential rejected by store API")

// Revalidate はトークンの有効性をサーバーに問い合わせる。
// Credentialがない場合は何もしない。同一トークンの同時再検証は1回のリモート呼び出しにまとめる。
// サーバーが拒否（4xx）した場合はログアウトする。通信失敗や5xxではログイン状態を維持する。
func (s *State) Revalidate(ctx context.Context) error {
	token := s.cred.Token()
	if token == "" {
		return nil
	}

	// まとめられた呼び出し元の1つが切断しても他の呼び出し元に影響させない
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(token, func() (any, error) {
		return s.api.VerifyToken(shared, token)
	})
	if err != nil {
		if !storeapi.IsRejection(err) {
			return err
		}
		s.logger.Info("トークンがサーバーに拒否されたためログアウトします", slog.String("error", err.Error()))
		cleared, clearErr := s.cred.clearIf(ctx, token)
		if cleared {
			s.afterLogout(true)
		}
		if clearErr != nil {
			s.logger.Error("Credential破棄の永続化に失敗しました", slog.String("error", clearErr.Error()))
		}
		return errCredentialRejected
	}

	// 再検証中にログアウトや別トークンでのログインが行われた場合は結果を捨てる
	if s.cred.Token() != token {
		return nil
	}
	verified := *v.(*model.User)
	s.mu.Lock()
	if s.user != nil && verified.Email == "" {
		verified.Email = s.user.Email
	}
	s.user = &verified
	s.mu.Unlock()
	return nil
}

// IsRejected は再検証でトークンが拒否されたエラーかを返す。
func IsRejected(err error) bool {
	return errors.Is(err, errCredentialRejected)
}

func (s *State) setUser(u *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = u
}

// userFromLogin はログインレスポンスとトークンのペイロードから利用者情報を組み立てる。
func userFromLogin(res *storeapi.AuthResult) *model.User {
	u := &model.User{}
	if res.User != nil {
		*u = *res.User
	}
	if claims, ok := parseTokenClaims(res.Token); ok {
		if u.ID == "" {
			u.ID = claims.UserID
		}
		if u.Name == "" {
			u.Name = claims.Name
		}
		if u.Role == "" {
			u.Role = claims.Role
		}
	}
	return u
}
