package auth

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/superkart/internal/model"
	"github.com/hitoshi/superkart/internal/storeapi"
)

// --- モック定義 ---

type mockAPI struct {
	signUpFn      func(ctx context.Context, req storeapi.SignUpRequest) (*storeapi.AuthResult, error)
	signInFn      func(ctx context.Context, req storeapi.SignInRequest) (*storeapi.AuthResult, error)
	verifyTokenFn func(ctx context.Context, token string) (*model.User, error)
	verifyCalls   atomic.Int32
}

func (m *mockAPI) SignUp(ctx context.Context, req storeapi.SignUpRequest) (*storeapi.AuthResult, error) {
	if m.signUpFn != nil {
		return m.signUpFn(ctx, req)
	}
	return &storeapi.AuthResult{Message: "success"}, nil
}

func (m *mockAPI) SignIn(ctx context.Context, req storeapi.SignInRequest) (*storeapi.AuthResult, error) {
	if m.signInFn != nil {
		return m.signInFn(ctx, req)
	}
	return nil, errors.New("unexpected SignIn")
}

func (m *mockAPI) VerifyToken(ctx context.Context, token string) (*model.User, error) {
	m.verifyCalls.Add(1)
	if m.verifyTokenFn != nil {
		return m.verifyTokenFn(ctx, token)
	}
	return &model.User{ID: "u1", Name: "Alice"}, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	items []model.Notification
}

func (r *recordingNotifier) add(level model.NotificationLevel, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, model.Notification{Level: level, Message: msg})
}

func (r *recordingNotifier) Success(msg string) { r.add(model.NotificationSuccess, msg) }
func (r *recordingNotifier) Error(msg string)   { r.add(model.NotificationError, msg) }
func (r *recordingNotifier) Info(msg string)    { r.add(model.NotificationInfo, msg) }

func (r *recordingNotifier) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.items))
	for i, n := range r.items {
		out[i] = n.Message
	}
	return out
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func newTestState(t *testing.T, api *mockAPI, token string) (*State, *recordingNotifier, *fakeTokenStore) {
	t.Helper()
	var buf bytes.Buffer
	store := newFakeTokenStore()
	n := &recordingNotifier{}
	cred := NewCredential("s1", token, store)
	return NewState(api, cred, n, newTestLogger(&buf)), n, store
}

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("トークン生成に失敗: %v", err)
	}
	return tok
}

func rejection(status int, msg string) error {
	return &storeapi.Error{Op: "test", StatusCode: status, Message: msg}
}

// --- テスト ---

func TestState_Login_Success(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"id": "u1", "name": "Alice", "role": "user"})
	api := &mockAPI{
		signInFn: func(_ context.Context, req storeapi.SignInRequest) (*storeapi.AuthResult, error) {
			if req.Email != "alice@example.com" {
				t.Errorf("Email = %q", req.Email)
			}
			return &storeapi.AuthResult{
				Token: token,
				User:  &model.User{Name: "Alice", Email: "alice@example.com", Role: "user"},
			}, nil
		},
	}
	s, n, store := newTestState(t, api, "")

	var transitions []bool
	s.Subscribe(func(authenticated bool) { transitions = append(transitions, authenticated) })

	u, err := s.Login(context.Background(), Credentials{Email: "alice@example.com", Password: "Secret1"})
	if err != nil {
		t.Fatalf("Login がエラーを返した: %v", err)
	}
	if u == nil || u.ID != "u1" || u.Email != "alice@example.com" {
		t.Errorf("User = %+v, want id from claims and email from response", u)
	}
	if s.Token() != token || store.tokens["s1"] != token {
		t.Error("トークンが保持・永続化されていない")
	}
	if !s.IsAuthenticated() {
		t.Error("ログイン後は認証済みであるべき")
	}
	if got := n.messages(); len(got) != 1 || got[0] != "Login successful!" {
		t.Errorf("通知 = %v", got)
	}
	if len(transitions) != 1 || !transitions[0] {
		t.Errorf("状態遷移通知 = %v, want [true]", transitions)
	}
	if api.verifyCalls.Load() != 1 {
		t.Errorf("VerifyToken 呼び出し回数 = %d, want 1", api.verifyCalls.Load())
	}
	if s.Busy() {
		t.Error("完了後は Busy = false であるべき")
	}
}

func TestState_Login_ValidationErrorSendsNoRequest(t *testing.T) {
	api := &mockAPI{
		signInFn: func(context.Context, storeapi.SignInRequest) (*storeapi.AuthResult, error) {
			t.Fatal("検証エラー時にリモート呼び出しをしてはならない")
			return nil, nil
		},
	}
	s, _, _ := newTestState(t, api, "")

	_, err := s.Login(context.Background(), Credentials{Email: "bad", Password: "x"})
	if !errors.Is(err, model.NewValidationError("")) {
		t.Errorf("err = %v, want VALIDATION_FAILED", err)
	}
}

func TestState_Login_RejectedUsesServerMessage(t *testing.T) {
	api := &mockAPI{
		signInFn: func(context.Context, storeapi.SignInRequest) (*storeapi.AuthResult, error) {
			return nil, rejection(401, "Incorrect email or password")
		},
	}
	s, n, _ := newTestState(t, api, "")

	_, err := s.Login(context.Background(), Credentials{Email: "a@example.com", Password: "x"})
	if !errors.Is(err, model.NewLoginFailedError("")) {
		t.Errorf("err = %v, want LOGIN_FAILED", err)
	}
	if got := n.messages(); len(got) != 1 || got[0] != "Incorrect email or password" {
		t.Errorf("通知 = %v", got)
	}
	if s.IsAuthenticated() {
		t.Error("失敗時にCredentialを保持してはならない")
	}
}

func TestState_Login_TransportFailureFallbackMessage(t *testing.T) {
	api := &mockAPI{
		signInFn: func(context.Context, storeapi.SignInRequest) (*storeapi.AuthResult, error) {
			return nil, storeapi.ErrTransport
		},
	}
	s, n, _ := newTestState(t, api, "")

	s.Login(context.Background(), Credentials{Email: "a@example.com", Password: "x"})
	if got := n.messages(); len(got) != 1 || got[0] != "Login failed" {
		t.Errorf("通知 = %v, want [Login failed]", got)
	}
}

func TestState_Login_RevalidationRejectsToken(t *testing.T) {
	api := &mockAPI{
		signInFn: func(context.Context, storeapi.SignInRequest) (*storeapi.AuthResult, error) {
			return &storeapi.AuthResult{Token: "opaque"}, nil
		},
		verifyTokenFn: func(context.Context, string) (*model.User, error) {
			return nil, rejection(401, "Invalid Token")
		},
	}
	s, _, _ := newTestState(t, api, "")

	_, err := s.Login(context.Background(), Credentials{Email: "a@example.com", Password: "x"})
	if !errors.Is(err, model.NewAuthRequiredError()) {
		t.Errorf("err = %v, want AUTH_REQUIRED", err)
	}
	if s.IsAuthenticated() || s.User() != nil {
		t.Error("再検証で拒否された場合は匿名に戻るべき")
	}
}

func TestState_Login_RevalidationTransportFailureKeepsLogin(t *testing.T) {
	api := &mockAPI{
		signInFn: func(context.Context, storeapi.SignInRequest) (*storeapi.AuthResult, error) {
			return &storeapi.AuthResult{Token: "opaque", User: &model.User{Name: "Alice"}}, nil
		},
		verifyTokenFn: func(context.Context, string) (*model.User, error) {
			return nil, storeapi.ErrTransport
		},
	}
	s, _, _ := newTestState(t, api, "")

	u, err := s.Login(context.Background(), Credentials{Email: "a@example.com", Password: "x"})
	if err != nil {
		t.Fatalf("通信失敗ではログインを維持すべき: %v", err)
	}
	if u.Name != "Alice" || !s.IsAuthenticated() {
		t.Errorf("User = %+v", u)
	}
}

func TestState_Logout(t *testing.T) {
	s, n, store := newTestState(t, &mockAPI{}, "tok")
	s.setUser(&model.User{ID: "u1"})

	var transitions []bool
	s.Subscribe(func(a bool) { transitions = append(transitions, a) })

	if err := s.Logout(context.Background()); err != nil {
		t.Fatalf("Logout がエラーを返した: %v", err)
	}
	if s.IsAuthenticated() || s.User() != nil {
		t.Error("ログアウト後は匿名であるべき")
	}
	if store.tokens["s1"] != "" {
		t.Error("永続化されたトークンが消えていない")
	}
	if got := n.messages(); len(got) != 1 || got[0] != "Logged out" {
		t.Errorf("通知 = %v", got)
	}
	if len(transitions) != 1 || transitions[0] {
		t.Errorf("状態遷移通知 = %v, want [false]", transitions)
	}
}

func TestState_LogoutThenRevalidate_NoRemoteCall(t *testing.T) {
	api := &mockAPI{}
	s, _, _ := newTestState(t, api, "tok")

	s.Logout(context.Background())
	if err := s.Revalidate(context.Background()); err != nil {
		t.Fatalf("Revalidate がエラーを返した: %v", err)
	}
	if api.verifyCalls.Load() != 0 {
		t.Errorf("VerifyToken 呼び出し回数 = %d, want 0", api.verifyCalls.Load())
	}
	if s.User() != nil || s.IsAuthenticated() {
		t.Error("状態が変化してはならない")
	}
}

func TestState_Revalidate_AcceptedSetsUser(t *testing.T) {
	api := &mockAPI{
		verifyTokenFn: func(_ context.Context, token string) (*model.User, error) {
			if token != "tok" {
				t.Errorf("token = %q", token)
			}
			return &model.User{ID: "u1", Name: "Alice", Role: "user"}, nil
		},
	}
	s, _, _ := newTestState(t, api, "tok")

	if err := s.Revalidate(context.Background()); err != nil {
		t.Fatalf("Revalidate がエラーを返した: %v", err)
	}
	if u := s.User(); u == nil || u.ID != "u1" {
		t.Errorf("User = %+v", u)
	}
}

func TestState_Revalidate_RejectedLogsOut(t *testing.T) {
	api := &mockAPI{
		verifyTokenFn: func(context.Context, string) (*model.User, error) {
			return nil, rejection(401, "Invalid Token. please login again")
		},
	}
	s, n, _ := newTestState(t, api, "tok")

	err := s.Revalidate(context.Background())
	if !IsRejected(err) {
		t.Errorf("err = %v, want rejection", err)
	}
	if s.IsAuthenticated() {
		t.Error("拒否された場合はログアウトすべき")
	}
	if got := n.messages(); len(got) != 1 || got[0] != "Logged out" {
		t.Errorf("通知 = %v", got)
	}
}

func TestState_Revalidate_ServerErrorKeepsCredential(t *testing.T) {
	api := &mockAPI{
		verifyTokenFn: func(context.Context, string) (*model.User, error) {
			return nil, rejection(503, "")
		},
	}
	s, _, _ := newTestState(t, api, "tok")

	if err := s.Revalidate(context.Background()); err == nil {
		t.Error("5xx はエラーとして返すべき")
	}
	if !s.IsAuthenticated() {
		t.Error("5xx ではCredentialを保持すべき")
	}
}

func TestState_Revalidate_CoalescesConcurrentCalls(t *testing.T) {
	release := make(chan struct{})
	api := &mockAPI{
		verifyTokenFn: func(context.Context, string) (*model.User, error) {
			<-release
			return &model.User{ID: "u1"}, nil
		},
	}
	s, _, _ := newTestState(t, api, "tok")

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Revalidate(context.Background())
		}()
	}
	// 全ゴルーチンが待機に入るまで待つ
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := api.verifyCalls.Load(); got != 1 {
		t.Errorf("VerifyToken 呼び出し回数 = %d, want 1", got)
	}
}

func TestState_Revalidate_IgnoresCallerCancellation(t *testing.T) {
	api := &mockAPI{
		verifyTokenFn: func(ctx context.Context, _ string) (*model.User, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return &model.User{ID: "u1", Name: "Alice"}, nil
		},
	}
	s, _, _ := newTestState(t, api, "tok")

	// 先に到着した呼び出し元が切断済みでも、まとめられた検証は完了させる
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Revalidate(ctx); err != nil {
		t.Fatalf("Revalidate がエラーを返した: %v", err)
	}
	if u := s.User(); u == nil || u.ID != "u1" {
		t.Errorf("User() = %+v, want ID u1", u)
	}
}

func TestState_Login_AccountSwitchNotifiesSubscribers(t *testing.T) {
	tests := []struct {
		name      string
		prevToken string
		newToken  string
		want      []bool
	}{
		{"匿名からのログイン", "", "tok-bob", []bool{true}},
		{"別アカウントへの切り替え", "tok-alice", "tok-bob", []bool{true}},
		{"同じトークンでの再ログイン", "tok-bob", "tok-bob", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &mockAPI{
				signInFn: func(context.Context, storeapi.SignInRequest) (*storeapi.AuthResult, error) {
					return &storeapi.AuthResult{Token: tt.newToken, User: &model.User{Name: "Bob", Email: "bob@example.com"}}, nil
				},
			}
			s, _, store := newTestState(t, api, tt.prevToken)

			var transitions []bool
			s.Subscribe(func(authenticated bool) { transitions = append(transitions, authenticated) })

			if _, err := s.Login(context.Background(), Credentials{Email: "bob@example.com", Password: "secret123"}); err != nil {
				t.Fatalf("Login がエラーを返した: %v", err)
			}
			if s.Token() != tt.newToken || store.tokens["s1"] != tt.newToken {
				t.Errorf("token = %q, stored = %q, want %q", s.Token(), store.tokens["s1"], tt.newToken)
			}
			if len(transitions) != len(tt.want) || (len(tt.want) > 0 && transitions[0] != tt.want[0]) {
				t.Errorf("transitions = %v, want %v", transitions, tt.want)
			}
		})
	}
}

func TestState_Revalidate_DiscardsResultAfterLogout(t *testing.T) {
	var s *State
	api := &mockAPI{
		verifyTokenFn: func(context.Context, string) (*model.User, error) {
			s.Logout(context.Background())
			return &model.User{ID: "u1"}, nil
		},
	}
	s, _, _ = newTestState(t, api, "tok")

	if err := s.Revalidate(context.Background()); err != nil {
		t.Fatalf("Revalidate がエラーを返した: %v", err)
	}
	if s.User() != nil {
		t.Error("ログアウト後に再検証結果を反映してはならない")
	}
}

func TestState_SignUp(t *testing.T) {
	api := &mockAPI{
		signUpFn: func(_ context.Context, req storeapi.SignUpRequest) (*storeapi.AuthResult, error) {
			if req.RePassword != "Secret1" {
				t.Errorf("RePassword = %q", req.RePassword)
			}
			return &storeapi.AuthResult{Message: "success", Token: "ignored"}, nil
		},
	}
	s, n, _ := newTestState(t, api, "")

	res, err := s.SignUp(context.Background(), validSignUp())
	if err != nil {
		t.Fatalf("SignUp がエラーを返した: %v", err)
	}
	if res.Message != "success" {
		t.Errorf("Message = %q", res.Message)
	}
	if s.IsAuthenticated() {
		t.Error("会員登録で認証状態にしてはならない")
	}
	if got := n.messages(); len(got) != 1 || got[0] != "Signup successful!" {
		t.Errorf("通知 = %v", got)
	}
}

func TestState_SignUp_Failure(t *testing.T) {
	api := &mockAPI{
		signUpFn: func(context.Context, storeapi.SignUpRequest) (*storeapi.AuthResult, error) {
			return nil, rejection(409, "Account Already Exists")
		},
	}
	s, n, _ := newTestState(t, api, "")

	_, err := s.SignUp(context.Background(), validSignUp())
	if !errors.Is(err, model.NewSignupFailedError("")) {
		t.Errorf("err = %v, want SIGNUP_FAILED", err)
	}
	if got := n.messages(); len(got) != 1 || got[0] != "Account Already Exists" {
		t.Errorf("通知 = %v", got)
	}
}

func TestState_Unsubscribe(t *testing.T) {
	s, _, _ := newTestState(t, &mockAPI{}, "tok")
	calls := 0
	unsubscribe := s.Subscribe(func(bool) { calls++ })
	unsubscribe()

	s.Logout(context.Background())
	if calls != 0 {
		t.Errorf("解除後に通知された: %d", calls)
	}
}

func TestParseTokenClaims(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"id": "u9", "name": "Bob", "role": "admin"})

	claims, ok := parseTokenClaims(token)
	if !ok {
		t.Fatal("JWT のペイロードを読み取れるべき")
	}
	if claims.UserID != "u9" || claims.Name != "Bob" || claims.Role != "admin" {
		t.Errorf("claims = %+v", claims)
	}

	if _, ok := parseTokenClaims("not-a-jwt"); ok {
		t.Error("不正なトークンは false を返すべき")
	}
}
