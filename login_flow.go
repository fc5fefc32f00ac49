package authcore

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/digitoon/authcore/session"
)

// Stage is the login flow's user-visible page state.
type Stage string

const (
	// StageInitial is the pre-state before the flow is shown.
	StageInitial Stage = "initial"
	// StageMobileNumber collects the mobile number.
	StageMobileNumber Stage = "mobile-number-page"
	// StageVerify collects the OTP.
	StageVerify Stage = "verify-page"
	// StageSelectChild picks one of several linked child accounts.
	StageSelectChild Stage = "select-child"
	// StageFinished means the profile is loaded and the session is live.
	StageFinished Stage = "finished"
)

// armedFetch names which of the flow's dependent calls is runnable. At
// most one is armed at a time; this is what keeps the stages from racing
// each other.
type armedFetch int

const (
	fetchNone armedFetch = iota
	fetchStep1
	fetchStep2
	fetchChildren
	fetchChildToken
	fetchProfile
)

const phoneMomentSep = "::"

// ChildInfo is one linked child account offered for selection.
type ChildInfo struct {
	ID          int               `json:"id"`
	Nickname    string            `json:"nickname"`
	Email       string            `json:"email,omitempty"`
	Mobile      string            `json:"mobile"`
	Avatar      string            `json:"avatar"`
	Gender      string            `json:"gender"`
	DateOfBirth string            `json:"date_of_birth"`
	IsOfficial  bool              `json:"is_official"`
	LimitAge    *session.LimitAge `json:"limit_age,omitempty"`
}

type step1Request struct {
	Mobile      string `json:"mobile"`
	DeviceID    string `json:"device_id"`
	DeviceModel string `json:"device_model"`
	DeviceOS    string `json:"device_os"`
	Resend      bool   `json:"resend,omitempty"`
}

// Step1Response is the submit-mobile response.
type Step1Response struct {
	Error        int    `json:"error"`
	Message      string `json:"message"`
	Nickname     string `json:"nickname"`
	IsFirstLogin bool   `json:"is_first_login"`
}

type step2Request struct {
	Mobile           string `json:"mobile"`
	DeviceID         string `json:"device_id"`
	VerificationCode string `json:"verification_code"`
	Nickname         string `json:"nickname"`
}

// Step2Response is the OTP-verification response carrying the short-lived
// token pair that later gets committed into the session.
type Step2Response struct {
	Error        int    `json:"error"`
	Message      string `json:"message"`
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	Nickname     string `json:"nickname"`
	FinoToken    string `json:"fino_token"`
	UserID       int    `json:"user_id"`
	IsParent     bool   `json:"is_parent"`
	HasPassword  bool   `json:"has_password"`
}

type childTokenResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
}

// LoginFlow chains the five dependent login calls: submit mobile, verify
// OTP, child-list lookup, optional child token mint, and profile fetch.
// Stage transitions are strictly forward except for the explicit
// user-triggered resets (modify phone number, resend code).
//
// All transitions are serialized on an internal lock; the armed-fetch
// discriminator plus a generation counter guarantee that a completion
// arriving after a reset cannot mutate state.
type LoginFlow struct {
	engine    *Engine
	cfg       Config
	device    DeviceInfo
	onSucceed func()
	onFailed  func()

	mu          sync.Mutex
	stage       Stage
	armed       armedFetch
	generation  uint64
	loading     bool
	lastError   string
	phoneMoment string
	step1Body   *step1Request
	step2Resp   *Step2Response
	children    []ChildInfo
	childID     int
}

// Stage returns the current page state.
func (f *LoginFlow) Stage() Stage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stage
}

// Loading reports whether a flow fetch is in progress.
func (f *LoginFlow) Loading() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loading
}

// LastError returns the last user-facing flow error ("" when none).
func (f *LoginFlow) LastError() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastError
}

// Children returns the child accounts offered for selection, if any.
func (f *LoginFlow) Children() []ChildInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ChildInfo, len(f.children))
	copy(out, f.children)
	return out
}

// PhoneMoment returns the current delimited phone-moment marker ("" when
// none).
func (f *LoginFlow) PhoneMoment() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.phoneMoment
}

// Resume inspects the durable store for a phone moment at startup. A
// well-formed moment younger than the freshness window resumes the flow
// at the verify stage with the stored mobile and nickname; anything stale
// or malformed is discarded.
func (f *LoginFlow) Resume(ctx context.Context) error {
	durable := f.engine.Session().Durable()
	if durable == nil || !durable.Ready(ctx) {
		return ErrStoreNotReady
	}
	key := f.cfg.Storage.Keys.PhoneMoment

	raw, err := durable.Get(ctx, key)
	if err != nil {
		return err
	}
	if raw == "" {
		return nil
	}

	mobile, moment, nickname, parseErr := parsePhoneMoment(raw)
	if parseErr != nil {
		return nil
	}
	if time.Since(time.UnixMilli(moment)) > f.cfg.Flow.PhoneMomentWindow {
		f.clearPhoneMoment(ctx)
		return nil
	}

	f.mu.Lock()
	f.setPhoneMomentLocked(ctx, mobile, nickname, time.UnixMilli(moment))
	f.stage = StageVerify
	f.mu.Unlock()
	return nil
}

// SubmitPhoneNumber builds the step-1 request from the device fingerprint
// and submits it. On success the flow records a fresh phone moment and
// advances to the verify stage.
func (f *LoginFlow) SubmitPhoneNumber(ctx context.Context, mobile string) error {
	f.mu.Lock()
	if f.armed != fetchNone {
		f.mu.Unlock()
		return ErrFlowBusy
	}
	if f.stage == StageSelectChild || f.stage == StageFinished {
		f.mu.Unlock()
		return ErrFlowStage
	}
	f.step1Body = &step1Request{
		Mobile:      mobile,
		DeviceID:    f.device.Platform,
		DeviceModel: f.device.ModelString(),
		DeviceOS:    f.device.OSString(),
	}
	if f.stage == StageInitial {
		f.stage = StageMobileNumber
	}
	f.mu.Unlock()

	return f.runStep1(ctx)
}

// SubmitCode handles one verify-stage input. Two reserved prefixes
// short-circuit without a network call: the modify-phone prefix resets to
// the mobile-number stage and clears the phone moment; the resend prefix
// re-issues step 1 with the resend flag. Any other value is submitted as
// the OTP.
func (f *LoginFlow) SubmitCode(ctx context.Context, code string) error {
	if code == "" {
		return ErrFlowStage
	}

	if strings.HasPrefix(code, f.cfg.Flow.ModifyPhonePrefix) {
		f.mu.Lock()
		f.generation++
		f.armed = fetchNone
		f.stage = StageMobileNumber
		f.clearPhoneMomentLocked(ctx)
		f.mu.Unlock()
		f.engine.Metrics().Inc(MetricFlowReset)
		return nil
	}

	if strings.HasPrefix(code, f.cfg.Flow.ResendPrefix) {
		f.mu.Lock()
		if f.step1Body == nil {
			f.mu.Unlock()
			return ErrFlowStage
		}
		f.step1Body.Resend = true
		f.mu.Unlock()
		return f.runStep1(ctx)
	}

	f.mu.Lock()
	if f.armed != fetchNone {
		f.mu.Unlock()
		return ErrFlowBusy
	}
	if f.stage != StageVerify || f.phoneMoment == "" {
		f.mu.Unlock()
		return ErrFlowStage
	}
	mobile, _, nickname, err := parsePhoneMoment(f.phoneMoment)
	if err != nil {
		f.mu.Unlock()
		return err
	}
	body := step2Request{
		Mobile:           mobile,
		DeviceID:         f.device.Platform,
		VerificationCode: code,
		Nickname:         nickname,
	}
	f.armed = fetchStep2
	gen := f.generation
	f.mu.Unlock()

	return f.runStep2(ctx, gen, body)
}

// SelectChild mints a token scoped to the chosen child account and then
// hydrates the profile.
func (f *LoginFlow) SelectChild(ctx context.Context, childID int) error {
	f.mu.Lock()
	if f.armed != fetchNone {
		f.mu.Unlock()
		return ErrFlowBusy
	}
	if f.stage != StageSelectChild || childID == 0 {
		f.mu.Unlock()
		return ErrFlowStage
	}
	step2 := f.step2Resp
	if step2 == nil {
		f.mu.Unlock()
		return ErrFlowStage
	}
	f.childID = childID
	f.armed = fetchChildToken
	gen := f.generation
	f.mu.Unlock()

	res := f.engine.Execute(ctx, Request{
		URL:    f.cfg.Endpoints.ChildToken,
		Method: http.MethodGet,
	}, Policy{
		RequiresAuth:    true,
		WithDeviceID:    true,
		ShowClientError: true,
		ForcedToken:     step2.Token,
		PendingSetter:   f.setLoading,
	})

	if !f.settle(gen, fetchChildToken) {
		return nil
	}
	if !res.OK() {
		return res.Failure()
	}

	var minted childTokenResponse
	if err := res.Decode(&minted); err != nil {
		return err
	}
	f.commitTokens(ctx, minted.Token, minted.RefreshToken)
	return f.fetchProfile(ctx, gen)
}

// Reset abandons any in-flight fetch and returns the flow to the
// mobile-number stage. The generation bump makes the abandoned fetch's
// completion a no-op.
func (f *LoginFlow) Reset(ctx context.Context) {
	f.mu.Lock()
	f.generation++
	f.armed = fetchNone
	f.stage = StageMobileNumber
	f.lastError = ""
	f.step1Body = nil
	f.step2Resp = nil
	f.children = nil
	f.childID = 0
	f.clearPhoneMomentLocked(ctx)
	f.mu.Unlock()
	f.engine.Metrics().Inc(MetricFlowReset)
}

func (f *LoginFlow) runStep1(ctx context.Context) error {
	f.mu.Lock()
	if f.armed != fetchNone && f.armed != fetchStep1 {
		f.mu.Unlock()
		return ErrFlowBusy
	}
	body := f.step1Body
	if body == nil {
		f.mu.Unlock()
		return ErrFlowStage
	}
	f.armed = fetchStep1
	gen := f.generation
	f.mu.Unlock()

	payload, err := json.Marshal(body)
	if err != nil {
		f.settle(gen, fetchStep1)
		return err
	}

	res := f.engine.Execute(ctx, Request{
		URL:    f.cfg.Endpoints.LoginStep1,
		Method: http.MethodPost,
		Body:   payload,
	}, Policy{
		ShowClientError: true,
		ShowSuccess:     true,
		PendingSetter:   f.setLoading,
	})

	if !f.settle(gen, fetchStep1) {
		return nil
	}

	if !res.OK() {
		f.mu.Lock()
		f.clearPhoneMomentLocked(ctx)
		f.stage = StageMobileNumber
		f.mu.Unlock()
		return res.Failure()
	}

	var step1 Step1Response
	if err := res.Decode(&step1); err != nil {
		return err
	}

	f.mu.Lock()
	f.setPhoneMomentLocked(ctx, body.Mobile, step1.Nickname, time.Now())
	f.stage = StageVerify
	f.mu.Unlock()
	f.engine.Metrics().Inc(MetricStageAdvance)
	return nil
}

func (f *LoginFlow) runStep2(ctx context.Context, gen uint64, body step2Request) error {
	payload, err := json.Marshal(body)
	if err != nil {
		f.settle(gen, fetchStep2)
		return err
	}

	wrongCode := false
	res := f.engine.Execute(ctx, Request{
		URL:    f.cfg.Endpoints.LoginStep2,
		Method: http.MethodPost,
		Body:   payload,
	}, Policy{
		WithDeviceID:    true,
		ShowClientError: true,
		PendingSetter:   f.setLoading,
		On401: func(Result) {
			wrongCode = true
		},
	})

	if !f.settle(gen, fetchStep2) {
		return nil
	}

	if wrongCode {
		// Wrong OTP: stay on the verify stage, session and device state
		// untouched.
		f.mu.Lock()
		f.lastError = f.cfg.Messages.WrongCode
		f.stage = StageVerify
		f.mu.Unlock()
		f.engine.Notify(ctx, Notification{Type: NotifError, Message: f.cfg.Messages.WrongCode})
		return ErrWrongCode
	}

	if !res.OK() {
		f.mu.Lock()
		f.stage = StageVerify
		f.mu.Unlock()
		if f.onFailed != nil {
			f.onFailed()
		}
		return res.Failure()
	}

	var step2 Step2Response
	if err := res.Decode(&step2); err != nil {
		return err
	}

	f.mu.Lock()
	f.clearPhoneMomentLocked(ctx)
	f.lastError = ""
	f.step2Resp = &step2
	f.armed = fetchChildren
	f.mu.Unlock()
	f.engine.Metrics().Inc(MetricStageAdvance)
	if f.onSucceed != nil {
		f.onSucceed()
	}

	return f.lookupChildren(ctx, gen, &step2)
}

// lookupChildren decides the route after OTP verification: more than one
// linked child goes to selection, otherwise the step-2 token pair is
// committed and the profile fetched. A non-2xx answer carrying a status
// means the account has no family; it commits tokens the same way.
func (f *LoginFlow) lookupChildren(ctx context.Context, gen uint64, step2 *Step2Response) error {
	res := f.engine.Execute(ctx, Request{
		URL:    f.cfg.Endpoints.ChildrenList,
		Method: http.MethodGet,
	}, Policy{
		RequiresAuth:  true,
		ForcedToken:   step2.Token,
		PendingSetter: f.setLoading,
	})

	if !f.settle(gen, fetchChildren) {
		return nil
	}

	if res.OK() {
		var children []ChildInfo
		if err := res.Decode(&children); err != nil {
			return err
		}
		if len(children) > 1 {
			f.mu.Lock()
			f.children = children
			f.stage = StageSelectChild
			f.mu.Unlock()
			f.engine.Metrics().Inc(MetricStageAdvance)
			return nil
		}
		f.commitTokens(ctx, step2.Token, step2.RefreshToken)
		return f.fetchProfile(ctx, gen)
	}

	if res.Kind == ResultClientError && res.StatusCode != 0 {
		// Empty family: the backend answers outside the 2xx range here.
		f.commitTokens(ctx, step2.Token, step2.RefreshToken)
		return f.fetchProfile(ctx, gen)
	}

	return res.Failure()
}

func (f *LoginFlow) fetchProfile(ctx context.Context, gen uint64) error {
	if !f.engine.Session().LoggedIn() {
		return ErrNotAuthenticated
	}

	f.mu.Lock()
	f.armed = fetchProfile
	f.mu.Unlock()

	res := f.engine.Execute(ctx, Request{
		URL:    f.cfg.Endpoints.ProfileWithSubs,
		Method: http.MethodGet,
	}, Policy{
		RequiresAuth:    true,
		WithDeviceID:    true,
		ShowClientError: true,
		PendingSetter:   f.setLoading,
	})

	if !f.settle(gen, fetchProfile) {
		return nil
	}
	if !res.OK() {
		return res.Failure()
	}

	var profile session.Profile
	if err := res.Decode(&profile); err != nil {
		return err
	}

	f.engine.Session().SetProfile(ctx, &profile)
	f.mu.Lock()
	f.stage = StageFinished
	f.mu.Unlock()
	f.engine.Metrics().Inc(MetricStageAdvance)
	return nil
}

// settle disarms the named fetch and reports whether its completion is
// still current. A generation mismatch means the flow was reset while the
// call was in flight; the completion must not mutate state.
func (f *LoginFlow) settle(gen uint64, fetch armedFetch) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.generation != gen {
		return false
	}
	if f.armed == fetch {
		f.armed = fetchNone
	}
	return true
}

func (f *LoginFlow) setLoading(v bool) {
	f.mu.Lock()
	f.loading = v
	f.mu.Unlock()
}

func (f *LoginFlow) commitTokens(ctx context.Context, token, refresh string) {
	f.engine.Session().Login(ctx, token, refresh)
	f.engine.Metrics().Inc(MetricLoginCommitted)
}

func (f *LoginFlow) setPhoneMomentLocked(ctx context.Context, mobile, nickname string, at time.Time) {
	if nickname == "" {
		nickname = f.cfg.Flow.GuestNickname
	}
	moment := mobile + phoneMomentSep + strconv.FormatInt(at.UnixMilli(), 10) + phoneMomentSep + nickname
	f.phoneMoment = moment
	durable := f.engine.Session().Durable()
	if durable != nil {
		_ = durable.Set(ctx, f.cfg.Storage.Keys.PhoneMoment, moment)
	}
}

func (f *LoginFlow) clearPhoneMoment(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearPhoneMomentLocked(ctx)
}

func (f *LoginFlow) clearPhoneMomentLocked(ctx context.Context) {
	f.phoneMoment = ""
	durable := f.engine.Session().Durable()
	if durable != nil {
		_ = durable.Clear(ctx, f.cfg.Storage.Keys.PhoneMoment)
	}
}

// parsePhoneMoment splits a stored moment into its three fields. The
// middle field must be a decimal millisecond timestamp.
func parsePhoneMoment(raw string) (mobile string, moment int64, nickname string, err error) {
	parts := strings.Split(raw, phoneMomentSep)
	if len(parts) != 3 {
		return "", 0, "", ErrPhoneMomentMalformed
	}
	ts, parseErr := strconv.ParseInt(parts[1], 10, 64)
	if parseErr != nil {
		return "", 0, "", ErrPhoneMomentMalformed
	}
	return parts[0], ts, parts[2], nil
}
