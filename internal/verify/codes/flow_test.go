package codes

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/verify/internal/verify/domain"
	"github.com/aussiebroadwan/verify/internal/verify/store"
)

// fakeCodesStore is an in-memory store.VerificationCodes with the same
// consume-once semantics as the sqlite driver.
type fakeCodesStore struct {
	mu    sync.Mutex
	codes map[string]*domain.VerificationCode // by id
}

func newFakeCodesStore() *fakeCodesStore {
	return &fakeCodesStore{codes: make(map[string]*domain.VerificationCode)}
}

func (s *fakeCodesStore) InsertCode(_ context.Context, c domain.VerificationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[c.ID] = &c
	return nil
}

func (s *fakeCodesStore) GetCodeByTypeAndHash(_ context.Context, flowType domain.FlowType, codeHash string) (domain.VerificationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.codes {
		if c.FlowType == flowType && c.CodeHash == codeHash {
			return *c, nil
		}
	}
	return domain.VerificationCode{}, store.ErrNotFound
}

func (s *fakeCodesStore) ConsumeCode(_ context.Context, id string, usedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[id]
	if !ok || c.UsedAt != nil {
		return false, nil
	}
	c.UsedAt = &usedAt
	return true, nil
}

func (s *fakeCodesStore) DeleteExpiredCodes(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for id, c := range s.codes {
		if now.After(c.ExpiresAt) {
			delete(s.codes, id)
		}
	}
	return nil
}

type testData struct {
	Email string `json:"email"`
}

type testMethod struct {
	Channel string `json:"channel"`
}

func (m testMethod) Validate() error {
	if m.Channel == "" {
		return errors.New("channel required")
	}
	return nil
}

type testReq struct {
	Pin string
}

func testTenancy(id string) domain.Tenancy {
	return domain.Tenancy{ID: id, ProjectID: "proj-" + id, BranchID: "main"}
}

func newTestFlow(st store.VerificationCodes) *Flow[testData, testMethod, testReq, string] {
	return &Flow[testData, testMethod, testReq, string]{
		Type:  domain.FlowOneTimePassword,
		Store: st,
		Handler: func(_ context.Context, _ domain.Tenancy, _ testMethod, data testData, _ testReq) (string, error) {
			return data.Email, nil
		},
	}
}

func defaultOpts(tn domain.Tenancy) CreateCodeOptions[testData, testMethod] {
	return CreateCodeOptions[testData, testMethod]{
		Tenancy:   tn,
		Data:      testData{Email: "user@example.com"},
		Method:    testMethod{Channel: "email"},
		ExpiresIn: 30 * time.Minute,
	}
}

func TestCreateCodeShape(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tn := testTenancy("t1")
	flow := newTestFlow(newFakeCodesStore())

	callback := "https://app.example.com/verify"
	opts := defaultOpts(tn)
	opts.CallbackURL = &callback

	created, err := flow.CreateCode(ctx, opts)
	require.NoError(t, err)

	require.Len(t, created.Code, 45)
	require.Len(t, created.OTP, 6)
	require.Len(t, created.Nonce, 39)
	require.Equal(t, created.Code[6:], created.Nonce)

	// OTP is the display form of the code's head
	for i := range created.OTP {
		require.Equal(t, created.Code[i], created.OTP[i]|0x20)
	}

	require.NotNil(t, created.Link)
	require.Equal(t, created.Code, created.Link.Query().Get("code"))
	require.Equal(t, "app.example.com", created.Link.Host)
}

func TestCreateCodeRejectsBadMethod(t *testing.T) {
	t.Parallel()
	flow := newTestFlow(newFakeCodesStore())

	opts := defaultOpts(testTenancy("t1"))
	opts.Method = testMethod{} // missing channel

	_, err := flow.CreateCode(context.Background(), opts)
	require.Error(t, err)
}

func TestUseCodeOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tn := testTenancy("t1")
	flow := newTestFlow(newFakeCodesStore())

	created, err := flow.CreateCode(ctx, defaultOpts(tn))
	require.NoError(t, err)

	resp, err := flow.UseCode(ctx, tn, created.Code, testReq{})
	require.NoError(t, err)
	require.Equal(t, "user@example.com", resp)

	_, err = flow.UseCode(ctx, tn, created.Code, testReq{})
	require.ErrorIs(t, err, ErrInvalidCode)
}

func TestUseCodeAcceptsNormalizedInput(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tn := testTenancy("t1")
	flow := newTestFlow(newFakeCodesStore())

	created, err := flow.CreateCode(ctx, defaultOpts(tn))
	require.NoError(t, err)

	// Upper-cased with surrounding whitespace, as a user might paste it.
	submitted := "  " + created.OTP + created.Nonce + " "
	_, err = flow.UseCode(ctx, tn, submitted, testReq{})
	require.NoError(t, err)
}

func TestCheckCodeDoesNotConsume(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tn := testTenancy("t1")
	flow := newTestFlow(newFakeCodesStore())

	created, err := flow.CreateCode(ctx, defaultOpts(tn))
	require.NoError(t, err)

	for range 3 {
		res, err := flow.CheckCode(ctx, tn, created.Code, testReq{})
		require.NoError(t, err)
		require.Equal(t, "user@example.com", res.Data.Email)
	}

	_, err = flow.UseCode(ctx, tn, created.Code, testReq{})
	require.NoError(t, err)

	_, err = flow.CheckCode(ctx, tn, created.Code, testReq{})
	require.ErrorIs(t, err, ErrInvalidCode)
}

func TestUseCodeRejections(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tn := testTenancy("t1")
	st := newFakeCodesStore()
	flow := newTestFlow(st)

	t.Run("unknown code", func(t *testing.T) {
		_, err := flow.UseCode(ctx, tn, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", testReq{})
		require.ErrorIs(t, err, ErrInvalidCode)
	})

	t.Run("wrong length", func(t *testing.T) {
		_, err := flow.UseCode(ctx, tn, "short", testReq{})
		require.ErrorIs(t, err, ErrInvalidCode)
	})

	t.Run("expired code", func(t *testing.T) {
		opts := defaultOpts(tn)
		opts.ExpiresIn = time.Nanosecond
		created, err := flow.CreateCode(ctx, opts)
		require.NoError(t, err)

		time.Sleep(time.Millisecond)
		_, err = flow.UseCode(ctx, tn, created.Code, testReq{})
		require.ErrorIs(t, err, ErrInvalidCode)
	})

	t.Run("wrong tenancy", func(t *testing.T) {
		created, err := flow.CreateCode(ctx, defaultOpts(tn))
		require.NoError(t, err)

		_, err = flow.UseCode(ctx, testTenancy("other"), created.Code, testReq{})
		require.ErrorIs(t, err, ErrInvalidCode)
	})

	t.Run("wrong flow type", func(t *testing.T) {
		created, err := flow.CreateCode(ctx, defaultOpts(tn))
		require.NoError(t, err)

		other := newTestFlow(st)
		other.Type = domain.FlowContactVerification
		_, err = other.UseCode(ctx, tn, created.Code, testReq{})
		require.ErrorIs(t, err, ErrInvalidCode)
	})
}

func TestValidateDoesNotConsume(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tn := testTenancy("t1")

	errWrongPin := errors.New("wrong pin")
	flow := newTestFlow(newFakeCodesStore())
	flow.Validate = func(_ context.Context, _ domain.Tenancy, _ testMethod, _ testData, req testReq) error {
		if req.Pin != "123456" {
			return errWrongPin
		}
		return nil
	}

	created, err := flow.CreateCode(ctx, defaultOpts(tn))
	require.NoError(t, err)

	t.Run("failure is masked by default", func(t *testing.T) {
		_, err := flow.UseCode(ctx, tn, created.Code, testReq{Pin: "000000"})
		require.ErrorIs(t, err, ErrInvalidCode)
	})

	t.Run("surfaced when the flow opts in", func(t *testing.T) {
		flow.SurfaceValidateErrors = true
		_, err := flow.UseCode(ctx, tn, created.Code, testReq{Pin: "000000"})
		require.ErrorIs(t, err, errWrongPin)
	})

	t.Run("code is still redeemable after failed attempts", func(t *testing.T) {
		_, err := flow.UseCode(ctx, tn, created.Code, testReq{Pin: "123456"})
		require.NoError(t, err)
	})
}

func TestConcurrentRedeemersSingleWinner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tn := testTenancy("t1")
	flow := newTestFlow(newFakeCodesStore())

	created, err := flow.CreateCode(ctx, defaultOpts(tn))
	require.NoError(t, err)

	const n = 16
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		wins  int
		fails int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := flow.UseCode(ctx, tn, created.Code, testReq{})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if errors.Is(err, ErrInvalidCode) {
				fails++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, wins)
	require.Equal(t, n-1, fails)
}
