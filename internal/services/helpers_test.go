// internal/services/helpers_test.go
package services

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/idlabstudio/idlab-backend/internal/config"
	"github.com/idlabstudio/idlab-backend/internal/mailer"
	"github.com/idlabstudio/idlab-backend/internal/store"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (n *recordingNotifier) Send(ctx context.Context, msg mailer.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) FailWith(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

func (n *recordingNotifier) Messages() []mailer.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]mailer.Message(nil), n.sent...)
}

func (n *recordingNotifier) MessagesTo(email string) []mailer.Message {
	var out []mailer.Message
	for _, msg := range n.Messages() {
		if msg.To == email {
			out = append(out, msg)
		}
	}
	return out
}

type stubVerifier struct {
	err        error
	references []string
}

func (v *stubVerifier) VerifyPayment(ctx context.Context, reference string) error {
	v.references = append(v.references, reference)
	return v.err
}

func testConfig() *config.Config {
	workflow := config.DefaultWorkflowConfig()
	workflow.RetryDelay = time.Millisecond

	return &config.Config{
		Environment: "test",
		JWT:         config.JWTConfig{SecretKey: "test-secret", AccessTokenTTL: 1},
		Store:       config.StoreConfig{Driver: "memory"},
		Email:       config.EmailConfig{Provider: "log", SendTimeout: 5 * time.Second},
		Frontend:    config.FrontendConfig{BaseURL: "https://idlab.test", PublicURL: "https://api.idlab.test"},
		Brand:       config.DefaultBrandConfig(),
		Workflow:    workflow,
	}
}

func newTestServices(t *testing.T, st store.Store, verifier PaymentVerifier) (*Services, *recordingNotifier) {
	t.Helper()
	cfg := testConfig()
	storage, err := NewStorageService(cfg)
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	return NewWithDeps(cfg, st, notifier, storage, verifier), notifier
}

var tokenPattern = regexp.MustCompile(`token=([0-9a-f]{64})`)

// linkToken pulls the plaintext token out of an approval request e-mail.
func linkToken(t *testing.T, msg mailer.Message) string {
	t.Helper()
	match := tokenPattern.FindStringSubmatch(msg.HTML)
	require.Len(t, match, 2, "approval email has no token link")
	return match[1]
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

// contextStore fails every call made with a finished context, the way the
// gorm store does. cancelWhen, if set, is consulted after each successful
// write and cancels the caller's context when it returns true.
type contextStore struct {
	store.Store

	mu         sync.Mutex
	cancel     context.CancelFunc
	cancelWhen func(op string, set store.Fields) bool
}

// cancelAfter arranges for cancel to run once a write matching when lands.
func (s *contextStore) cancelAfter(cancel context.CancelFunc, when func(op string, set store.Fields) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel, s.cancelWhen = cancel, when
}

func (s *contextStore) wrote(op string, set store.Fields) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelWhen != nil && s.cancelWhen(op, set) {
		s.cancel()
		s.cancelWhen = nil
	}
}

func (s *contextStore) Create(ctx context.Context, doc store.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.Store.Create(ctx, doc); err != nil {
		return err
	}
	s.wrote("create:"+doc.TableName(), nil)
	return nil
}

func (s *contextStore) Get(ctx context.Context, doc store.Document, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.Get(ctx, doc, id)
}

func (s *contextStore) First(ctx context.Context, doc store.Document, filters store.Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.First(ctx, doc, filters)
}

func (s *contextStore) Find(ctx context.Context, dest interface{}, q store.Query) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.Find(ctx, dest, q)
}

func (s *contextStore) Count(ctx context.Context, doc store.Document, filters store.Fields) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.Store.Count(ctx, doc, filters)
}

func (s *contextStore) Update(ctx context.Context, doc store.Document, id uuid.UUID, where, set store.Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.Store.Update(ctx, doc, id, where, set); err != nil {
		return err
	}
	s.wrote("update:"+doc.TableName(), set)
	return nil
}

func (s *contextStore) Transaction(ctx context.Context, fn func(tx store.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.Store.Transaction(ctx, fn); err != nil {
		return err
	}
	s.wrote("commit", nil)
	return nil
}
