package runtime

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/pathcall/pathcall/internal/runtime/auth"
	configpkg "github.com/pathcall/pathcall/internal/runtime/config"
	loggingpkg "github.com/pathcall/pathcall/internal/runtime/logging"
	transportpkg "github.com/pathcall/pathcall/transport"
	"go.opentelemetry.io/otel"
)

func newTestLogger() loggingpkg.ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// fakeStore is an in-memory Store for tests: plain keys, sets, and a
// single-channel pub/sub.
type fakeStore struct {
	mu        sync.Mutex
	values    map[string]string
	sets      map[string][]string
	published map[string][]string
	listeners map[string][]chan string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		values:    make(map[string]string),
		sets:      make(map[string][]string),
		published: make(map[string][]string),
		listeners: make(map[string][]chan string),
	}
}

func (s *fakeStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *fakeStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *fakeStore) SAdd(ctx context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range members {
		found := false
		for _, existing := range s.sets[key] {
			if existing == m {
				found = true
				break
			}
		}
		if !found {
			s.sets[key] = append(s.sets[key], m)
		}
	}
	return nil
}

func (s *fakeStore) SMembers(ctx context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sets[key]...), nil
}

func (s *fakeStore) Publish(ctx context.Context, channel, payload string) error {
	s.mu.Lock()
	s.published[channel] = append(s.published[channel], payload)
	listeners := append([]chan string(nil), s.listeners[channel]...)
	s.mu.Unlock()
	for _, ch := range listeners {
		ch <- payload
	}
	return nil
}

func (s *fakeStore) Listen(ctx context.Context, channel string) (<-chan string, error) {
	ch := make(chan string, 16)
	s.mu.Lock()
	s.listeners[channel] = append(s.listeners[channel], ch)
	s.mu.Unlock()
	return ch, nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) Published(channel string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.published[channel]...)
}

type publishedMessage struct {
	topic   string
	payload []byte
}

type testPublisher struct {
	mu        sync.Mutex
	published []publishedMessage
	err       error
}

func (p *testPublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	for _, msg := range messages {
		p.published = append(p.published, publishedMessage{topic: topic, payload: msg.Payload})
	}
	return nil
}

func (p *testPublisher) Close() error { return nil }

func (p *testPublisher) Messages() []publishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	clone := make([]publishedMessage, len(p.published))
	copy(clone, p.published)
	return clone
}

type testSubscriber struct {
	err error
}

func (s *testSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan *message.Message)
	close(ch)
	return ch, nil
}

func (s *testSubscriber) Close() error { return nil }

func newTestConfig() *configpkg.Config {
	return &configpkg.Config{
		Application:  "acme",
		Service:      "billing",
		Environment:  "test",
		Broker:       "channel",
		Port:         8080,
		AppSecret:    "test-secret",
		ScriptSecret: "script-secret",
	}
}

// newTestEngine assembles an engine by hand, bypassing the single-engine
// guard and the broker connection.
func newTestEngine(t *testing.T) (*Engine, *fakeStore, *testPublisher) {
	t.Helper()

	conf := newTestConfig()
	log := newTestLogger()
	st := newFakeStore()
	pub := &testPublisher{}

	e := &Engine{
		conf:     conf,
		logger:   log,
		registry: NewRegistry(),
		store:    st,
		remotes:  make(map[string]RemoteClient),
		tracer:   otel.Tracer("test"),
	}
	e.metrics = newMetrics(conf.Service)
	e.gateway = auth.NewGateway(conf.AppSecret, st, log)
	e.authorize = e.gateway.Authorize

	e.queue = newQueue(conf.InboxQueue(), log, e.metrics)
	e.queue.Process(e.consumeQueue)
	if err := e.queue.attach(transportpkg.Transport{Publisher: pub, Subscriber: &testSubscriber{}}); err != nil {
		t.Fatalf("attaching test transport: %v", err)
	}

	e.events = newEventBus(conf.Application, conf.Environment, conf.Service, st, e.queue, log, e.metrics)
	e.sessions = newSessionManager(
		e.authorize,
		e.registry.Lookup,
		st,
		"acme-test-socket",
		log,
		e.metrics,
	)
	e.mux = e.buildMux()

	return e, st, pub
}

// signTestToken issues a bearer token accepted by the test engine's gateway.
func signTestToken(t *testing.T, e *Engine, claims map[string]any) string {
	t.Helper()
	token, err := e.gateway.Sign(claims, time.Hour)
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return token
}

// openTable returns a serialized permission table that allows everything for
// the billing service.
const openTable = `{}`

// grantTier stores a permission table under the given tier key.
func grantTier(t *testing.T, st *fakeStore, tier, table string) {
	t.Helper()
	if err := st.Set(context.Background(), tier, table); err != nil {
		t.Fatalf("storing permission table: %v", err)
	}
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
