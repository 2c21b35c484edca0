package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
)

func TestNewWelcomeTask(t *testing.T) {
	task, err := NewWelcomeTask(WelcomePayload{MemberID: 7, Login: "nina", Email: "nina@example.com"})
	require.NoError(t, err)
	assert.Equal(t, TaskTypeWelcomeMail, task.Type())

	var payload WelcomePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, int64(7), payload.MemberID)
}

func TestWelcomeHandlerSendsMail(t *testing.T) {
	mailer := &MemoryMailer{}
	h := WelcomeHandler{Mailer: mailer, SiteURL: "https://club.example/"}
	task, err := NewWelcomeTask(WelcomePayload{MemberID: 7, Login: "nina", Email: "nina@example.com", Name: "Nina Jansen"})
	require.NoError(t, err)

	require.NoError(t, h.ProcessTask(context.Background(), task))
	sent := mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "nina@example.com", sent[0].To)
	assert.Contains(t, sent[0].Body, "Hi Nina Jansen,")
	assert.Contains(t, sent[0].Body, "https://club.example/login")
}

func TestWelcomeHandlerSkipsRetryOnBadPayload(t *testing.T) {
	h := WelcomeHandler{Mailer: &MemoryMailer{}}

	err := h.ProcessTask(context.Background(), asynq.NewTask(TaskTypeWelcomeMail, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	task, err := NewWelcomeTask(WelcomePayload{MemberID: 3, Login: "noemail"})
	require.NoError(t, err)
	assert.ErrorIs(t, h.ProcessTask(context.Background(), task), asynq.SkipRetry)
}

type failingMailer struct{}

func (failingMailer) Send(context.Context, Message) error { return errors.New("relay down") }

func TestWelcomeHandlerRetriesMailFailure(t *testing.T) {
	task, err := NewWelcomeTask(WelcomePayload{MemberID: 1, Login: "a", Email: "a@example.com"})
	require.NoError(t, err)
	err = WelcomeHandler{Mailer: failingMailer{}}.ProcessTask(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestSMTPMailerFormatsMessage(t *testing.T) {
	var got strings.Builder
	m := NewSMTPMailer("127.0.0.1", 1025, "no-reply@club.example")
	m.send = func(_ context.Context, msg *mail.Msg) error {
		_, err := msg.WriteTo(&got)
		return err
	}
	require.NoError(t, m.Send(context.Background(), Message{To: "a@example.com", Subject: "Welkom bij de club, José", Body: "line1\nline2"}))

	raw := got.String()
	assert.Contains(t, raw, "no-reply@club.example")
	assert.Contains(t, raw, "a@example.com")
	assert.Contains(t, raw, "Subject: =?UTF-8?")
	assert.NotContains(t, raw, "José")
	assert.Contains(t, raw, "line1")
	assert.Contains(t, raw, "line2")
}

func TestSMTPMailerRejectsInjectedHeaders(t *testing.T) {
	m := NewSMTPMailer("127.0.0.1", 1025, "no-reply@club.example")
	m.send = func(context.Context, *mail.Msg) error {
		t.Fatal("send must not be reached")
		return nil
	}
	assert.Error(t, m.Send(context.Background(), Message{To: "a@example.com\r\nBcc: x@y", Subject: "x"}))
	assert.Error(t, m.Send(context.Background(), Message{To: "a@example.com", Subject: "x\r\nBcc: x@y"}))
	assert.Error(t, m.Send(context.Background(), Message{To: "not an address", Subject: "x"}))
}

func TestSMTPMailerHonoursContext(t *testing.T) {
	m := NewSMTPMailer("127.0.0.1", 1025, "no-reply@club.example")
	var gotCtx context.Context
	m.send = func(ctx context.Context, _ *mail.Msg) error {
		gotCtx = ctx
		return ctx.Err()
	}
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "v")
	require.NoError(t, m.Send(ctx, Message{To: "a@example.com", Subject: "x"}))
	assert.Equal(t, "v", gotCtx.Value(key{}))

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	gotCtx = nil
	assert.ErrorIs(t, m.Send(canceled, Message{To: "a@example.com", Subject: "x"}), context.Canceled)
	assert.Nil(t, gotCtx)

	// the real relay path gives up on a canceled context without delivering
	relay := NewSMTPMailer("127.0.0.1", 1, "no-reply@club.example")
	msg, err := relay.compose(Message{To: "a@example.com", Subject: "x"})
	require.NoError(t, err)
	assert.Error(t, relay.dialAndSend(canceled, msg))
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, s.err }

func TestHealthHandler(t *testing.T) {
	res := httptest.NewRecorder()
	NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3, Failed: 1}}, nil).
		health(res, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusOK, res.Code)

	var body QueueHealth
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Pending)
	assert.Equal(t, 1, body.Failed)

	res = httptest.NewRecorder()
	NewHandler(nil, nil).health(res, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"queue":"default","pending":0,"active":0,"retry":0,"archived":0,"processed":0,"failed":0}`, res.Body.String())
}

func TestWelcomeHandlerRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	ok, err := NewWelcomeTask(WelcomePayload{MemberID: 1, Login: "a", Email: "a@example.com"})
	require.NoError(t, err)
	require.NoError(t, WelcomeHandler{Mailer: &MemoryMailer{}, Metrics: metrics}.ProcessTask(context.Background(), ok))
	require.Error(t, WelcomeHandler{Mailer: failingMailer{}, Metrics: metrics}.ProcessTask(context.Background(), ok))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues(TaskTypeWelcomeMail, "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues(TaskTypeWelcomeMail, "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.failures.WithLabelValues(TaskTypeWelcomeMail)))
}

func TestNilMetricsTrackerPassesErrorThrough(t *testing.T) {
	var m *Metrics
	want := errors.New("boom")
	assert.Equal(t, want, m.Track(TaskTypeWelcomeMail).End(want))
}
