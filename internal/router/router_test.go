// Package router_test tests engine selection, fallback, and stats tracking.
package router_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/tts-gateway/internal/core"
	"github.com/book-expert/tts-gateway/internal/router"
)

// mockProvider is a scriptable Provider implementation.
type mockProvider struct {
	name     string
	synthErr error
	probeErr error
	calls    int
}

func (m *mockProvider) Name() string {
	return m.name
}

func (m *mockProvider) NativeFormat() core.AudioFormat {
	return core.FormatWAV
}

func (m *mockProvider) Synthesize(
	_ context.Context,
	text, _, _ string,
	_, _ float64,
) ([]byte, error) {
	m.calls++

	if m.synthErr != nil {
		return nil, m.synthErr
	}

	return []byte(m.name + ":" + text), nil
}

func (m *mockProvider) Probe(_ context.Context) error {
	return m.probeErr
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "router-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	return log
}

func newTestRouter(t *testing.T, policy router.Policy, descriptors ...*router.Descriptor) *router.Router {
	t.Helper()

	return router.New(descriptors, policy, time.Second, 0, newTestLogger(t))
}

func describe(provider *mockProvider, languages []string, priority int) *router.Descriptor {
	return router.NewDescriptor(
		provider,
		languages,
		core.EngineCapabilities{MaxTextLength: core.MaxTextLength},
		priority,
	)
}

func englishRequest(text string) core.SynthRequest {
	return core.SynthRequest{
		Text:     text,
		Language: "en",
		Rate:     1.0,
		Format:   core.FormatOGG,
	}
}

func TestFallbackToNextCandidateOnFailure(t *testing.T) {
	t.Parallel()

	edge := &mockProvider{name: "edge", synthErr: core.ErrProviderTransient}
	gtts := &mockProvider{name: "gtts"}

	testRouter := newTestRouter(t,
		router.Policy{Languages: map[string][]string{"en": {"edge", "gtts"}}},
		describe(edge, []string{"en"}, 0),
		describe(gtts, []string{"en"}, 1),
	)

	result, err := testRouter.Synthesize(context.Background(), englishRequest("hello"))
	require.NoError(t, err)
	assert.Equal(t, "gtts", result.Engine)
	assert.Equal(t, []byte("gtts:hello"), result.Audio)

	stats := testRouter.Stats(context.Background())
	require.Len(t, stats, 2)
	assert.Equal(t, uint64(1), stats[0].FailureCount)
	assert.Equal(t, uint64(0), stats[0].SuccessCount)
	assert.Equal(t, uint64(1), stats[1].SuccessCount)
	assert.Equal(t, uint64(0), stats[1].FailureCount)
}

func TestExhaustionReportsAllEnginesUnavailable(t *testing.T) {
	t.Parallel()

	lastErr := fmt.Errorf("%w: upstream 502", core.ErrProviderTransient)
	edge := &mockProvider{name: "edge", synthErr: core.ErrProviderTransient}
	gtts := &mockProvider{name: "gtts", synthErr: lastErr}

	testRouter := newTestRouter(t,
		router.Policy{Languages: map[string][]string{"en": {"edge", "gtts"}}},
		describe(edge, []string{"en"}, 0),
		describe(gtts, []string{"en"}, 1),
	)

	_, err := testRouter.Synthesize(context.Background(), englishRequest("hello"))

	var unavailable *core.AllEnginesUnavailableError

	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "en", unavailable.Language)
	assert.Equal(t, 2, unavailable.Attempts)
	assert.ErrorIs(t, err, core.ErrProviderTransient)
}

func TestNoSameEngineRetryWithinOneRequest(t *testing.T) {
	t.Parallel()

	edge := &mockProvider{name: "edge", synthErr: core.ErrProviderTransient}

	testRouter := newTestRouter(t,
		router.Policy{Languages: map[string][]string{"en": {"edge"}}},
		describe(edge, []string{"en"}, 0),
	)

	_, err := testRouter.Synthesize(context.Background(), englishRequest("hello"))
	require.Error(t, err)
	assert.Equal(t, 1, edge.calls)
}

func TestStrictOverrideUnknownEngine(t *testing.T) {
	t.Parallel()

	testRouter := newTestRouter(t,
		router.Policy{Default: []string{"edge"}},
		describe(&mockProvider{name: "edge"}, []string{"en"}, 0),
	)

	req := englishRequest("hello")
	req.Engine = "nonexistent"

	_, err := testRouter.Synthesize(context.Background(), req)

	var validationErr *core.ValidationError

	require.ErrorAs(t, err, &validationErr)
}

func TestStrictOverrideUnavailableEngineFailsLoudly(t *testing.T) {
	t.Parallel()

	down := &mockProvider{name: "edge", probeErr: core.ErrProviderUnavailable}
	up := &mockProvider{name: "gtts"}

	testRouter := newTestRouter(t,
		router.Policy{Languages: map[string][]string{"en": {"edge", "gtts"}}},
		describe(down, []string{"en"}, 0),
		describe(up, []string{"en"}, 1),
	)

	req := englishRequest("hello")
	req.Engine = "edge"

	_, err := testRouter.Synthesize(context.Background(), req)

	var unavailable *core.AllEnginesUnavailableError

	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, 0, up.calls, "strict override must not substitute another engine")
}

func TestOverrideWithFallbackOptIn(t *testing.T) {
	t.Parallel()

	down := &mockProvider{name: "edge", probeErr: core.ErrProviderUnavailable}
	up := &mockProvider{name: "gtts"}

	testRouter := newTestRouter(t,
		router.Policy{Languages: map[string][]string{"en": {"edge", "gtts"}}},
		describe(down, []string{"en"}, 0),
		describe(up, []string{"en"}, 1),
	)

	req := englishRequest("hello")
	req.Engine = "edge"
	req.AllowFallback = true

	result, err := testRouter.Synthesize(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "gtts", result.Engine)
}

func TestLanguageFilterExcludesNonSpeakers(t *testing.T) {
	t.Parallel()

	english := &mockProvider{name: "edge"}
	persian := &mockProvider{name: "piper"}

	testRouter := newTestRouter(t,
		router.Policy{Default: []string{"edge", "piper"}},
		describe(english, []string{"en"}, 0),
		describe(persian, []string{"fa"}, 1),
	)

	req := englishRequest("salam")
	req.Language = "fa"

	result, err := testRouter.Synthesize(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "piper", result.Engine)
	assert.Equal(t, 0, english.calls)
}

func TestNoCandidateForLanguage(t *testing.T) {
	t.Parallel()

	testRouter := newTestRouter(t,
		router.Policy{Default: []string{"edge"}},
		describe(&mockProvider{name: "edge"}, []string{"en"}, 0),
	)

	req := englishRequest("hola")
	req.Language = "es"

	_, err := testRouter.Synthesize(context.Background(), req)

	var unavailable *core.AllEnginesUnavailableError

	require.ErrorAs(t, err, &unavailable)
	assert.ErrorIs(t, err, router.ErrNoEngineForLanguage)
}

func TestTextOverEngineLimitCountsAsFailure(t *testing.T) {
	t.Parallel()

	tiny := &mockProvider{name: "tiny"}
	roomy := &mockProvider{name: "roomy"}

	tinyDescriptor := router.NewDescriptor(
		tiny, []string{"en"}, core.EngineCapabilities{MaxTextLength: 5}, 0,
	)
	roomyDescriptor := router.NewDescriptor(
		roomy, []string{"en"}, core.EngineCapabilities{MaxTextLength: 1000}, 1,
	)

	testRouter := newTestRouter(t,
		router.Policy{Languages: map[string][]string{"en": {"tiny", "roomy"}}},
		tinyDescriptor, roomyDescriptor,
	)

	result, err := testRouter.Synthesize(
		context.Background(),
		englishRequest("this text is longer than five characters"),
	)
	require.NoError(t, err)
	assert.Equal(t, "roomy", result.Engine)
	assert.Equal(t, 0, tiny.calls, "over-limit engine must not be invoked")

	stats := testRouter.Stats(context.Background())
	assert.Equal(t, uint64(1), stats[0].FailureCount)
}

func TestPolicyReloadSwapsSnapshot(t *testing.T) {
	t.Parallel()

	edge := &mockProvider{name: "edge"}
	gtts := &mockProvider{name: "gtts"}

	testRouter := newTestRouter(t,
		router.Policy{Languages: map[string][]string{"en": {"edge"}}},
		describe(edge, []string{"en"}, 0),
		describe(gtts, []string{"en"}, 1),
	)

	result, err := testRouter.Synthesize(context.Background(), englishRequest("one"))
	require.NoError(t, err)
	require.Equal(t, "edge", result.Engine)

	testRouter.Reload(router.Policy{Languages: map[string][]string{"en": {"gtts"}}})

	result, err = testRouter.Synthesize(context.Background(), englishRequest("two"))
	require.NoError(t, err)
	assert.Equal(t, "gtts", result.Engine)
}

func TestStatsReportAvailabilityAndReset(t *testing.T) {
	t.Parallel()

	up := &mockProvider{name: "edge"}
	down := &mockProvider{name: "gtts", probeErr: errors.New("model files missing")}

	testRouter := newTestRouter(t,
		router.Policy{Default: []string{"edge"}},
		describe(up, []string{"en"}, 0),
		describe(down, []string{"en"}, 1),
	)

	_, err := testRouter.Synthesize(context.Background(), englishRequest("hello"))
	require.NoError(t, err)

	stats := testRouter.Stats(context.Background())
	require.Len(t, stats, 2)
	assert.True(t, stats[0].Available)
	assert.False(t, stats[1].Available)
	assert.Equal(t, uint64(1), stats[0].SuccessCount)

	testRouter.ResetStats()

	stats = testRouter.Stats(context.Background())
	assert.Zero(t, stats[0].SuccessCount)
	assert.Zero(t, stats[0].AvgLatency)
}

func TestZeroEngineTimeoutFallsBackToDefault(t *testing.T) {
	t.Parallel()

	piper := &mockProvider{name: "piper"}
	testRouter := router.New(
		[]*router.Descriptor{describe(piper, []string{"en"}, 0)},
		router.Policy{Default: []string{"piper"}},
		0,
		0,
		newTestLogger(t),
	)

	result, err := testRouter.Synthesize(context.Background(), englishRequest("hello"))
	require.NoError(t, err)

	assert.Equal(t, "piper", result.Engine)
	assert.Equal(t, []byte("piper:hello"), result.Audio)
}
