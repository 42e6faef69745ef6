package scan

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digggggmori-pixel/ferret-bam/internal/collector"
	"github.com/digggggmori-pixel/ferret-bam/internal/trust"
	"github.com/digggggmori-pixel/ferret-bam/pkg/types"
)

type fakeClassifier struct {
	mu      sync.Mutex
	results map[string]trust.Result
	panicOn string
	calls   []string
}

func (f *fakeClassifier) Classify(path string) trust.Result {
	f.mu.Lock()
	f.calls = append(f.calls, path)
	f.mu.Unlock()
	if path == f.panicOn {
		panic("verifier crashed")
	}
	if r, ok := f.results[path]; ok {
		return r
	}
	return trust.Result{Status: types.TrustNotSigned}
}

type fakeMatcher struct {
	hits  map[string][]string
	err   error
	calls []string
}

func (f *fakeMatcher) Match(path string) ([]string, error) {
	f.calls = append(f.calls, path)
	if f.err != nil {
		return nil, f.err
	}
	return f.hits[path], nil
}

func (f *fakeMatcher) Version() string { return "rules-7" }

type fakeAux struct {
	initErr  error
	block    chan struct{}
	findings map[string][]types.AuxiliaryFinding

	inits, destroys int
	scans           []string
}

func (f *fakeAux) Init(ctx context.Context) error {
	f.inits++
	if f.block != nil {
		<-f.block
	}
	return f.initErr
}

func (f *fakeAux) Scan(nameOrPath string) []types.AuxiliaryFinding {
	f.scans = append(f.scans, nameOrPath)
	return f.findings[nameOrPath]
}

func (f *fakeAux) Destroy() error {
	f.destroys++
	return nil
}

type fakeSessions struct {
	inSession map[string]bool
	calls     []string
}

// keyed by the UTC rendering of the instant
func (f *fakeSessions) IsInCurrentSessionAt(executed time.Time) bool {
	key := executed.UTC().Format(types.ExecutionTimeLayout)
	f.calls = append(f.calls, key)
	return f.inSession[key]
}

type fakeUsers map[string]string

func (u fakeUsers) Username(sid string) string {
	if name, ok := u[sid]; ok {
		return name
	}
	return sid
}

const sid = "S-1-5-21-1-2-3-1001"

var base = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func entry(path string, at time.Time) types.RawEntry {
	data := append(collector.EncodeFiletime(at), make([]byte, 16)...)
	return types.RawEntry{SID: sid, ValueName: path, Data: data}
}

type fixture struct {
	classifier *fakeClassifier
	matcher    *fakeMatcher
	aux        *fakeAux
	sessions   *fakeSessions
	deps       Deps
}

func newFixture(entries []types.RawEntry, artifactErr error) *fixture {
	f := &fixture{
		classifier: &fakeClassifier{results: map[string]trust.Result{
			`C:\Windows\System32\notepad.exe`: {Status: types.TrustSigned, Signer: "CN=Microsoft Windows"},
			`D:\Games\gone.exe`:               {Status: types.TrustDeleted},
			`D:\Games\loader.exe`:             {Status: types.TrustCheatSignature, Signer: "CN=Slinkware"},
		}},
		matcher: &fakeMatcher{hits: map[string][]string{
			`D:\Games\loader.exe`: {"cheat_menu_strings"},
		}},
		aux: &fakeAux{findings: map[string][]types.AuxiliaryFinding{
			`D:\Games\loader.exe`: {{FileName: "loader.exe", FindingType: types.FindingCopy, Details: "x"}},
		}},
		sessions: &fakeSessions{inSession: map[string]bool{}},
	}
	f.deps = Deps{
		Artifacts: collector.NewStaticSource(entries, artifactErr),
		Volumes: collector.NewVolumeResolver(collector.StaticDriveMapper{
			{Letter: "C:", Device: `\Device\HarddiskVolume2`},
			{Letter: "D:", Device: `\Device\HarddiskVolume3`},
		}),
		Sessions:  f.sessions,
		Trust:     f.classifier,
		Patterns:  f.matcher,
		Auxiliary: f.aux,
		Users:     fakeUsers{sid: "alice"},
	}
	return f
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Location = time.UTC
	return cfg
}

func TestExecuteEnrichesRecords(t *testing.T) {
	entries := []types.RawEntry{
		entry(`\Device\HarddiskVolume2\Windows\System32\notepad.exe`, base),
		entry(`\Device\HarddiskVolume3\Games\gone.exe`, base.Add(time.Hour)),
		entry(`\Device\HarddiskVolume3\Games\loader.exe`, base.Add(2*time.Hour)),
		entry(`\Device\HarddiskVolume9\tool.exe`, base.Add(3*time.Hour)),
		entry(`Microsoft.Windows.Explorer`, base),
		{SID: sid, ValueName: `\Device\HarddiskVolume2\short.exe`, Data: []byte{1, 2, 3}},
		{SID: sid, ValueName: `\Device\HarddiskVolume2\zero.exe`, Data: make([]byte, 24)},
	}
	f := newFixture(entries, nil)
	f.sessions.inSession["2026-10-01 14:00:00"] = true

	result, err := NewService(f.deps, testConfig()).Execute(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Records, 4)
	assert.Equal(t, 3, result.Summary.SkippedEntries)
	assert.Equal(t, "rules-7", result.RulesVersion)
	assert.True(t, result.AuxiliaryAvailable)
	assert.NotEmpty(t, result.ScanID)

	// Newest first
	paths := make([]string, len(result.Records))
	for i, r := range result.Records {
		paths[i] = r.Path
	}
	assert.Equal(t, []string{
		`?:\tool.exe`,
		`D:\Games\loader.exe`,
		`D:\Games\gone.exe`,
		`C:\Windows\System32\notepad.exe`,
	}, paths)

	loader := result.Records[1]
	assert.Equal(t, `\Device\HarddiskVolume3\Games\loader.exe`, loader.RawPath)
	assert.Equal(t, "2026-10-01 14:00:00", loader.ExecutionTime)
	assert.Equal(t, "alice", loader.User)
	assert.Equal(t, sid, loader.SID)
	assert.Equal(t, types.TrustCheatSignature, loader.Trust)
	assert.Equal(t, "CN=Slinkware", loader.Signer)
	assert.True(t, loader.InCurrentSession)
	assert.Equal(t, []string{"cheat_menu_strings"}, loader.PatternMatches)
	assert.Len(t, loader.AuxiliaryFindings, 1)

	notepad := result.Records[3]
	assert.Equal(t, types.TrustSigned, notepad.Trust)
	assert.NotNil(t, notepad.PatternMatches)
	assert.Empty(t, notepad.PatternMatches)
	assert.False(t, notepad.InCurrentSession)

	// Signed and Deleted files are never content-scanned
	assert.Equal(t, []string{`D:\Games\loader.exe`, `?:\tool.exe`}, f.matcher.calls)
	assert.Equal(t, []string{`D:\Games\loader.exe`, `?:\tool.exe`}, f.aux.scans)

	// Sessions are correlated for every decoded entry, Deleted included
	assert.Len(t, f.sessions.calls, 4)
	assert.Len(t, f.classifier.calls, 4)

	assert.Equal(t, 1, f.aux.inits)
	assert.Equal(t, 1, f.aux.destroys)

	s := result.Summary
	assert.Equal(t, 4, s.TotalEntries)
	assert.Equal(t, 1, s.Flagged)
	assert.Equal(t, 1, s.CurrentSession)
	assert.Equal(t, 1, s.ByTrust[types.TrustSigned])
	assert.Equal(t, 1, s.ByTrust[types.TrustDeleted])
	assert.Equal(t, 1, s.ByTrust[types.TrustCheatSignature])
	assert.Equal(t, 1, s.ByTrust[types.TrustNotSigned])
}

func TestExecuteArtifactFailure(t *testing.T) {
	f := newFixture(nil, collector.ErrArtifactUnavailable)

	result, err := NewService(f.deps, testConfig()).Execute(context.Background())
	require.ErrorIs(t, err, collector.ErrArtifactUnavailable)
	require.NotNil(t, result)
	assert.Empty(t, result.Records)
	assert.Equal(t, 0, f.aux.inits, "scanner is not started without entries")
}

func TestExecuteAuxiliaryInitFailure(t *testing.T) {
	f := newFixture([]types.RawEntry{entry(`\Device\HarddiskVolume3\Games\loader.exe`, base)}, nil)
	f.aux.initErr = errors.New("launch failed")

	result, err := NewService(f.deps, testConfig()).Execute(context.Background())
	require.NoError(t, err)

	assert.False(t, result.AuxiliaryAvailable)
	assert.Empty(t, f.aux.scans)
	assert.Equal(t, 1, f.aux.destroys, "partial state is cleaned up")
	require.Len(t, result.Records, 1)
	assert.Empty(t, result.Records[0].AuxiliaryFindings)
	assert.Equal(t, []string{"cheat_menu_strings"}, result.Records[0].PatternMatches)
}

func TestExecuteAuxiliaryDisabled(t *testing.T) {
	f := newFixture([]types.RawEntry{entry(`\Device\HarddiskVolume3\Games\loader.exe`, base)}, nil)
	cfg := testConfig()
	cfg.Auxiliary = false

	result, err := NewService(f.deps, cfg).Execute(context.Background())
	require.NoError(t, err)
	assert.False(t, result.AuxiliaryAvailable)
	assert.Equal(t, 0, f.aux.inits)
	assert.Equal(t, 0, f.aux.destroys)
}

func TestExecuteSurvivesEntryFailures(t *testing.T) {
	f := newFixture([]types.RawEntry{
		entry(`\Device\HarddiskVolume3\Games\crash.exe`, base),
		entry(`\Device\HarddiskVolume3\Games\loader.exe`, base.Add(time.Minute)),
	}, nil)
	f.classifier.panicOn = `D:\Games\crash.exe`
	f.matcher.err = errors.New("read denied")
	f.deps.Users = nil

	result, err := NewService(f.deps, testConfig()).Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, 1, result.Summary.SkippedEntries)

	rec := result.Records[0]
	assert.Empty(t, rec.PatternMatches, "engine errors count as no matches")
	assert.Equal(t, sid, rec.User)
}

func TestExecuteBusy(t *testing.T) {
	f := newFixture([]types.RawEntry{entry(`\Device\HarddiskVolume3\Games\loader.exe`, base)}, nil)
	f.aux.block = make(chan struct{})
	svc := NewService(f.deps, testConfig())

	done := make(chan error, 1)
	go func() {
		_, err := svc.Execute(context.Background())
		done <- err
	}()

	require.Eventually(t, svc.Busy, time.Second, time.Millisecond)
	_, err := svc.Execute(context.Background())
	assert.ErrorIs(t, err, ErrBusy)

	close(f.aux.block)
	require.NoError(t, <-done)
	assert.False(t, svc.Busy())
}

func TestExecuteCancelled(t *testing.T) {
	f := newFixture([]types.RawEntry{entry(`\Device\HarddiskVolume3\Games\loader.exe`, base)}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewService(f.deps, testConfig()).Execute(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, f.aux.inits, f.aux.destroys)
}

func TestExecuteProgress(t *testing.T) {
	f := newFixture([]types.RawEntry{
		entry(`\Device\HarddiskVolume3\Games\loader.exe`, base),
		entry(`\Device\HarddiskVolume3\Games\gone.exe`, base),
	}, nil)
	ch := make(chan Progress, 64)

	_, err := NewServiceWithChannel(f.deps, testConfig(), ch).Execute(context.Background())
	require.NoError(t, err)
	close(ch)

	var updates []Progress
	for p := range ch {
		updates = append(updates, p)
	}
	require.NotEmpty(t, updates)
	last := updates[len(updates)-1]
	assert.True(t, last.Done)
	assert.Equal(t, 100, last.Percent)
	assert.Equal(t, totalSteps, last.Total)
	for i := 1; i < len(updates); i++ {
		assert.GreaterOrEqual(t, updates[i].Percent, updates[i-1].Percent)
	}
}

func TestSortByExecutionTimeStable(t *testing.T) {
	records := []types.ExecutionRecord{
		{Path: "a", ExecutedAt: base},
		{Path: "b", ExecutedAt: base.Add(time.Second)},
		{Path: "c", ExecutedAt: base},
	}
	SortByExecutionTime(records)
	assert.Equal(t, "b", records[0].Path)
	assert.Equal(t, "a", records[1].Path)
	assert.Equal(t, "c", records[2].Path)
}

func TestExecuteRequiresArtifactsAndTrust(t *testing.T) {
	f := newFixture([]types.RawEntry{entry(`\Device\HarddiskVolume3\Games\loader.exe`, base)}, nil)

	noArtifacts := f.deps
	noArtifacts.Artifacts = nil
	result, err := NewService(noArtifacts, testConfig()).Execute(context.Background())
	assert.ErrorIs(t, err, ErrMissingDependency)
	assert.Nil(t, result)

	noTrust := f.deps
	noTrust.Trust = nil
	svc := NewService(noTrust, testConfig())
	result, err = svc.Execute(context.Background())
	assert.ErrorIs(t, err, ErrMissingDependency)
	assert.Nil(t, result)
	assert.False(t, svc.Busy())
	assert.Zero(t, f.aux.inits)
}

func TestExecuteCorrelatesExactInstant(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 01:30 EST on the fall-back day; the local string alone is ambiguous
	at := time.Date(2024, 11, 3, 6, 30, 0, 0, time.UTC)
	f := newFixture([]types.RawEntry{entry(`\Device\HarddiskVolume3\Games\loader.exe`, at)}, nil)
	f.sessions.inSession["2024-11-03 06:30:00"] = true

	cfg := testConfig()
	cfg.Location = ny
	result, err := NewService(f.deps, cfg).Execute(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Records, 1)
	assert.Equal(t, "2024-11-03 01:30:00", result.Records[0].ExecutionTime)
	assert.True(t, result.Records[0].InCurrentSession)
	assert.Equal(t, []string{"2024-11-03 06:30:00"}, f.sessions.calls)
}
