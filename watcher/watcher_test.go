package watcher_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirrorbucket/credmon/renewal"
	"github.com/mirrorbucket/credmon/watcher"
)

type recordingSink struct {
	mu   sync.Mutex
	reqs []renewal.Request
}

func (s *recordingSink) Request(req renewal.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reqs)
}

func (s *recordingSink) requests() []renewal.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]renewal.Request, len(s.reqs))
	copy(out, s.reqs)
	return out
}

type fixture struct {
	credentialsFile string
	configFile      string
	ssoCacheDir     string
	sink            *recordingSink
	done            chan struct{}
}

func startWatcher(t *testing.T, scanOnStart bool) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		credentialsFile: filepath.Join(dir, "credentials"),
		configFile:      filepath.Join(dir, "config"),
		ssoCacheDir:     filepath.Join(dir, "sso", "cache"),
		sink:            &recordingSink{},
		done:            make(chan struct{}),
	}

	w, err := watcher.New(watcher.Options{
		CredentialsFile: f.credentialsFile,
		ConfigFile:      f.configFile,
		SSOCacheDir:     f.ssoCacheDir,
		Window:          100 * time.Millisecond,
		ScanOnStart:     scanOnStart,
	}, f.sink)
	require.NoError(t, err)

	go func() { _ = w.Run(f.done) }()
	t.Cleanup(func() { close(f.done) })
	return f
}

func TestRun_DebouncesWriteBurst(t *testing.T) {
	f := startWatcher(t, false)

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(f.credentialsFile, []byte("[default]\nkey = v\n"), 0o600))
		time.Sleep(10 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return f.sink.count() == 1 }, 2*time.Second, 10*time.Millisecond,
		"a write burst must debounce to one request")

	// Nothing trailing after the window.
	time.Sleep(300 * time.Millisecond)
	require.Equal(t, 1, f.sink.count())

	req := f.sink.requests()[0]
	assert.Equal(t, renewal.ReasonFileAdded, req.Reason)
	assert.Equal(t, f.credentialsFile, req.Source)
}

func TestRun_ModifyOfExistingFile(t *testing.T) {
	dir := t.TempDir()
	credentials := filepath.Join(dir, "credentials")
	require.NoError(t, os.WriteFile(credentials, []byte("old"), 0o600))

	sink := &recordingSink{}
	done := make(chan struct{})
	w, err := watcher.New(watcher.Options{
		CredentialsFile: credentials,
		ConfigFile:      filepath.Join(dir, "config"),
		SSOCacheDir:     filepath.Join(dir, "sso", "cache"),
		Window:          100 * time.Millisecond,
	}, sink)
	require.NoError(t, err)
	go func() { _ = w.Run(done) }()
	defer close(done)

	require.NoError(t, os.WriteFile(credentials, []byte("new"), 0o600))

	require.Eventually(t, func() bool { return sink.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, renewal.ReasonFileChanged, sink.requests()[0].Reason)
}

func TestRun_AtomicReplaceIsOneChange(t *testing.T) {
	dir := t.TempDir()
	credentials := filepath.Join(dir, "credentials")
	require.NoError(t, os.WriteFile(credentials, []byte("old"), 0o600))

	sink := &recordingSink{}
	done := make(chan struct{})
	w, err := watcher.New(watcher.Options{
		CredentialsFile: credentials,
		ConfigFile:      filepath.Join(dir, "config"),
		SSOCacheDir:     filepath.Join(dir, "sso", "cache"),
		Window:          150 * time.Millisecond,
	}, sink)
	require.NoError(t, err)
	go func() { _ = w.Run(done) }()
	defer close(done)

	// Remove-then-recreate inside the stability window, the way editors
	// and the AWS CLI replace files.
	require.NoError(t, os.Remove(credentials))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, os.WriteFile(credentials, []byte("new"), 0o600))

	require.Eventually(t, func() bool { return sink.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	require.Equal(t, 1, sink.count())

	reason := sink.requests()[0].Reason
	assert.NotEqual(t, renewal.ReasonFileRemoved, reason,
		"an atomic replace must not surface as a bare removal")
}

func TestRun_TokenCacheEntryTriggersRequest(t *testing.T) {
	f := startWatcher(t, false)

	tokenPath := filepath.Join(f.ssoCacheDir, "abc.json")
	require.NoError(t, os.WriteFile(tokenPath, []byte(`{"expiresAt": "2026-09-01T10:00:00Z"}`), 0o600))

	require.Eventually(t, func() bool { return f.sink.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, tokenPath, f.sink.requests()[0].Source)
}

func TestRun_RecreatedCacheDirIsRewatched(t *testing.T) {
	f := startWatcher(t, false)

	require.NoError(t, os.RemoveAll(f.ssoCacheDir))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.MkdirAll(f.ssoCacheDir, 0o750))
	time.Sleep(100 * time.Millisecond)

	tokenPath := filepath.Join(f.ssoCacheDir, "tok.json")
	require.NoError(t, os.WriteFile(tokenPath, []byte(`{"expiresAt": "2026-09-01T10:00:00Z"}`), 0o600))

	require.Eventually(t, func() bool { return f.sink.count() == 1 }, 2*time.Second, 10*time.Millisecond,
		"a token written after the cache dir is recreated must still be seen")
	assert.Equal(t, tokenPath, f.sink.requests()[0].Source)
}

func TestRun_IgnoresUnrelatedFiles(t *testing.T) {
	f := startWatcher(t, false)

	unrelated := filepath.Join(filepath.Dir(f.credentialsFile), "cli-history")
	require.NoError(t, os.WriteFile(unrelated, []byte("noise"), 0o600))

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 0, f.sink.count())
}

func TestRun_InitialScanReportsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	credentials := filepath.Join(dir, "credentials")
	ssoCache := filepath.Join(dir, "sso", "cache")
	require.NoError(t, os.WriteFile(credentials, []byte("[default]\n"), 0o600))
	require.NoError(t, os.MkdirAll(ssoCache, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(ssoCache, "tok.json"), []byte(`{}`), 0o600))

	sink := &recordingSink{}
	done := make(chan struct{})
	w, err := watcher.New(watcher.Options{
		CredentialsFile: credentials,
		ConfigFile:      filepath.Join(dir, "config"),
		SSOCacheDir:     ssoCache,
		Window:          100 * time.Millisecond,
		ScanOnStart:     true,
	}, sink)
	require.NoError(t, err)
	go func() { _ = w.Run(done) }()
	defer close(done)

	require.Eventually(t, func() bool { return sink.count() == 2 }, 2*time.Second, 10*time.Millisecond)
	for _, req := range sink.requests() {
		assert.Equal(t, renewal.ReasonFileAdded, req.Reason)
	}
}
