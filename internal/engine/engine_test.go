package engine

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bianoble/componentmgr/internal/apperrors"
	"github.com/bianoble/componentmgr/internal/component"
	"github.com/bianoble/componentmgr/internal/config"
	"github.com/bianoble/componentmgr/internal/fetch"
	"github.com/bianoble/componentmgr/internal/filesystem"
	"github.com/bianoble/componentmgr/internal/lock"
	"github.com/bianoble/componentmgr/internal/moodle"
	"github.com/bianoble/componentmgr/internal/packager"
	"github.com/bianoble/componentmgr/internal/process"
	"github.com/bianoble/componentmgr/internal/repository"
	"github.com/bianoble/componentmgr/internal/source"
	"github.com/bianoble/componentmgr/internal/target"
)

type recordingStep struct {
	err   error
	name  string
	calls int
}

func (s *recordingStep) Name() string { return s.name }

func (s *recordingStep) Execute(context.Context, *Task, logr.Logger) error {
	s.calls++
	return s.err
}

type fakeCaching struct {
	refreshed    time.Time
	id           string
	resolveCalls int
	refreshCalls int
}

func (f *fakeCaching) ID() string   { return f.id }
func (f *fakeCaching) Name() string { return "Fake cache" }

func (f *fakeCaching) Resolve(_ context.Context, spec component.Specification) (*component.Component, error) {
	f.resolveCalls++
	return &component.Component{
		Name:         spec.Name,
		RepositoryID: f.id,
		Versions:     []*component.Version{{Release: "1.0"}},
	}, nil
}

func (f *fakeCaching) Satisfies(component.Specification, *component.Version) bool { return true }

func (f *fakeCaching) LastRefreshed() (time.Time, bool) {
	return f.refreshed, !f.refreshed.IsZero()
}

func (f *fakeCaching) Refresh(context.Context, logr.Logger) error {
	f.refreshCalls++
	f.refreshed = time.Now()
	return nil
}

// countingSource serves directory candidates and pins a fixed commit, the
// way a VCS source would.
type countingSource struct {
	commit string
	seen   []component.FinalVersion
}

func (*countingSource) ID() string   { return "counting" }
func (*countingSource) Name() string { return "Counting" }

func (s *countingSource) Obtain(_ context.Context, _ string, _ time.Duration, r *component.ResolvedVersion,
	_ filesystem.FS, _ logr.Logger) (string, error) {
	s.seen = append(s.seen, r.FinalVersion())
	if err := r.Pin(component.FinalVersion{Ref: s.commit}); err != nil {
		return "", err
	}
	for _, src := range r.Version.Sources {
		if d, ok := src.(component.DirectorySource); ok {
			return d.Path, nil
		}
	}
	return "", errors.New("no directory candidate")
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

// localProject declares one filesystem repository and one component
// served from plugins/custom.
func localProject(t *testing.T, version, packageSource string) *config.Project {
	t.Helper()
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"plugins/custom/version.php": "<?php // local_custom"})
	return &config.Project{
		Dir:                 dir,
		PackageRepositories: []config.Repository{{Name: "local", Type: repository.TypeFilesystem}},
		Components: []component.Specification{{
			Name:              "local_custom",
			Version:           version,
			PackageRepository: "local",
			PackageSource:     packageSource,
			Extra:             map[string]any{"path": "plugins/custom"},
		}},
	}
}

func newTestEnv(t *testing.T, p *config.Project) Env {
	t.Helper()
	repos, err := repository.Open(p, repository.Builtin(), repository.Env{})
	require.NoError(t, err)
	client := fetch.New()
	return Env{
		Project:      p,
		Repositories: repos,
		Sources:      source.Builtin(source.Env{Fetch: client, Runner: process.ExecRunner{}}),
		Formats:      packager.Builtin(),
		PluginTypes:  target.NewPluginTypes(p.PluginTypes),
		Fetch:        client,
		Runner:       process.ExecRunner{},
		FS:           filesystem.OSFS{},
		MoodleDir:    filepath.Join(p.Dir, "moodle"),
		LockPath:     filepath.Join(p.Dir, lock.FileName),
		TempDir:      t.TempDir(),
		Timeout:      time.Minute,
	}
}

func runTask(t *testing.T, env Env, steps []Step) (*Task, error) {
	t.Helper()
	task, err := NewTask(env, steps)
	require.NoError(t, err)
	return task, task.Run(context.Background(), testr.New(t))
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	boom := errors.New("boom")
	first := &recordingStep{name: "first"}
	failing := &recordingStep{name: "failing", err: boom}
	later := &recordingStep{name: "later"}

	_, err := runTask(t, Env{}, []Step{first, failing, later})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failing: boom")
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 0, later.calls)
}

func TestRunHonorsCancelledContext(t *testing.T) {
	step := &recordingStep{name: "step"}
	task, err := NewTask(Env{}, []Step{step})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, task.Run(ctx, testr.New(t)), context.Canceled)
	assert.Equal(t, 0, step.calls)
}

func TestWorkflowOrder(t *testing.T) {
	names := func(steps []Step) []string {
		var out []string
		for _, s := range steps {
			out = append(out, s.Name())
		}
		return out
	}
	assert.Equal(t, []string{
		"verify-repositories-cached", "resolve-component-versions", "install-components", "commit-lock-file",
	}, names(InstallSteps()))
	assert.Equal(t, []string{
		"verify-repositories-cached", "resolve-host-version", "resolve-component-versions", "obtain-host-source",
		"install-components", "build-components", "commit-lock-file", "package",
	}, names(PackageSteps()))
	assert.Equal(t, []string{"refresh-repositories"}, names(RefreshSteps()))
}

func TestVerifyRepositoriesCachedFailsFast(t *testing.T) {
	p := localProject(t, "1.0", "directory")
	p.Components = append(p.Components, component.Specification{
		Name: "mod_forum", Version: "1.0", PackageRepository: "plugins", PackageSource: "zip",
	})
	env := newTestEnv(t, p)
	cached := &fakeCaching{id: "plugins"}
	env.Repositories.Add(cached)

	later := &recordingStep{name: "later"}
	steps := append(InstallSteps(), later)
	_, err := runTask(t, env, steps)

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrStaleCache)
	assert.Contains(t, err.Error(), "verify-repositories-cached")
	assert.Equal(t, 0, cached.resolveCalls)
	assert.Equal(t, 0, later.calls)
	assert.NoFileExists(t, env.LockPath)
	assert.NoDirExists(t, filepath.Join(env.MoodleDir, "local", "custom"))
}

func TestVerifyRepositoriesCachedPasses(t *testing.T) {
	env := Env{Repositories: &repository.Set{}}
	env.Repositories.Add(&fakeCaching{id: "plugins", refreshed: time.Now()})
	later := &recordingStep{name: "later"}

	_, err := runTask(t, env, []Step{VerifyRepositoriesCached{}, later})
	require.NoError(t, err)
	assert.Equal(t, 1, later.calls)
}

func TestRefreshRepositories(t *testing.T) {
	env := Env{Repositories: &repository.Set{}}
	cached := &fakeCaching{id: "plugins"}
	env.Repositories.Add(cached)

	_, err := runTask(t, env, RefreshSteps())
	require.NoError(t, err)
	assert.Equal(t, 1, cached.refreshCalls)
	_, ok := cached.LastRefreshed()
	assert.True(t, ok)
}

func TestInstallWorkflowFromDirectory(t *testing.T) {
	p := localProject(t, "1.2.0", "directory")
	env := newTestEnv(t, p)
	writeFiles(t, env.MoodleDir, map[string]string{"local/custom/stale.txt": "old"})

	task, err := runTask(t, env, InstallSteps())
	require.NoError(t, err)

	installed := filepath.Join(env.MoodleDir, "local", "custom")
	assert.FileExists(t, filepath.Join(installed, "version.php"))
	assert.NoFileExists(t, filepath.Join(installed, "stale.txt"), "target is replaced wholesale")
	assert.Equal(t, installed, task.State.Installed["local_custom"])

	lf, err := lock.Load(env.LockPath)
	require.NoError(t, err)
	entry, ok := lf.Lookup("local_custom", "local")
	require.True(t, ok)
	assert.Equal(t, component.FinalVersion{Ref: "1.2.0"}, entry.FinalVersion, "unpinned sources fall back to the declared version")

	entries, err := os.ReadDir(env.TempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch directory is swept")
}

func TestInstallInPlaceThroughSymlinkKeepsSource(t *testing.T) {
	realDir := t.TempDir()
	writeFiles(t, realDir, map[string]string{"local/custom/version.php": "<?php // in place"})
	link := filepath.Join(t.TempDir(), "link")
	if err := os.Symlink(realDir, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	p := localProject(t, "1.0", "directory")
	p.Dir = link
	p.Components[0].Extra = map[string]any{"path": "local/custom"}
	env := newTestEnv(t, p)
	env.MoodleDir = link

	_, err := runTask(t, env, InstallSteps())
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(realDir, "local", "custom", "version.php"))
}

func TestInstallRequirePinned(t *testing.T) {
	env := newTestEnv(t, localProject(t, "1.2.0", "directory"))
	env.RequirePinned = true

	_, err := runTask(t, env, InstallSteps())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNoSourceAvailable)
	assert.Contains(t, err.Error(), "recorded no exact artifact")
	assert.NoFileExists(t, env.LockPath)
}

func TestInstallWithoutDeclaredVersionStaysUnpinned(t *testing.T) {
	env := newTestEnv(t, localProject(t, "", "directory"))

	_, err := runTask(t, env, InstallSteps())
	require.NoError(t, err)

	lf, err := lock.Load(env.LockPath)
	require.NoError(t, err)
	entry, ok := lf.Lookup("local_custom", "local")
	require.True(t, ok)
	assert.True(t, entry.FinalVersion.IsZero())

	data, err := os.ReadFile(env.LockPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"finalVersion": null`)
}

func TestInstallIsIdempotentWithLockFile(t *testing.T) {
	p := localProject(t, "main", "counting")
	src := &countingSource{commit: "abc123"}

	env := newTestEnv(t, p)
	env.Sources.Register(src)
	_, err := runTask(t, env, InstallSteps())
	require.NoError(t, err)
	require.Len(t, src.seen, 1)
	assert.True(t, src.seen[0].IsZero(), "first run is unpinned")

	first, err := os.ReadFile(env.LockPath)
	require.NoError(t, err)

	env = newTestEnv(t, p)
	env.Sources.Register(src)
	task, err := runTask(t, env, InstallSteps())
	require.NoError(t, err)
	require.Len(t, src.seen, 2)
	assert.Equal(t, component.FinalVersion{Ref: "abc123"}, src.seen[1], "second run requests the pinned artifact")
	assert.Equal(t, component.FinalVersion{Ref: "abc123"}, task.State.Resolved[0].FinalVersion())

	second, err := os.ReadFile(env.LockPath)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestLockEntryFromOtherRepositoryIsIgnored(t *testing.T) {
	p := localProject(t, "main", "counting")
	env := newTestEnv(t, p)
	src := &countingSource{commit: "abc123"}
	env.Sources.Register(src)

	stale := lock.New()
	stale.ComponentVersions["local_custom"] = lock.Entry{
		ComponentName:       "local_custom",
		PackageRepositoryID: "elsewhere",
		FinalVersion:        component.FinalVersion{Ref: "old"},
	}
	require.NoError(t, lock.Save(env.LockPath, stale))

	_, err := runTask(t, env, InstallSteps())
	require.NoError(t, err)
	require.Len(t, src.seen, 1)
	assert.True(t, src.seen[0].IsZero())

	lf, err := lock.Load(env.LockPath)
	require.NoError(t, err)
	assert.Equal(t, "local", lf.ComponentVersions["local_custom"].PackageRepositoryID)
}

func TestInstallUnknownPluginType(t *testing.T) {
	p := localProject(t, "1.0", "directory")
	p.Components[0].Name = "widget_custom"
	env := newTestEnv(t, p)

	_, err := runTask(t, env, InstallSteps())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown plugin type 'widget'")
	assert.NoFileExists(t, env.LockPath)
}

func TestResolveMissingRepository(t *testing.T) {
	p := localProject(t, "1.0", "directory")
	p.Components[0].PackageRepository = "nowhere"
	env := newTestEnv(t, p)

	_, err := runTask(t, env, InstallSteps())
	assert.ErrorIs(t, err, apperrors.ErrMissingPackageRepository)
}

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("build scripts are exercised with sh")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func buildTask(t *testing.T, script string) (*Task, string) {
	t.Helper()
	p := localProject(t, "1.0", "directory")
	env := newTestEnv(t, p)
	dir := filepath.Join(env.MoodleDir, "local", "custom")
	if script != "" {
		writeFiles(t, dir, map[string]string{
			ComponentManifestName: fmt.Sprintf(`{"scripts": {"build": %q}}`, script),
		})
	} else {
		require.NoError(t, os.MkdirAll(dir, 0755))
	}

	task, err := NewTask(env, []Step{BuildComponents{}})
	require.NoError(t, err)
	spec := p.Components[0]
	task.State.Resolved = []*component.ResolvedVersion{component.NewResolvedVersion(spec, "local", nil, nil)}
	task.State.Installed[spec.Name] = dir
	return task, dir
}

func TestBuildComponentsRunsScript(t *testing.T) {
	requireShell(t)
	task, dir := buildTask(t, "echo {{ .ComponentName }} > built.txt")

	require.NoError(t, task.Run(context.Background(), testr.New(t)))
	data, err := os.ReadFile(filepath.Join(dir, "built.txt"))
	require.NoError(t, err)
	assert.Equal(t, "local_custom\n", string(data))
}

func TestBuildComponentsFailure(t *testing.T) {
	requireShell(t)
	task, _ := buildTask(t, "echo broken >&2; exit 3")

	err := task.Run(context.Background(), testr.New(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrBuildFailed)
	assert.Contains(t, err.Error(), "status 3")
	assert.Contains(t, err.Error(), "broken")
}

func TestBuildComponentsWithoutManifest(t *testing.T) {
	task, _ := buildTask(t, "")
	require.NoError(t, task.Run(context.Background(), testr.New(t)))
}

func TestBuildComponentsUnknownVariable(t *testing.T) {
	task, _ := buildTask(t, "echo {{ .Nope }}")
	err := task.Run(context.Background(), testr.New(t))
	assert.ErrorIs(t, err, apperrors.ErrBuildFailed)
}

func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func hostServer(t *testing.T, archive []byte, checksum string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/versions.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, `{"versions": [
  {"build": "2017051500", "release": "3.3", "downloadurl": "%[1]s/none.zip", "downloadmd5": ""},
  {"build": "2017051502.06", "release": "3.3.2+", "downloadurl": "%[1]s/moodle.zip", "downloadmd5": "%[2]s"}
]}`, srv.URL, checksum)
	})
	mux.HandleFunc("/moodle.zip", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archive)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func packageEnv(t *testing.T, srv *httptest.Server) Env {
	t.Helper()
	p := localProject(t, "1.0", "directory")
	p.Moodle.Version = "3.3+"
	env := newTestEnv(t, p)
	env.MoodleDir = ""
	env.Catalog = &moodle.Catalog{Client: env.Fetch, URL: srv.URL + "/versions.json"}
	env.PackageFormat = "directory"
	env.PackageDest = filepath.Join(t.TempDir(), "out")
	return env
}

func TestPackageWorkflow(t *testing.T) {
	archive := zipArchive(t, map[string]string{"moodle/version.php": "<?php // host"})
	sum := md5.Sum(archive)
	srv := hostServer(t, archive, hex.EncodeToString(sum[:]))
	env := packageEnv(t, srv)

	task, err := runTask(t, env, PackageSteps())
	require.NoError(t, err)

	require.NotNil(t, task.State.Host)
	assert.Equal(t, "3.3.2+", task.State.Host.Release)
	assert.FileExists(t, filepath.Join(env.PackageDest, "version.php"))
	assert.FileExists(t, filepath.Join(env.PackageDest, "local", "custom", "version.php"))
	assert.FileExists(t, env.LockPath)

	entries, err := os.ReadDir(env.TempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPackageWorkflowChecksumMismatch(t *testing.T) {
	archive := zipArchive(t, map[string]string{"moodle/version.php": "<?php"})
	srv := hostServer(t, archive, "00000000000000000000000000000000")
	env := packageEnv(t, srv)

	_, err := runTask(t, env, PackageSteps())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidChecksum)
	assert.Contains(t, err.Error(), "obtain-host-source")
	assert.NoFileExists(t, env.LockPath)
	assert.NoDirExists(t, env.PackageDest)
}

func TestObtainHostSourceMissingRoot(t *testing.T) {
	archive := zipArchive(t, map[string]string{"other/version.php": "<?php"})
	sum := md5.Sum(archive)
	srv := hostServer(t, archive, hex.EncodeToString(sum[:]))
	env := packageEnv(t, srv)

	_, err := runTask(t, env, PackageSteps())
	assert.ErrorIs(t, err, apperrors.ErrMissingExpectedRoot)
}

func TestResolveHostVersionRequiresVersion(t *testing.T) {
	env := Env{Project: &config.Project{}}
	_, err := runTask(t, env, []Step{ResolveHostVersion{}})
	assert.ErrorIs(t, err, apperrors.ErrValidationFailed)
}

func TestPackageUnknownFormat(t *testing.T) {
	env := Env{Formats: packager.Builtin(), PackageFormat: "webdeploy", PackageDest: t.TempDir()}
	_, err := runTask(t, env, []Step{Package{}})
	assert.ErrorIs(t, err, apperrors.ErrUnknownType)
}
