package language

import (
	"reflect"
	"testing"

	"codejudge/internal/judge/sandbox/security"
	appErr "codejudge/pkg/errors"
)

func TestRepositoryGet(t *testing.T) {
	t.Parallel()

	repo := NewRepository(Defaults())
	cases := []struct {
		in   string
		want string
		code appErr.ErrorCode
	}{
		{in: "python", want: "python"},
		{in: " Python3 ", want: "python"},
		{in: "71", want: "python"},
		{in: "javascript", want: "javascript"},
		{in: "JS", want: "javascript"},
		{in: "63", want: "javascript"},
		{in: "ruby", code: appErr.LanguageNotSupported},
		{in: "", code: appErr.ValidationFailed},
	}
	for _, tc := range cases {
		got, err := repo.Get(tc.in)
		if tc.code != 0 {
			if appErr.GetCode(err) != tc.code {
				t.Fatalf("%q: expected code %d, got %v", tc.in, tc.code, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", tc.in, err)
		}
		if got.ID != tc.want {
			t.Fatalf("%q: expected %s, got %s", tc.in, tc.want, got.ID)
		}
	}
}

func TestRepositoryOverride(t *testing.T) {
	t.Parallel()

	specs := append(Defaults(), Spec{ID: "python", SourceFile: "main.py", RunCmd: "pypy3 {src}"}, Spec{ID: ""})
	repo := NewRepository(specs)
	got, err := repo.Get("python")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.RunCmd != "pypy3 {src}" {
		t.Fatalf("expected override to win, got %q", got.RunCmd)
	}
	if !reflect.DeepEqual(repo.IDs(), []string{"javascript", "python"}) {
		t.Fatalf("unexpected ids: %v", repo.IDs())
	}
}

func TestRepositoryResolve(t *testing.T) {
	t.Parallel()

	repo := NewRepository(Defaults())
	profile, err := repo.Resolve(ProfileName("python", TaskRun))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !profile.DisableNetwork {
		t.Fatalf("expected network to be disabled")
	}
	if profile.SeccompProfile != security.DefaultSeccompProfile {
		t.Fatalf("expected default seccomp profile, got %q", profile.SeccompProfile)
	}
	if _, err := repo.Resolve(ProfileName("javascript", TaskCheck)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, name := range []string{"", "ruby-run", "python-compile"} {
		if _, err := repo.Resolve(name); err == nil {
			t.Fatalf("%q: expected resolve error", name)
		}
	}
}

func TestBuildCommand(t *testing.T) {
	t.Parallel()

	lang := Spec{ID: "python", SourceFile: "solution.py"}
	cases := []struct {
		name    string
		tpl     string
		want    []string
		wantErr bool
	}{
		{name: "run", tpl: "python3 {src}", want: []string{"python3", "/work/solution.py"}},
		{name: "check", tpl: "python3 -m py_compile {src}", want: []string{"python3", "-m", "py_compile", "/work/solution.py"}},
		{name: "quoted", tpl: `sh -c "exec python3 {src}"`, want: []string{"sh", "-c", "exec python3 /work/solution.py"}},
		{name: "empty", tpl: "  ", wantErr: true},
		{name: "unterminated", tpl: `python3 "{src}`, wantErr: true},
	}
	for _, tc := range cases {
		got, err := BuildCommand(tc.tpl, lang, "/work")
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%s: expected error", tc.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestProfileName(t *testing.T) {
	t.Parallel()

	if got := ProfileName("python", TaskRun); got != "python-run" {
		t.Fatalf("expected python-run, got %s", got)
	}
	if got := ProfileName("", TaskCheck); got != "check" {
		t.Fatalf("expected check, got %s", got)
	}
}
