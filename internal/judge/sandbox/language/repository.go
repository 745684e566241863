package language

import (
	"sort"
	"strconv"
	"strings"

	"codejudge/internal/judge/sandbox/security"
	appErr "codejudge/pkg/errors"
)

// Repository resolves language names, aliases and Judge0 ids to specs.
// It also serves as the engine's profile resolver.
type Repository struct {
	languages map[string]Spec
	aliases   map[string]string
}

// NewRepository builds a repository from config lists. Entries without an id
// are skipped; later entries override earlier ones.
func NewRepository(specs []Spec) *Repository {
	repo := &Repository{
		languages: make(map[string]Spec),
		aliases:   make(map[string]string),
	}
	for _, spec := range specs {
		id := normalize(spec.ID)
		if id == "" {
			continue
		}
		spec.ID = id
		repo.languages[id] = spec
		repo.aliases[id] = id
		for _, alias := range spec.Aliases {
			if a := normalize(alias); a != "" {
				repo.aliases[a] = id
			}
		}
		if spec.Judge0ID > 0 {
			repo.aliases[strconv.Itoa(spec.Judge0ID)] = id
		}
	}
	return repo
}

// Get returns the spec for a language id, alias or Judge0 id.
func (r *Repository) Get(name string) (Spec, error) {
	key := normalize(name)
	if key == "" {
		return Spec{}, appErr.ValidationError("language", "required")
	}
	id, ok := r.aliases[key]
	if !ok {
		return Spec{}, appErr.Newf(appErr.LanguageNotSupported, "language not supported: %s", name)
	}
	return r.languages[id], nil
}

// IDs lists the canonical language ids in sorted order.
func (r *Repository) IDs() []string {
	out := make([]string, 0, len(r.languages))
	for id := range r.languages {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Resolve maps a "<language>-<task>" profile name to isolation settings.
func (r *Repository) Resolve(profileName string) (security.IsolationProfile, error) {
	if profileName == "" {
		return security.IsolationProfile{}, appErr.ValidationError("profile", "required")
	}
	for _, task := range []Task{TaskCheck, TaskRun} {
		suffix := "-" + string(task)
		if !strings.HasSuffix(profileName, suffix) {
			continue
		}
		lang, ok := r.languages[strings.TrimSuffix(profileName, suffix)]
		if !ok {
			break
		}
		return lang.Isolation, nil
	}
	return security.IsolationProfile{}, appErr.Newf(appErr.NotFound, "profile not found: %s", profileName)
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
