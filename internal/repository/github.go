package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/bianoble/componentmgr/internal/apperrors"
	"github.com/bianoble/componentmgr/internal/component"
	"github.com/bianoble/componentmgr/internal/config"
	"github.com/bianoble/componentmgr/internal/fetch"
)

const (
	defaultGitHubWebURL = "https://github.com"
	gitHubPageSize      = 100
)

// GitHub serves components from a GitHub repository named by each
// specification's "repository" (owner/name). Every tag and branch is a
// version; the specification must name one exactly.
type GitHub struct {
	client  *fetch.Client
	id      string
	apiURL  string
	webURL  string
	token   string
	timeout time.Duration
}

func newGitHub(decl config.Repository, env Env) (Repository, error) {
	g := &GitHub{
		client:  env.Fetch,
		id:      decl.Name,
		apiURL:  decl.OptionString("apiUrl"),
		webURL:  decl.OptionString("webUrl"),
		token:   decl.OptionString("token"),
		timeout: env.Settings.Timeout,
	}
	if g.apiURL == "" {
		g.apiURL = env.Settings.GitHub.APIURL
	}
	if g.webURL == "" {
		g.webURL = defaultGitHubWebURL
	}
	if g.token == "" {
		g.token = env.Settings.GitHub.Token
	}
	if g.apiURL == "" {
		return nil, apperrors.Newf(apperrors.KindValidationFailed, "",
			"package repository '%s': no GitHub API URL configured", decl.Name)
	}
	return g, nil
}

func (g *GitHub) ID() string   { return g.id }
func (g *GitHub) Name() string { return "GitHub" }

type gitHubRef struct {
	Name   string `json:"name"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

// Resolve lists tags, newest semantic version first, followed by branches.
func (g *GitHub) Resolve(ctx context.Context, spec component.Specification) (*component.Component, error) {
	repo := strings.Trim(spec.ExtraString("repository"), "/")
	if repo == "" {
		return nil, missingComponent(spec, "no 'repository' declared for GitHub repository '%s'", g.id)
	}

	tags, err := g.list(ctx, repo, "tags")
	if err != nil {
		return nil, g.listError(spec, repo, err)
	}
	branches, err := g.list(ctx, repo, "branches")
	if err != nil {
		return nil, g.listError(spec, repo, err)
	}

	cloneURI := strings.TrimRight(g.webURL, "/") + "/" + repo + ".git"
	c := &component.Component{Name: spec.Name, RepositoryID: g.id}
	for _, ref := range append(orderTags(tags), branches...) {
		c.Versions = append(c.Versions, &component.Version{
			Release: ref.Name,
			Sources: []component.Source{component.GitSource{RepositoryURI: cloneURI, Ref: ref.Name}},
		})
	}
	return c, nil
}

// Satisfies holds only for the tag or branch the specification names.
func (g *GitHub) Satisfies(spec component.Specification, v *component.Version) bool {
	return spec.Version == v.Release
}

func (g *GitHub) list(ctx context.Context, repo, kind string) ([]gitHubRef, error) {
	headers := map[string]string{"Accept": "application/vnd.github+json"}
	if g.token != "" {
		headers["Authorization"] = "Bearer " + g.token
	}

	var all []gitHubRef
	for page := 1; ; page++ {
		var refs []gitHubRef
		err := g.client.GetJSON(ctx, fetch.Request{
			URL:     fmt.Sprintf("%s/repos/%s/%s", strings.TrimRight(g.apiURL, "/"), repo, kind),
			Query:   url.Values{"per_page": {strconv.Itoa(gitHubPageSize)}, "page": {strconv.Itoa(page)}},
			Headers: headers,
			Timeout: g.timeout,
		}, &refs)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", kind, err)
		}
		all = append(all, refs...)
		if len(refs) < gitHubPageSize {
			return all, nil
		}
	}
}

func (g *GitHub) listError(spec component.Specification, repo string, err error) error {
	var status *fetch.StatusError
	if errors.As(err, &status) && status.StatusCode == http.StatusNotFound {
		return apperrors.Wrap(apperrors.KindMissingComponent, spec.Name,
			fmt.Sprintf("GitHub repository '%s' not found", repo), err)
	}
	return apperrors.Wrap(apperrors.KindSourceUnavailable, spec.Name,
		fmt.Sprintf("querying GitHub repository '%s'", repo), err)
}

// orderTags puts semantic-version tags first, newest first, and keeps the
// remaining tags in API order after them.
func orderTags(tags []gitHubRef) []gitHubRef {
	type parsed struct {
		v   *semver.Version
		ref gitHubRef
	}
	var semverTags []parsed
	var other []gitHubRef
	for _, t := range tags {
		v, err := semver.NewVersion(t.Name)
		if err != nil {
			other = append(other, t)
			continue
		}
		semverTags = append(semverTags, parsed{v: v, ref: t})
	}
	sort.SliceStable(semverTags, func(i, j int) bool {
		return semverTags[i].v.GreaterThan(semverTags[j].v)
	})

	out := make([]gitHubRef, 0, len(tags))
	for _, p := range semverTags {
		out = append(out, p.ref)
	}
	return append(out, other...)
}
