package convert

import (
	"github.com/rgsync/redmine-gitlab-sync/pkg/gitlab"
	"github.com/rgsync/redmine-gitlab-sync/pkg/redmine"
	"github.com/rgsync/redmine-gitlab-sync/pkg/usermap"
)

// UserResolver maps a Redmine user reference to a GitLab account: numeric id
// to login, login through the operator override map, then lookup in the
// GitLab user index with the archive account as last resort.
//
// Unknown users are an expected condition (anonymous or long-deleted
// accounts), so the only hard failure is an unknown numeric id; every later
// step has a defined fallback. A configured archive user missing from the
// target index is a configuration error surfaced at startup via Validate,
// never per-issue.
type UserResolver struct {
	Users       map[int]redmine.User
	Overrides   usermap.Map
	GitLabUsers map[string]gitlab.User
	ArchiveUser string
}

// Validate checks the archive account is resolvable when configured.
func (r *UserResolver) Validate() error {
	if r.ArchiveUser == "" {
		return nil
	}
	if _, ok := r.GitLabUsers[r.ArchiveUser]; !ok {
		return &ArchiveUserError{Username: r.ArchiveUser}
	}
	return nil
}

// Archive returns the archive account. Only valid after Validate passed.
func (r *UserResolver) Archive() (gitlab.User, bool) {
	u, ok := r.GitLabUsers[r.ArchiveUser]
	return u, ok && r.ArchiveUser != ""
}

// Resolve maps a source user reference to a GitLab user. fellBack reports
// that the login had no target account and the archive account was
// substituted.
func (r *UserResolver) Resolve(ref *redmine.NamedRef) (user gitlab.User, fellBack bool, err error) {
	if ref == nil {
		return gitlab.User{}, false, &UnknownUserError{}
	}
	source, ok := r.Users[ref.ID]
	if !ok {
		return gitlab.User{}, false, &UnknownUserError{SourceID: ref.ID, Name: ref.Name}
	}
	username := r.Overrides.Resolve(source.Login)
	if target, ok := r.GitLabUsers[username]; ok {
		return target, false, nil
	}
	if archive, ok := r.Archive(); ok {
		return archive, true, nil
	}
	return gitlab.User{}, false, &UnknownUserError{SourceID: ref.ID, Name: ref.Name, Login: source.Login}
}
