package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/evalforge/evalforge/internal/identity"
)

// fakeProvider is an in-memory identity.Provider recording mirror calls.
type fakeProvider struct {
	mu sync.Mutex

	usersByEmail map[string]*identity.User
	teamUsers    map[string][]identity.TeamUser

	createdTeams []string
	deletedTeams []string
	invited      []string
	removed      []string

	failAll bool
	nextID  int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		usersByEmail: map[string]*identity.User{},
		teamUsers:    map[string][]identity.TeamUser{},
	}
}

func (f *fakeProvider) addUser(id, email, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usersByEmail[email] = &identity.User{ID: id, PrimaryEmail: email, DisplayName: name}
}

func (f *fakeProvider) GetUser(_ context.Context, userID string) (*identity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.usersByEmail {
		if u.ID == userID {
			return u, nil
		}
	}
	return nil, identity.ErrNotFound
}

func (f *fakeProvider) FindUserByEmail(_ context.Context, email string) (*identity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, errors.New("provider unavailable")
	}
	if u, ok := f.usersByEmail[email]; ok {
		return u, nil
	}
	return nil, identity.ErrNotFound
}

func (f *fakeProvider) CreateTeam(_ context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return "", errors.New("provider unavailable")
	}
	f.nextID++
	teamID := fmt.Sprintf("team-%d", f.nextID)
	f.createdTeams = append(f.createdTeams, name)
	return teamID, nil
}

func (f *fakeProvider) DeleteTeam(_ context.Context, teamID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errors.New("provider unavailable")
	}
	f.deletedTeams = append(f.deletedTeams, teamID)
	return nil
}

func (f *fakeProvider) InviteToTeam(_ context.Context, teamID, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errors.New("provider unavailable")
	}
	f.invited = append(f.invited, teamID+"/"+email)
	return nil
}

func (f *fakeProvider) RemoveFromTeam(_ context.Context, teamID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errors.New("provider unavailable")
	}
	f.removed = append(f.removed, teamID+"/"+userID)
	return nil
}

func (f *fakeProvider) ListTeamUsers(_ context.Context, teamID string) ([]identity.TeamUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, errors.New("provider unavailable")
	}
	return f.teamUsers[teamID], nil
}
