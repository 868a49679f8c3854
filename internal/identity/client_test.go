package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(Config{
		BaseURL:   baseURL,
		ProjectID: "proj-1",
		ServerKey: "server-key",
	})
	require.NoError(t, err)
	return client
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{ServerKey: "k"})
	require.Error(t, err)

	_, err = NewClient(Config{BaseURL: "https://id.local"})
	require.Error(t, err)
}

func TestGetUserSendsAuthHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users/user-1", r.URL.Path)
		require.Equal(t, "Bearer server-key", r.Header.Get("Authorization"))
		require.Equal(t, "proj-1", r.Header.Get("X-Project-Id"))
		json.NewEncoder(w).Encode(User{ID: "user-1", PrimaryEmail: "one@example.com"})
	}))
	defer server.Close()

	user, err := newTestClient(t, server.URL).GetUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, "one@example.com", user.PrimaryEmail)
}

func TestGetUserNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).GetUser(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFindUserByEmailNormalisesQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "two@example.com", r.URL.Query().Get("query"))
		require.Equal(t, "1", r.URL.Query().Get("limit"))
		json.NewEncoder(w).Encode(map[string]any{
			"items": []User{{ID: "user-2", PrimaryEmail: "two@example.com"}},
		})
	}))
	defer server.Close()

	user, err := newTestClient(t, server.URL).FindUserByEmail(context.Background(), "  Two@Example.com ")
	require.NoError(t, err)
	require.Equal(t, "user-2", user.ID)
}

func TestFindUserByEmailEmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"items": []User{}})
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).FindUserByEmail(context.Background(), "none@example.com")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateTeamRequiresID(t *testing.T) {
	responses := []string{`{"id":"team-9"}`, `{}`}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/teams", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "Research Lab", body["display_name"])

		w.Write([]byte(responses[0]))
		responses = responses[1:]
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	teamID, err := client.CreateTeam(context.Background(), "Research Lab")
	require.NoError(t, err)
	require.Equal(t, "team-9", teamID)

	_, err = client.CreateTeam(context.Background(), "Research Lab")
	require.Error(t, err)
}

func TestTeamMirrorCalls(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	ctx := context.Background()

	require.NoError(t, client.DeleteTeam(ctx, "team-1"))
	require.NoError(t, client.InviteToTeam(ctx, "team-1", "new@example.com"))
	require.NoError(t, client.RemoveFromTeam(ctx, "team-1", "user-3"))

	require.Equal(t, []string{
		"DELETE /teams/team-1",
		"POST /teams/team-1/invitations",
		"DELETE /teams/team-1/users/user-3",
	}, paths)
}

func TestListTeamUsers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/teams/team-1/users", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"items": []TeamUser{
				{User: User{ID: "user-1", PrimaryEmail: "one@example.com"}, TeamDisplayName: "Lead"},
			},
		})
	}))
	defer server.Close()

	users, err := newTestClient(t, server.URL).ListTeamUsers(context.Background(), "team-1")
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Equal(t, "Lead", users[0].TeamDisplayName)
}
