package mcp

import (
	"context"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type SessionSetSuite struct {
	suite.Suite
	server   *httptest.Server
	headers  *headerLog
	sessions *SessionSet
	sse      bool
}

func TestSessionSetJSON(t *testing.T) {
	suite.Run(t, &SessionSetSuite{})
}

func TestSessionSetEventStream(t *testing.T) {
	suite.Run(t, &SessionSetSuite{sse: true})
}

func (s *SessionSetSuite) SetupTest() {
	s.headers = &headerLog{}
	s.server = httptest.NewServer(mockServerHandler(s.sse, s.headers))

	cfg, err := ParseConfig([]byte(`{"mcpServers": {"calendar": {"url": "` + s.server.URL + `"}}}`))
	s.Require().NoError(err)

	s.sessions, err = Dial(context.Background(), cfg, 5*time.Second)
	s.Require().NoError(err)
}

func (s *SessionSetSuite) TearDownTest() {
	if s.sessions != nil {
		s.NoError(s.sessions.Close(context.Background()))
	}
	s.server.Close()
}

func (s *SessionSetSuite) TestHandshakeRecordsServerInfo() {
	states := s.sessions.Servers()
	s.Require().Len(states, 1)
	s.Equal("calendar", states[0].Name)
	s.Equal(ServerStatusConnected, states[0].Status)
	s.Equal("mock-server", states[0].Server)
	s.Equal("1.0.0", states[0].Version)
}

func (s *SessionSetSuite) TestSessionHeaderIsEchoed() {
	_, err := s.sessions.Tools(context.Background())
	s.Require().NoError(err)

	seen := s.headers.all()
	s.Require().GreaterOrEqual(len(seen), 3)
	s.Empty(seen[0], "initialize is sent without a session")
	for _, h := range seen[1:] {
		s.Equal("session-1", h)
	}
}

func (s *SessionSetSuite) TestToolsAreNamespacedAndCached() {
	tools, err := s.sessions.Tools(context.Background())
	s.Require().NoError(err)
	s.Require().Len(tools, 2)
	s.Equal("calendar__echo", tools[0].ID)
	s.Equal("calendar__fail", tools[1].ID)
	s.Equal("calendar", tools[0].Server)
	s.Contains(string(tools[0].Schema.InputSchema), `"required"`)

	again, err := s.sessions.Tools(context.Background())
	s.Require().NoError(err)
	s.Equal(tools, again)
}

func (s *SessionSetSuite) TestCallToolReturnsText() {
	result, err := s.sessions.CallTool(context.Background(), "calendar__echo", map[string]any{"text": "standup at 9"})
	s.Require().NoError(err)
	s.True(result.Success)
	s.Equal("standup at 9", result.Text())
}

func (s *SessionSetSuite) TestToolLevelErrorIsAResult() {
	result, err := s.sessions.CallTool(context.Background(), "calendar__fail", nil)
	s.Require().NoError(err)
	s.False(result.Success)
	s.Equal("calendar is read-only", result.Error)
}

func (s *SessionSetSuite) TestUnknownToolIsAResult() {
	result, err := s.sessions.CallTool(context.Background(), "calendar__nope", nil)
	s.Require().NoError(err)
	s.False(result.Success)
	s.Contains(result.Error, "Unknown tool")
}

func (s *SessionSetSuite) TestUnknownServer() {
	result, err := s.sessions.CallTool(context.Background(), "notion__create", nil)
	s.Require().NoError(err)
	s.False(result.Success)
	s.Contains(result.Error, "not connected")

	_, err = s.sessions.CallTool(context.Background(), "no-separator", nil)
	s.Error(err)
}

func (s *SessionSetSuite) TestCloseDisconnects() {
	s.Require().NoError(s.sessions.Close(context.Background()))
	s.Equal(ServerStatusDisconnected, s.sessions.Servers()[0].Status)

	_, err := s.sessions.servers["calendar"].ListTools(context.Background())
	s.ErrorIs(err, ErrNotConnected)
}

func TestOpenFailsWhenAnyServerFails(t *testing.T) {
	good := httptest.NewServer(mockServerHandler(false, nil))
	defer good.Close()
	dead := httptest.NewServer(nil)
	deadURL := dead.URL
	dead.Close()

	healthy := NewHTTPTransport(good.URL, nil, time.Second)
	_, err := Open(context.Background(), map[string]Transport{
		"good": healthy,
		"dead": NewHTTPTransport(deadURL, nil, time.Second),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect dead")
	assert.False(t, healthy.IsConnected(), "opened transports are closed again")
}

func TestOpenWithoutServers(t *testing.T) {
	_, err := Open(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoServers)
}

func TestParseToolID(t *testing.T) {
	tests := []struct {
		id, server, tool string
	}{
		{"calendar__create_event", "calendar", "create_event"},
		{"google__docs__create", "google", "docs__create"},
		{"plain", "", "plain"},
		{"__x", "", "__x"},
	}
	for _, tt := range tests {
		server, tool := parseToolID(tt.id)
		assert.Equal(t, tt.server, server, tt.id)
		assert.Equal(t, tt.tool, tool, tt.id)
	}
}

func TestStdioTransport(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)

	transport := NewStdioTransport(exe, []string{"-test.run=^$"}, map[string]string{helperEnv: "1"})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sessions, err := Open(ctx, map[string]Transport{"local": transport})
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, sessions.Close(ctx))
		assert.False(t, transport.IsConnected())
	}()

	assert.Equal(t, "mock-server", transport.Info().Name)

	tools, err := sessions.Tools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "local__echo", tools[0].ID)

	result, err := sessions.CallTool(ctx, "local__echo", map[string]any{"text": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", result.Text())

	result, err = sessions.CallTool(ctx, "local__missing", nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
}

func TestStdioTransportMissingCommand(t *testing.T) {
	transport := NewStdioTransport("", nil, nil)
	err := transport.Connect(context.Background())
	assert.Error(t, err)
	assert.False(t, transport.IsConnected())
}
