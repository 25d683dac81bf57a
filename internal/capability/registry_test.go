package capability

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	reg := Default()

	assert.Equal(t, []string{
		"document-create", "spreadsheet-edit", "calendar-create",
		"message-send", "mail-send", "notion-page-create",
	}, reg.Names())

	for _, c := range reg.All() {
		assert.Equal(t, []Mode{ModeRead, ModeEdit, ModeCreate}, c.Modes(), c.Name)
		assert.NotEmpty(t, c.RequiredParams(), c.Name)
	}
}

func TestResolveAliases(t *testing.T) {
	reg := Default()
	cases := map[string]string{
		"google docs":    "document-create",
		"Google Sheet":   "spreadsheet-edit",
		"calendar":       "calendar-create",
		"slack":          "message-send",
		"gmail":          "mail-send",
		"Notion  create": "notion-page-create",
		"mail-send":      "mail-send",
	}
	for in, want := range cases {
		got, ok := reg.Resolve(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := reg.Resolve("fax")
	assert.False(t, ok)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	c := &Capability{Name: "x", Aliases: []string{"ex"}, Verbs: []string{"do"}, Objects: []string{"it"}}
	require.NoError(t, reg.Register(c))

	err := reg.Register(c)
	assert.True(t, errors.Is(err, ErrCapabilityExists))

	err = reg.Register(&Capability{Name: "y", Aliases: []string{"EX"}, Verbs: []string{"do"}, Objects: []string{"it"}})
	assert.True(t, errors.Is(err, ErrCapabilityExists))

	err = reg.Register(&Capability{Name: ""})
	assert.True(t, errors.Is(err, ErrCapabilityNameEmpty))

	err = reg.Register(&Capability{Name: "z"})
	assert.True(t, errors.Is(err, ErrCapabilityNoKeywords))
}

func TestSubset(t *testing.T) {
	reg := Default()

	sub, err := reg.Subset("gmail", "calendar")
	require.NoError(t, err)
	// registry order, not argument order
	assert.Equal(t, []string{"calendar-create", "mail-send"}, sub.Names())

	all, err := reg.Subset()
	require.NoError(t, err)
	assert.Equal(t, 6, all.Count())

	_, err = reg.Subset("fax")
	assert.True(t, errors.Is(err, ErrCapabilityNotFound))
}

func TestFilter(t *testing.T) {
	reg := Default()
	got := reg.Filter([]string{"gmail", "mail-send", "zoom", "Slack"})
	assert.Equal(t, []string{"mail-send", "message-send"}, got)
}
