package daemonconf

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRepeatedKeyRoundTrip(t *testing.T) {
	c := New()
	c.Section("dns").
		Add("upstream", "8.8.8.8").
		Add("upstream", "10.0.0.5").
		Set("bind", "127.3.2.1:53")

	data, err := c.Marshal()
	require.NoError(t, err)
	text := string(data)
	require.Contains(t, text, "[dns]")
	require.Contains(t, text, "upstream=8.8.8.8\n")
	require.Contains(t, text, "upstream=10.0.0.5\n")
	require.Less(t, strings.Index(text, "upstream=8.8.8.8"), strings.Index(text, "upstream=10.0.0.5"))

	parsed, err := Parse(data)
	require.NoError(t, err)
	require.Equal(t, []string{"8.8.8.8", "10.0.0.5"}, parsed.Values("dns", "upstream"))
	bind, ok := parsed.Get("dns", "bind")
	require.True(t, ok)
	require.Equal(t, "127.3.2.1:53", bind)
}

func TestRepeatedKeyKeepsDuplicates(t *testing.T) {
	c := New()
	c.Section("dns").Add("upstream", "8.8.8.8").Add("upstream", "8.8.8.8")

	data, err := c.Marshal()
	require.NoError(t, err)
	require.Equal(t, 2, strings.Count(string(data), "upstream=8.8.8.8\n"))

	parsed, err := Parse(data)
	require.NoError(t, err)
	require.Equal(t, []string{"8.8.8.8", "8.8.8.8"}, parsed.Values("dns", "upstream"))
}

func TestCommentCharactersAreWrittenRaw(t *testing.T) {
	c := New()
	c.Section("lokid").Set("password", "a#b;c")

	data, err := c.Marshal()
	require.NoError(t, err)
	require.Contains(t, string(data), "password=a#b;c\n")
	require.NotContains(t, string(data), "`")

	parsed, err := Parse(data)
	require.NoError(t, err)
	pass, ok := parsed.Get("lokid", "password")
	require.True(t, ok)
	require.Equal(t, "a#b;c", pass)
}

func TestSectionAndKeyOrderIsPreserved(t *testing.T) {
	c := New()
	c.Section("router").Set("nickname", "ldl")
	c.Section("dns").Set("bind", "127.0.0.1:53")
	c.Section("api").Set("enabled", true).Set("bind", "127.0.0.1:1190")
	c.Section("router").Set("netid", "service")

	require.Equal(t, []string{"router", "dns", "api"}, c.Sections())
	require.Equal(t, []string{"nickname", "netid"}, c.Section("router").Keys())

	data, err := c.Marshal()
	require.NoError(t, err)
	parsed, err := Parse(data)
	require.NoError(t, err)
	require.Equal(t, c.Sections(), parsed.Sections())
	require.Equal(t, []string{"enabled", "bind"}, parsed.Section("api").Keys())
}

func TestSetReplacesAndKeepsPosition(t *testing.T) {
	c := New()
	c.Section("router").Set("nickname", "a").Set("netid", "gamma").Set("nickname", "b")
	require.Equal(t, []string{"nickname", "netid"}, c.Section("router").Keys())
	require.Equal(t, []string{"b"}, c.Values("router", "nickname"))
}

func TestDelete(t *testing.T) {
	c := New()
	c.Section("router").Set("public-ip", "1.2.3.4").Set("public-port", 1090)
	c.Section("router").Delete("public-ip").Delete("missing")
	require.Equal(t, []string{"public-port"}, c.Section("router").Keys())
}

func TestTypedLiterals(t *testing.T) {
	c, err := Parse([]byte("[api]\nenabled=true\n[lokid]\nenabled=false\nusername=True\n"))
	require.NoError(t, err)

	v, ok := c.Bool("api", "enabled")
	require.True(t, ok)
	require.True(t, v)

	v, ok = c.Bool("lokid", "enabled")
	require.True(t, ok)
	require.False(t, v)

	_, ok = c.Bool("lokid", "username")
	require.False(t, ok, "only the lowercase literals are booleans")
}

func TestFrozenConfigPanicsOnChange(t *testing.T) {
	c := New()
	c.Section("router").Set("nickname", "ldl")
	c.Freeze()
	require.True(t, c.Frozen())
	require.Panics(t, func() { c.Section("router").Set("nickname", "other") })
	require.Panics(t, func() { c.Section("new") })
	// Reads still work on a frozen configuration.
	require.True(t, c.HasSection("router"))
}
