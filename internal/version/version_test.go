package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

// stamp sets build variables for one test.
func stamp(t *testing.T, version, commit, date string) {
	t.Helper()
	v, c, d := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = v, c, d })
	Version, Commit, Date = version, commit, date
}

func TestGet_Stamped(t *testing.T) {
	stamp(t, "1.4.0", "0123456789abcdef", "2026-03-02")

	b := Get()
	assert.Equal(t, "1.4.0", b.Version)
	assert.Equal(t, "0123456789abcdef", b.Commit)
	assert.Equal(t, "2026-03-02", b.Date)
	assert.Equal(t, runtime.Version(), b.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, b.Platform)
}

func TestInfo_AbbreviatesCommit(t *testing.T) {
	stamp(t, "1.4.0", "0123456789abcdef", "2026-03-02")

	info := Info()
	assert.Contains(t, info, "voicesquad 1.4.0 (0123456, built 2026-03-02)")
	assert.NotContains(t, info, "89abcdef")
}

func TestAbbrev(t *testing.T) {
	for in, want := range map[string]string{
		"":         "",
		"abc":      "abc",
		"abcdefg":  "abcdefg",
		"abcdefgh": "abcdefg",
	} {
		assert.Equal(t, want, abbrev(in), in)
	}
}

func TestUserAgent(t *testing.T) {
	stamp(t, "2.0.0", "x", "y")
	assert.Equal(t, "voicesquad/2.0.0 ("+runtime.GOOS+"/"+runtime.GOARCH+")", UserAgent())
}
