package sites

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/IliaW/propfirm-rules-scraper/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var log = slog.New(slog.NewTextHandler(nopWriter{}, nil))

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestReadList(t *testing.T) {
	list := "https://apextraderfunding.com/rules\n\n# comment\nnot a url\nftp://files.example.com\n" +
		"  https://help.tradeify.co/en/articles/1  \nhttp://%zz\n"

	urls, err := ReadList(strings.NewReader(list), log)

	require.NoError(t, err)
	assert.Equal(t, []string{"https://apextraderfunding.com/rules", "https://help.tradeify.co/en/articles/1"}, urls)
}

func TestFirmName(t *testing.T) {
	tests := map[string]string{
		"www.apextraderfunding.com":        "Apex Trader Funding",
		"help.tradeify.co":                 "Tradeify",
		"intercom.help":                    "Top One Futures",
		"support.my-new_firm.io":           "My New Firm",
		"takeprofittraderhelp.zendesk.com": "Take Profit Trader",
		"localhost":                        "Localhost",
	}
	for host, want := range tests {
		assert.Equal(t, want, FirmName(host), host)
	}
}

const overridesYAML = `
www.apextraderfunding.com:
  firm_name: Apex
  account_sizes: ["$25,000", "$50,000"]
  rules:
    - field: evaluation_target
      keywords: ["goal"]
      window: 30
legacy.com:
  stub: true
old.com:
  disabled: true
`

func TestParseOverridesAndTargets(t *testing.T) {
	overrides, err := ParseOverrides([]byte(overridesYAML))
	require.NoError(t, err)
	require.Contains(t, overrides, "apextraderfunding.com")

	targets := Targets([]string{
		"https://apextraderfunding.com/rules",
		"https://old.com",
		"https://legacy.com",
		"https://www.fundednext.com",
	}, overrides, log)

	require.Len(t, targets, 3)
	assert.Equal(t, "Apex", targets[0].FirmName)
	assert.Equal(t, []string{"$25,000", "$50,000"}, targets[0].AccountSizeHints)
	require.Len(t, targets[0].Rules, 1)
	assert.Equal(t, model.EvalTarget, targets[0].Rules[0].Field)

	assert.True(t, targets[1].Stub)
	assert.Equal(t, 1, targets[1].Index)
	assert.Equal(t, "Legacy", targets[1].FirmName)

	assert.Equal(t, "Funded Next", targets[2].FirmName)
	assert.Equal(t, "www.fundednext.com", targets[2].Host)
	assert.Equal(t, 2, targets[2].Index)
}

func TestParseOverrides_InvalidRule(t *testing.T) {
	_, err := ParseOverrides([]byte("firm.com:\n  rules:\n    - field: profit_split\n"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	list := filepath.Join(dir, "websites.txt")
	require.NoError(t, os.WriteFile(list, []byte("https://tradeday.com\nhttps://legacy.com\n"), 0o644))
	overrides := filepath.Join(dir, "sites.yaml")
	require.NoError(t, os.WriteFile(overrides, []byte("legacy.com:\n  stub: true\n"), 0o644))

	targets, err := Load(list, overrides, log)
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, "Trade Day", targets[0].FirmName)
	assert.True(t, targets[1].Stub)

	targets, err = Load(list, filepath.Join(dir, "missing.yaml"), log)
	require.NoError(t, err)
	assert.Len(t, targets, 2)

	_, err = Load(filepath.Join(dir, "missing.txt"), "", log)
	assert.Error(t, err)
}
