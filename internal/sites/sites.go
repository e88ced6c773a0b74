// Package sites loads the list of prop-firm websites and their per-site overrides.
package sites

import (
	"bufio"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/IliaW/propfirm-rules-scraper/internal/extract"
	"github.com/IliaW/propfirm-rules-scraper/internal/model"
	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Override adjusts how one site is scraped. Overrides are keyed by host without "www.".
type Override struct {
	FirmName     string           `yaml:"firm_name"`
	AccountSizes []string         `yaml:"account_sizes"`
	Stub         bool             `yaml:"stub"`
	Disabled     bool             `yaml:"disabled"`
	Rules        []model.RuleSpec `yaml:"rules"`
}

// Load reads the site list and applies the overrides file. A missing overrides file is not
// an error.
func Load(sitesFile, overridesFile string, log *slog.Logger) ([]model.Target, error) {
	f, err := os.Open(sitesFile)
	if err != nil {
		return nil, eris.Wrapf(err, "can't open site list %s", sitesFile)
	}
	defer f.Close()
	urls, err := ReadList(f, log)
	if err != nil {
		return nil, eris.Wrapf(err, "can't read site list %s", sitesFile)
	}

	overrides := map[string]Override{}
	if overridesFile != "" {
		data, err := os.ReadFile(overridesFile)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			log.Debug("no overrides file.", slog.String("file", overridesFile))
		case err != nil:
			return nil, eris.Wrapf(err, "can't read overrides %s", overridesFile)
		default:
			if overrides, err = ParseOverrides(data); err != nil {
				return nil, eris.Wrapf(err, "invalid overrides %s", overridesFile)
			}
		}
	}

	targets := Targets(urls, overrides, log)
	log.Info("site list loaded.", slog.Int("targets", len(targets)), slog.Int("overrides", len(overrides)))

	return targets, nil
}

// ReadList returns the URLs of a plain one-per-line list. Blank lines, comments and lines
// that are not absolute http(s) URLs are skipped.
func ReadList(r io.Reader, log *slog.Logger) ([]string, error) {
	var urls []string
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			log.Warn("skipping invalid url.", slog.Int("line", line), slog.String("url", raw))
			continue
		}
		urls = append(urls, u.String())
	}
	return urls, scanner.Err()
}

// ParseOverrides decodes the overrides file and validates its rules.
func ParseOverrides(data []byte) (map[string]Override, error) {
	var raw map[string]Override
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "can't decode overrides")
	}
	out := make(map[string]Override, len(raw))
	for host, o := range raw {
		for i, r := range o.Rules {
			if err := extract.ValidateRule(r); err != nil {
				return nil, eris.Wrapf(err, "%s rule %d", host, i)
			}
		}
		out[hostKey(host)] = o
	}
	return out, nil
}

// Targets builds targets in list order. Disabled sites are left out.
func Targets(urls []string, overrides map[string]Override, log *slog.Logger) []model.Target {
	targets := make([]model.Target, 0, len(urls))
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		host := strings.ToLower(u.Hostname())
		o := overrides[hostKey(host)]
		if o.Disabled {
			log.Info("site disabled.", slog.String("url", raw))
			continue
		}
		t := model.Target{
			Index:            len(targets),
			URL:              raw,
			Host:             host,
			FirmName:         o.FirmName,
			AccountSizeHints: o.AccountSizes,
			Stub:             o.Stub,
			Rules:            o.Rules,
		}
		if t.FirmName == "" {
			t.FirmName = FirmName(host)
		}
		targets = append(targets, t)
	}
	return targets
}

func hostKey(host string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(host)), "www.")
}

var hostPrefixes = []string{"www.", "help.", "support.", "knowledge.", "helpfutures."}

var knownFirms = []struct{ key, name string }{
	{"apextraderfunding", "Apex Trader Funding"},
	{"lucidtrading", "Lucid Trading"},
	{"tradeify", "Tradeify"},
	{"myfundedfutures", "My Funded Futures"},
	{"fundednext", "Funded Next"},
	{"alpha-futures", "Alpha Futures"},
	{"intercom", "Top One Futures"},
	{"blueguardianfutures", "Blue Guardian Futures"},
	{"thetradingpit", "The Trading Pit"},
	{"thelegendstrading", "Legends Trading"},
	{"e8markets", "E8 Markets"},
	{"takeprofittraderhelp", "Take Profit Trader"},
	{"tradeday", "Trade Day"},
}

var titleCase = cases.Title(language.English)

// FirmName derives a display name from a host: known firms by name, anything else from the
// first label of the domain.
func FirmName(host string) string {
	host = strings.ToLower(host)
	for _, p := range hostPrefixes {
		host = strings.TrimPrefix(host, p)
	}
	main, _, _ := strings.Cut(host, ".")
	for _, f := range knownFirms {
		if strings.Contains(main, f.key) {
			return f.name
		}
	}
	return titleCase.String(strings.NewReplacer("-", " ", "_", " ").Replace(main))
}
