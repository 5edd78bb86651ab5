package patopt

import (
	_ "embed"
	"encoding/xml"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/chazu/mbasic/status"
)

//go:embed rules.xml
var defaultRules []byte

type ruleFile struct {
	Opts []optElement `xml:"Opt"`
}

type optElement struct {
	Name    string `xml:"name,attr"`
	Linked  string `xml:"linked,attr"`
	Pattern string `xml:"Pattern"`
	Replace string `xml:"Replace"`
}

// Parse reads a rule table document.
func Parse(data []byte) (*Rules, error) {
	var doc ruleFile
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, status.New(status.ErrRule, "cannot parse rule file").Wrap(err)
	}
	rules := make([]*Rule, 0, len(doc.Opts))
	for i, opt := range doc.Opts {
		r, err := opt.rule(i)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return NewRules(rules...), nil
}

func (o optElement) rule(i int) (*Rule, error) {
	r := &Rule{Name: strings.TrimSpace(o.Name)}
	if r.Name == "" {
		r.Name = fmt.Sprintf("rule%d", i+1)
	}
	if o.Linked != "" {
		b, err := strconv.ParseBool(o.Linked)
		if err != nil {
			return nil, status.New(status.ErrRule, "%s: linked=%q", r.Name, o.Linked)
		}
		r.Linked = &b
	}

	var err error
	if r.Pattern, err = parseTemplates(o.Pattern, false); err != nil {
		return nil, fmt.Errorf("rule %s: %w", r.Name, err)
	}
	if len(r.Pattern) == 0 {
		return nil, status.New(status.ErrRule, "%s: empty pattern", r.Name)
	}
	if r.Replace, err = parseTemplates(o.Replace, true); err != nil {
		return nil, fmt.Errorf("rule %s: %w", r.Name, err)
	}
	return r, nil
}

// LoadFile reads a rule table from disk.
func LoadFile(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, status.New(status.ErrRule, "cannot read %s", path).Wrap(err)
	}
	return Parse(data)
}

var (
	defaultOnce sync.Once
	defaultSet  *Rules
	defaultErr  error

	pathMu    sync.Mutex
	rulesPath string
)

// SetPath overrides the built-in rule table with a file. It only has an
// effect before the first call to Default.
func SetPath(path string) {
	pathMu.Lock()
	defer pathMu.Unlock()
	rulesPath = path
}

// Default returns the process-wide rule table, loading it on first use.
// The table is read-only afterwards and safe for concurrent use.
func Default() (*Rules, error) {
	defaultOnce.Do(func() {
		pathMu.Lock()
		path := rulesPath
		pathMu.Unlock()

		if path != "" {
			defaultSet, defaultErr = LoadFile(path)
		} else {
			defaultSet, defaultErr = Parse(defaultRules)
			path = "built-in rules"
		}
		if defaultErr != nil {
			log.Errorf("optimizer rules: %s", defaultErr)
			return
		}
		log.Infof("loaded %d optimizer rules from %s", len(defaultSet.rules), path)
	})
	return defaultSet, defaultErr
}
