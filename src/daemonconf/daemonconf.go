// Package daemonconf holds the configuration handed to the lokinet daemon: an
// ordered set of named sections, each an ordered set of keys, where a key may
// repeat to carry a sequence of values (for example several dns upstream=
// lines). It is serialised to and parsed from the daemon's INI format.
package daemonconf

import (
	"bytes"
	"fmt"
	"strconv"

	"gopkg.in/ini.v1"
)

func init() {
	// The daemon expects key=value with no alignment padding.
	ini.PrettyFormat = false
}

// Config is built once per run. After Freeze it must no longer be modified.
type Config struct {
	sections []*Section
	index    map[string]*Section
	frozen   bool
}

// Section is one [name] block of the configuration.
type Section struct {
	name    string
	config  *Config
	entries []*entry
	index   map[string]*entry
}

type entry struct {
	key    string
	values []string
}

// New returns an empty configuration.
func New() *Config {
	return &Config{index: make(map[string]*Section)}
}

// Section returns the named section, creating it at the end if it does not
// exist yet.
func (c *Config) Section(name string) *Section {
	if s, ok := c.index[name]; ok {
		return s
	}
	c.mustNotBeFrozen()
	s := &Section{name: name, config: c, index: make(map[string]*entry)}
	c.sections = append(c.sections, s)
	c.index[name] = s
	return s
}

// HasSection reports whether the named section exists.
func (c *Config) HasSection(name string) bool {
	_, ok := c.index[name]
	return ok
}

// Sections returns the section names in insertion order.
func (c *Config) Sections() []string {
	names := make([]string, 0, len(c.sections))
	for _, s := range c.sections {
		names = append(names, s.name)
	}
	return names
}

// Get returns the first value of a key.
func (c *Config) Get(section, key string) (string, bool) {
	values := c.Values(section, key)
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// Values returns every value of a key in the order they were added.
func (c *Config) Values(section, key string) []string {
	s, ok := c.index[section]
	if !ok {
		return nil
	}
	e, ok := s.index[key]
	if !ok {
		return nil
	}
	return append([]string(nil), e.values...)
}

// Bool interprets a value as one of the two typed literals the format
// recognises. Anything else is reported as not a boolean.
func (c *Config) Bool(section, key string) (value bool, ok bool) {
	v, found := c.Get(section, key)
	switch {
	case !found:
		return false, false
	case v == "true":
		return true, true
	case v == "false":
		return false, true
	default:
		return false, false
	}
}

// Freeze marks the configuration as complete. Any later modification panics.
func (c *Config) Freeze() *Config {
	c.frozen = true
	return c
}

// Frozen reports whether Freeze has been called.
func (c *Config) Frozen() bool {
	return c.frozen
}

func (c *Config) mustNotBeFrozen() {
	if c.frozen {
		panic("daemonconf: configuration modified after it was frozen")
	}
}

// Name returns the section name.
func (s *Section) Name() string {
	return s.name
}

// Keys returns the distinct keys of the section in insertion order.
func (s *Section) Keys() []string {
	keys := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		keys = append(keys, e.key)
	}
	return keys
}

// Set replaces all values of key with a single value. A new key is placed at
// the end of the section, an existing key keeps its position.
func (s *Section) Set(key string, value interface{}) *Section {
	s.config.mustNotBeFrozen()
	if e, ok := s.index[key]; ok {
		e.values = []string{format(value)}
		return s
	}
	s.add(key, format(value))
	return s
}

// Add appends another value to key, turning it into a repeated key.
func (s *Section) Add(key string, value interface{}) *Section {
	s.config.mustNotBeFrozen()
	if e, ok := s.index[key]; ok {
		e.values = append(e.values, format(value))
		return s
	}
	s.add(key, format(value))
	return s
}

// Delete removes key and all of its values.
func (s *Section) Delete(key string) *Section {
	s.config.mustNotBeFrozen()
	if _, ok := s.index[key]; !ok {
		return s
	}
	delete(s.index, key)
	for i, e := range s.entries {
		if e.key == key {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			break
		}
	}
	return s
}

func (s *Section) add(key, value string) {
	e := &entry{key: key, values: []string{value}}
	s.entries = append(s.entries, e)
	s.index[key] = e
}

func format(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case uint16:
		return strconv.FormatUint(uint64(v), 10)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// iniOptions keeps repeated values, duplicates included, and writes values
// without quoting since the daemon reads plain key=value lines.
var iniOptions = ini.LoadOptions{
	AllowShadows:               true,
	AllowDuplicateShadowValues: true,
	IgnoreInlineComment:        true,
}

// Marshal serialises the configuration in section order, with repeated keys
// written as consecutive key=value lines.
func (c *Config) Marshal() ([]byte, error) {
	f := ini.Empty(iniOptions)
	for _, s := range c.sections {
		sec, err := f.NewSection(s.name)
		if err != nil {
			return nil, fmt.Errorf("section %q: %w", s.name, err)
		}
		for _, e := range s.entries {
			key, err := sec.NewKey(e.key, e.values[0])
			if err != nil {
				return nil, fmt.Errorf("key %s.%s: %w", s.name, e.key, err)
			}
			for _, v := range e.values[1:] {
				if err := key.AddShadow(v); err != nil {
					return nil, fmt.Errorf("key %s.%s: %w", s.name, e.key, err)
				}
			}
		}
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Parse reads a configuration in the daemon's format. Repeated keys are
// returned as multiple values in file order.
func Parse(data []byte) (*Config, error) {
	f, err := ini.LoadSources(iniOptions, data)
	if err != nil {
		return nil, err
	}
	c := New()
	for _, sec := range f.Sections() {
		if sec.Name() == ini.DefaultSection && len(sec.Keys()) == 0 {
			continue
		}
		s := c.Section(sec.Name())
		for _, key := range sec.Keys() {
			for _, v := range key.ValueWithShadows() {
				s.Add(key.Name(), v)
			}
		}
	}
	return c, nil
}
