package models

import (
	"fmt"
	"log"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"hypoforge/internal/errors"

	"github.com/spf13/viper"
)

// Demo is one selectable dataset card
type Demo struct {
	Title    string `json:"title" mapstructure:"title"`
	Body     string `json:"body" mapstructure:"body"`
	Href     string `json:"href" mapstructure:"href"`
	Audience string `json:"audience" mapstructure:"audience"` // default hypothesis system prompt
}

// DemoCatalog is the list of demos read once at startup
type DemoCatalog struct {
	Demos []Demo `json:"demos" mapstructure:"demos"`
}

// LoadDemoCatalog reads a {"demos": [...]} document. Relative hrefs are
// resolved against the catalog's own directory, or its URL's base.
func LoadDemoCatalog(path string) (*DemoCatalog, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if filepath.Ext(path) == "" {
		v.SetConfigType("json")
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, fmt.Errorf("failed to read demo catalog %s: %w", path, err))
	}

	var catalog DemoCatalog
	if err := v.Unmarshal(&catalog); err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, fmt.Errorf("failed to decode demo catalog: %w", err))
	}

	base := filepath.Dir(path)
	for i := range catalog.Demos {
		d := &catalog.Demos[i]
		if d.Title == "" || d.Href == "" {
			return nil, errors.ConfigInvalid(fmt.Sprintf("demo %d needs a title and an href", i))
		}
		d.Href = resolveHref(base, d.Href)
	}

	log.Printf("[DemoCatalog] Loaded %d demos from %s", len(catalog.Demos), path)
	return &catalog, nil
}

// Get returns the demo at index
func (c *DemoCatalog) Get(index int) (Demo, error) {
	if index < 0 || index >= len(c.Demos) {
		return Demo{}, errors.NotFound(fmt.Sprintf("demo %d", index))
	}
	return c.Demos[index], nil
}

// Find resolves a demo by index ("0") or case-insensitive title
func (c *DemoCatalog) Find(ref string) (Demo, int, error) {
	if index, err := strconv.Atoi(ref); err == nil {
		d, err := c.Get(index)
		return d, index, err
	}
	for i, d := range c.Demos {
		if strings.EqualFold(d.Title, ref) {
			return d, i, nil
		}
	}
	return Demo{}, -1, errors.NotFound(fmt.Sprintf("demo %q", ref))
}

func resolveHref(base, href string) string {
	if u, err := url.Parse(href); err == nil && u.IsAbs() {
		return href
	}
	if filepath.IsAbs(href) {
		return href
	}
	return filepath.Join(base, href)
}
