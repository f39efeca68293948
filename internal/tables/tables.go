// Package tables holds the static mapping between named document categories
// and their share links. The registry is read-only at runtime; links come
// from configuration.
package tables

import (
	"fmt"

	"access_share_bot/internal/config"
)

// Category names, in display order. These values travel inside callback
// payloads and must stay stable.
const (
	WebContent   = config.CategoryWebContent
	WebAIContent = config.CategoryWebAIContent
	SeoContent   = config.CategorySeoContent
	Backup       = config.CategoryBackup
	LinkToGuide  = config.CategoryLinkToGuide
)

// labels maps categories to the human-readable button captions.
var labels = map[string]string{
	WebContent:   "Web 2.0 table",
	WebAIContent: "Web AI table",
	SeoContent:   "SEO table",
	Backup:       "Backup table",
	LinkToGuide:  "Link to Guide",
}

// working lists the categories offered during deletion: the tables users
// actually hold write access on.
var working = []string{WebContent, WebAIContent, SeoContent}

// all lists every category, in the order the All Links keyboard shows them.
var all = []string{WebContent, WebAIContent, SeoContent, Backup, LinkToGuide}

// Registry resolves category names to share links.
type Registry struct {
	links map[string]string
}

// NewRegistry builds a registry from configured links. Categories without a
// configured link are simply absent and resolve to an error.
func NewRegistry(links map[string]string) *Registry {
	copied := make(map[string]string, len(links))
	for category, link := range links {
		if _, known := labels[category]; !known {
			continue
		}
		if link == "" {
			continue
		}
		copied[category] = link
	}

	return &Registry{links: copied}
}

// Resolve returns the configured link for a category.
func (r *Registry) Resolve(category string) (string, error) {
	if r == nil {
		return "", fmt.Errorf("table registry is not initialized")
	}

	link, ok := r.links[category]
	if !ok {
		return "", fmt.Errorf("no link configured for table %q", category)
	}

	return link, nil
}

// Has reports whether the category has a configured link.
func (r *Registry) Has(category string) bool {
	if r == nil {
		return false
	}

	_, ok := r.links[category]
	return ok
}

// Working returns the categories offered during the deletion workflow, in
// display order, restricted to those with configured links.
func (r *Registry) Working() []string {
	return r.filter(working)
}

// All returns every configured category in display order.
func (r *Registry) All() []string {
	return r.filter(all)
}

func (r *Registry) filter(categories []string) []string {
	if r == nil {
		return nil
	}

	out := make([]string, 0, len(categories))
	for _, category := range categories {
		if _, ok := r.links[category]; ok {
			out = append(out, category)
		}
	}
	return out
}

// Label returns the button caption for a category, falling back to the raw
// name for unknown input.
func Label(category string) string {
	if label, ok := labels[category]; ok {
		return label
	}
	return category
}
