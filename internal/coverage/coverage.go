// Package coverage flags events that official or local sources are
// covering while the major wires stay silent.
package coverage

import (
	"strings"
	"time"

	"github.com/abelbrown/chorus/internal/config"
	"github.com/abelbrown/chorus/internal/model"
)

// Detector evaluates the underreported flag for events.
type Detector struct {
	cfg     config.CoverageConfig
	sources *model.Registry
}

func New(cfg config.CoverageConfig, sources *model.Registry) *Detector {
	return &Detector{cfg: cfg, sources: sources}
}

// Assessment is one coverage verdict. WireSeen folds the event's
// persisted latch together with the current member set.
type Assessment struct {
	Underreported bool
	WireSeen      bool

	// QualifiedBy names what qualified the event: "official", "local",
	// or "" when nothing did.
	QualifiedBy string
}

// Assess re-evaluates coverage for one event. Qualification counts only
// members published within the window after first_seen; a wire member
// anywhere in the set still sets the latch, since a story the wires have
// picked up is never underreported again, however late they arrived.
func (d *Detector) Assess(ev *model.Event, members []model.Article) Assessment {
	windowEnd := ev.FirstSeen.Add(time.Duration(d.cfg.WindowHours) * time.Hour)

	wireSeen := ev.WireSeen
	official := false
	locals := map[string]struct{}{}
	for _, m := range members {
		if d.isWire(m.Source) {
			wireSeen = true
			continue
		}
		if m.PublishedAt.After(windowEnd) {
			continue
		}
		if d.isOfficial(m.Source) {
			official = true
		} else if d.sources.Kind(m.Source) == model.SourceLocal {
			locals[m.Source] = struct{}{}
		}
	}

	a := Assessment{WireSeen: wireSeen}
	switch {
	case official:
		a.QualifiedBy = "official"
	case len(locals) >= d.cfg.MinLocalOutlets:
		a.QualifiedBy = "local"
	}
	a.Underreported = a.QualifiedBy != "" && !wireSeen
	return a
}

func (d *Detector) isWire(source string) bool {
	return matchesAny(source, d.cfg.WireDomains)
}

// isOfficial consults the allowlist first, then the registry, so
// config-merged outlets marked official count without being listed
// twice.
func (d *Detector) isOfficial(source string) bool {
	if matchesAny(source, d.cfg.OfficialDomains) {
		return true
	}
	return d.sources.Kind(source) == model.SourceOfficial
}

func matchesAny(source string, domains []string) bool {
	source = strings.ToLower(strings.TrimPrefix(source, "www."))
	for _, dom := range domains {
		if source == dom || strings.HasSuffix(source, "."+dom) {
			return true
		}
	}
	return false
}
