package engine

import (
	"context"
	"fmt"

	releasecache "github.com/wolfeidau/release-cache"
	"github.com/wolfeidau/release-cache/metadata"
)

// Strategy governs whether the engine auto-picks a release or defers to
// interactive choice.
type Strategy string

const (
	// StrategyAuto picks the best matching release and falls back to
	// interactive choice when nothing matches.
	StrategyAuto Strategy = "auto"

	// StrategyNever fails when no release matches.
	StrategyNever Strategy = "never"

	// StrategyAlways defers every selection to interactive choice.
	StrategyAlways Strategy = "always"

	// StrategyIgnore deliberately skips the project when no release
	// matches, without failing.
	StrategyIgnore Strategy = "ignore"
)

func (s Strategy) valid() bool {
	switch s {
	case StrategyAuto, StrategyNever, StrategyAlways, StrategyIgnore:
		return true
	}
	return false
}

// SelectOptions control a single release selection.
type SelectOptions struct {
	// RestrictTo narrows the candidate set; metadata.FilterDev restricts
	// selection to development snapshots.
	RestrictTo metadata.Filter

	// Strategy is the selection strategy. The zero value is StrategyNever.
	Strategy Strategy

	// OfferAll widens the interactive listing to every known release
	// instead of only the stable ones.
	OfferAll bool

	// Version narrows the interactive release listing.
	Version string
}

// SelectRelease resolves a single release for the request.
//
// A nil release with a nil error means the project was deliberately skipped
// (StrategyIgnore with no match). ErrAborted distinguishes a declined
// interactive choice from a NotFoundError.
func (e *Engine) SelectRelease(ctx context.Context, req releasecache.Request, opts SelectOptions) (*releasecache.Release, error) {
	strategy := opts.Strategy
	if strategy == "" {
		strategy = StrategyNever
	}
	if !strategy.valid() {
		return nil, &UnknownStrategyError{Strategy: strategy}
	}

	m, err := e.Get(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("obtaining release metadata for %s: %w", req.Name, err)
	}

	if strategy != StrategyAlways {
		rel, pickErr := pickRelease(m, req, opts.RestrictTo)
		if pickErr == nil {
			return rel, nil
		}

		switch strategy {
		case StrategyNever:
			return nil, pickErr
		case StrategyIgnore:
			e.logger.Debug("no release matched, skipping project", "project", req.Name)
			return nil, nil
		case StrategyAuto:
			e.logger.Warn("no release matched, falling back to interactive selection",
				"project", req.Name,
				"error", pickErr,
			)
		}
	}

	return e.chooseRelease(req, m, opts)
}

// pickRelease is the non-interactive selection: one branch per input shape,
// no re-ranking. Recommendation policy belongs to the provider.
func pickRelease(m metadata.Metadata, req releasecache.Request, restrictTo metadata.Filter) (*releasecache.Release, error) {
	switch {
	case restrictTo == metadata.FilterDev:
		if rel, ok := m.DevRelease(); ok {
			return &rel, nil
		}
		return nil, &NotFoundError{Name: req.Name, Kind: KindDev}

	case req.Version != "":
		if rel, ok := m.SpecificRelease(req.Version); ok {
			return &rel, nil
		}
		return nil, &NotFoundError{Name: req.Name, Version: req.Version, Kind: KindVersion}

	default:
		if rel, ok := m.RecommendedOrSupportedRelease(); ok {
			return &rel, nil
		}
		return nil, &NotFoundError{Name: req.Name, Kind: KindStable}
	}
}

// chooseRelease presents the filtered release list for interactive choice.
func (e *Engine) chooseRelease(req releasecache.Request, m metadata.Metadata, opts SelectOptions) (*releasecache.Release, error) {
	if e.chooser == nil {
		return nil, ErrAborted
	}

	filter := metadata.FilterDefault
	switch {
	case opts.RestrictTo == metadata.FilterDev:
		filter = metadata.FilterDev
	case opts.OfferAll:
		filter = metadata.FilterAll
	}

	releases := m.FilterReleases(filter, opts.Version)
	choices := make([]Choice, 0, len(releases))
	byVersion := make(map[string]releasecache.Release, len(releases))
	for _, rel := range releases {
		choices = append(choices, Choice{Version: rel.Version, Row: rel.DisplayRow()})
		byVersion[rel.Version] = rel
	}

	prompt := fmt.Sprintf("Choose one of the available releases for %s:", req.Name)
	version, err := e.chooser.Choose(choices, prompt)
	if err != nil {
		return nil, err
	}

	rel, ok := byVersion[version]
	if !ok {
		return nil, &NotFoundError{Name: req.Name, Version: version, Kind: KindVersion}
	}
	return &rel, nil
}
