package rules

import "github.com/linkmesh/linkmesh/internal/models"

// Default rules shipped with the analysis engine for its stock segments.
var defaultRules = map[models.RuleKey]models.LinkingRule{
	{Source: "blog", Target: "blog"}:           {MinLinks: 3, MaxLinks: 5},
	{Source: "blog", Target: "categorie"}:      {MinLinks: 2, MaxLinks: 4},
	{Source: "blog", Target: "produit"}:        {MinLinks: 1, MaxLinks: 3},
	{Source: "categorie", Target: "blog"}:      {MinLinks: 1, MaxLinks: 3},
	{Source: "categorie", Target: "categorie"}: {MinLinks: 1, MaxLinks: 3},
	{Source: "categorie", Target: "produit"}:   {MinLinks: 1, MaxLinks: 2},
	{Source: "produit", Target: "blog"}:        {MinLinks: 1, MaxLinks: 2},
	{Source: "produit", Target: "categorie"}:   {MinLinks: 1, MaxLinks: 2},
	{Source: "produit", Target: "produit"}:     {MinLinks: 1, MaxLinks: 2},
}

// fallbackRule covers segment pairs the stock grid does not name.
var fallbackRule = models.LinkingRule{MinLinks: 1, MaxLinks: 2}

// DefaultMatrix returns the stock rule grid.
func DefaultMatrix() models.RuleMatrix {
	out := make(models.RuleMatrix, len(defaultRules))
	for k, r := range defaultRules {
		out[k] = r
	}
	return out
}

// MatrixForSegments builds a full cross-product matrix over the given
// segments, taking stock values where a pair is known and the fallback
// otherwise. Duplicate segment names collapse.
func MatrixForSegments(segments []string) models.RuleMatrix {
	seen := make(map[string]bool, len(segments))
	uniq := segments[:0:0]
	for _, seg := range segments {
		if seg == "" || seen[seg] {
			continue
		}
		seen[seg] = true
		uniq = append(uniq, seg)
	}

	out := make(models.RuleMatrix, len(uniq)*len(uniq))
	for _, src := range uniq {
		for _, tgt := range uniq {
			key := models.RuleKey{Source: src, Target: tgt}
			if r, ok := defaultRules[key]; ok {
				out[key] = r
			} else {
				out[key] = fallbackRule
			}
		}
	}
	return out
}
