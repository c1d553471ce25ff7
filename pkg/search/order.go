package search

import (
	"sort"

	"github.com/kadirpekel/dossier/pkg/document"
)

// OrderDocuments sorts in place by score descending, then publish date
// descending, with undated documents after all dated ones. The sort is
// stable so equally ranked documents keep arrival order.
func OrderDocuments(docs []document.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		a, b := docs[i], docs[j]

		as, bs := scoreOf(a), scoreOf(b)
		if as != bs {
			return as > bs
		}

		switch {
		case a.PublishDate == nil && b.PublishDate == nil:
			return false
		case a.PublishDate == nil:
			return false
		case b.PublishDate == nil:
			return true
		default:
			return a.PublishDate.After(*b.PublishDate)
		}
	})
}

// scoreOf treats a missing score as zero for ordering purposes.
func scoreOf(d document.Document) float64 {
	if d.Score == nil {
		return 0
	}
	return *d.Score
}
