package access

import (
	"context"

	"github.com/platinummonkey/portalgate/pkg/portal"
)

// Filter prunes block trees down to the blocks a principal may see
type Filter struct {
	eval *Evaluator
}

// NewFilter creates a filter backed by eval
func NewFilter(eval *Evaluator) *Filter {
	return &Filter{eval: eval}
}

// Filter returns a new tree holding only the visible blocks of blocks.
// A hidden block is dropped with its whole subtree, which is never
// visited. A visible block is kept even when all of its children are
// pruned. The input is not modified.
func (f *Filter) Filter(ctx context.Context, principal *portal.Principal, blocks []portal.Block) []portal.Block {
	out := make([]portal.Block, 0, len(blocks))
	for _, b := range blocks {
		if !f.eval.Visible(ctx, principal, b.Guards) {
			continue
		}
		kept := b
		kept.Children = f.Filter(ctx, principal, b.Children)
		out = append(out, kept)
	}
	return out
}
