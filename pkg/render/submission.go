package render

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/platinummonkey/portalgate/pkg/pages"
	"github.com/platinummonkey/portalgate/pkg/portal"
)

// SubmissionResult is the outcome of a guest submission check
type SubmissionResult struct {
	Valid   bool          `json:"valid"`
	Reason  portal.Reason `json:"reason,omitempty"`
	ResetAt time.Time     `json:"-"`
}

// ValidateGuestSubmission checks whether an anonymous visitor may submit to
// pageID. Checks run in order: guest rate limit (shared with page renders),
// email shape, then that the page is published and public.
func (p *Pipeline) ValidateGuestSubmission(ctx context.Context, pageID, email, ip string) (SubmissionResult, error) {
	if ip != "" {
		if result, limited := p.checkGuest(ctx, ip); limited {
			return SubmissionResult{Reason: portal.ReasonRateLimited, ResetAt: result.ResetAt}, nil
		}
	}

	if !ValidEmail(email) {
		return SubmissionResult{Reason: portal.ReasonInvalidEmail}, nil
	}

	page, err := p.pages.FindByID(ctx, pageID)
	if errors.Is(err, pages.ErrNotFound) {
		return SubmissionResult{Reason: portal.ReasonNotFound}, nil
	}
	if err != nil {
		return SubmissionResult{}, fmt.Errorf("failed to load page %s: %w", pageID, err)
	}

	if !page.IsPublished() || !page.IsPublic {
		return SubmissionResult{Reason: portal.ReasonNotPublic}, nil
	}

	return SubmissionResult{Valid: true}, nil
}

// ValidEmail reports whether s is a bare address such as user@example.com.
// Display names and angle brackets are rejected.
func ValidEmail(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 254 {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || addr.Name != "" {
		return false
	}
	at := strings.LastIndex(s, "@")
	return at > 0 && strings.Contains(s[at+1:], ".")
}
