package thesisdesk

import (
	"github.com/thesisdesk/thesisdesk/chapter"
	"github.com/thesisdesk/thesisdesk/earnings"
	"github.com/thesisdesk/thesisdesk/payment"
	"github.com/thesisdesk/thesisdesk/pricing"
	"github.com/thesisdesk/thesisdesk/types"
)

// Re-export common types for convenience so callers can stay in one package.

type (
	Money    = types.Money
	Entity   = types.Entity
	Chapter  = chapter.Chapter
	Payment  = payment.Payment
	Snapshot = pricing.Snapshot
	Summary  = earnings.Summary
)

// Re-export Money constructors
var (
	KES  = types.KES
	USD  = types.USD
	Zero = types.Zero
)
