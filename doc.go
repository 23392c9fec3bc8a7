// Package thesisdesk is the back end of a thesis-writing service: students
// order chapters, pay for them, and writers earn a share of the work they
// complete.
//
// Thesisdesk is a library. The HTTP adapter in package api and the thesisd
// daemon are thin layers over the Desk engine defined here.
//
// # Quick Start
//
//	import (
//	    "github.com/thesisdesk/thesisdesk"
//	    "github.com/thesisdesk/thesisdesk/store/memory"
//	)
//
//	desk := thesisdesk.New(memory.New(),
//	    thesisdesk.WithPricePerPage(thesisdesk.KES(40000)),
//	)
//	if err := desk.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer desk.Stop()
//
// # Pricing
//
// A chapter's target word count is turned into pages (250 words each) and
// multiplied by the per-page rate. Level, work type and urgency each apply
// a multiplier and the product is rounded to the minor currency unit:
//
//	snap, err := desk.Quote(ctx, pricing.Request{
//	    TargetWordCount: 2000,
//	    Level:           pricing.LevelPhD,
//	    WorkType:        pricing.WorkStatistics,
//	    Urgency:         pricing.UrgencyUrgent,
//	})
//
// # Payments
//
// Payments move through pending, processing, completed, failed and
// refunded. Completing a payment marks its chapter paid; failing, refunding
// or deleting it clears the link. The payment and chapter are always written
// together, and a concurrent change surfaces as ErrConflict:
//
//	p, err := desk.InitiatePayment(ctx, ownerID, chapterID, payment.MethodMpesa)
//	res, err := desk.TransitionPayment(ctx, thesisdesk.TransitionRequest{
//	    PaymentID: p.ID,
//	    OwnerID:   ownerID,
//	    Status:    payment.StatusCompleted,
//	})
//
// # Earnings
//
// Writers earn 70% of each completed chapter's quoted cost:
//
//	summary, err := desk.EarningsSummary(ctx, writerID, earnings.Range{})
//
// # Errors
//
// Errors fall into four groups. IsValidation reports bad input, IsNotFound
// covers missing records and records the caller does not own, IsRejected
// covers domain rule violations, and anything else is unexpected.
//
// # TypeID
//
// All entities use TypeID identifiers:
//
//	chap_01h2xcejqtf2nbrexx3vqjhp41  // Chapter
//	pay_01h455vb4pex5vsknk084sn02q   // Payment
package thesisdesk
