package models

import (
	"slices"
	"time"
)

// Product is a tracked URL and the users subscribed to it.
// The Firestore document ID is the ProductID.
type Product struct {
	ProductID   string    `firestore:"productId" validate:"required,len=64,hexadecimal"`
	ProductURL  string    `firestore:"productUrl" validate:"required,url"`
	UserIDs     []string  `firestore:"userIds" validate:"dive,required"`
	TargetPrice string    `firestore:"targetPrice" validate:"required"`
	CreatedAt   time.Time `firestore:"createdAt,omitempty"`
}

// HasSubscriber reports whether userID is already in the subscriber set.
func (p Product) HasSubscriber(userID string) bool {
	return slices.Contains(p.UserIDs, userID)
}

// TrackRequest asks for a user to be subscribed to a product URL.
type TrackRequest struct {
	UserID      string `validate:"required"`
	URL         string `validate:"required,http_url"`
	TargetPrice string `validate:"required"`
}

// PriceHistory is one immutable observation of a product's price.
type PriceHistory struct {
	ProductID    string    `firestore:"productId"`
	ProductName  string    `firestore:"productName"`
	ProductURL   string    `firestore:"productUrl"`
	ProductPrice string    `firestore:"productPrice"` // display formatted, e.g. ₹1,234.56
	Amount       int64     `firestore:"amount"`
	CaptureTime  time.Time `firestore:"captureTime"`
	UserID       string    `firestore:"userId"`
	UserIDs      []string  `firestore:"userIds"`
}

// ScrapeResult is what the scraper extracted from a product page.
type ScrapeResult struct {
	URL      string
	Title    string
	RawPrice string
	Source   string // selector or "json-ld" that produced RawPrice
}

// Alert is the content of a price-drop notification.
type Alert struct {
	ProductID   string
	Title       string
	URL         string
	Price       string
	TargetPrice string
	Amount      int64
	CapturedAt  time.Time
}

// RunState summarises the most recent price-check run.
type RunState struct {
	RunID      string    `firestore:"runId"`
	StartedAt  time.Time `firestore:"startedAt"`
	FinishedAt time.Time `firestore:"finishedAt"`
	Products   int       `firestore:"products"`
	Succeeded  int       `firestore:"succeeded"`
	Failed     int       `firestore:"failed"`
}
