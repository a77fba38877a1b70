package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/pricedrop/pricedrop-monitor/internal/batch"
	"github.com/pricedrop/pricedrop-monitor/internal/config"
	"github.com/pricedrop/pricedrop-monitor/internal/models"
	"github.com/pricedrop/pricedrop-monitor/internal/scraper"
	"github.com/pricedrop/pricedrop-monitor/internal/util"
	"github.com/pricedrop/pricedrop-monitor/internal/validator"
)

type Checker interface {
	CheckAll(ctx context.Context) error
}

type Monitor struct {
	store    ProductStore
	sender   AlertSender
	scraper  scraper.Scraper
	engine   *batch.Engine[models.Product]
	validate *validator.Validator
	now      func() time.Time

	runs singleflight.Group
}

func New(store ProductStore, sender AlertSender, s scraper.Scraper, cfg *config.Config) *Monitor {
	return &Monitor{
		store:    store,
		sender:   sender,
		scraper:  s,
		engine:   batch.New[models.Product](cfg.BatchSize),
		validate: validator.New(),
		now:      time.Now,
	}
}

// CheckAll re-checks every tracked product once. Calls made while a run is
// in progress join that run instead of starting another. The run ignores
// cancellation of ctx and always finishes.
func (m *Monitor) CheckAll(ctx context.Context) error {
	runCtx := context.WithoutCancel(ctx)
	_, err, shared := m.runs.Do("check-all", func() (any, error) {
		return nil, m.checkAll(runCtx)
	})
	if shared {
		slog.Debug("Price check call shared an in-flight run")
	}
	return err
}

func (m *Monitor) checkAll(ctx context.Context) error {
	runID := uuid.NewString()
	log := slog.With("run_id", runID)
	started := m.now()

	products, err := m.store.ListProducts(ctx)
	if err != nil {
		log.Error("Failed to load products", "error", err)
		return fmt.Errorf("failed to load products: %w", err)
	}
	log.Info("Starting price check", "products", len(products), "batch_size", m.engine.Size())

	stats := m.engine.Run(ctx, products, func(ctx context.Context, p models.Product) error {
		return m.checkOne(ctx, log, p)
	})

	finished := m.now()
	log.Info("Finished price check",
		"products", stats.Items,
		"batches", stats.Batches,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"duration", finished.Sub(started).String())

	state := models.RunState{
		RunID:      runID,
		StartedAt:  started,
		FinishedAt: finished,
		Products:   stats.Items,
		Succeeded:  stats.Succeeded,
		Failed:     stats.Failed,
	}
	if err := m.store.SaveRunState(ctx, state); err != nil {
		log.Warn("Failed to save run state", "error", err)
	}
	return nil
}

// checkOne scrapes one product, records its price and alerts subscribers
// when the price is at or below target. Only scrape and price parsing
// failures fail the item.
func (m *Monitor) checkOne(ctx context.Context, log *slog.Logger, p models.Product) error {
	log = log.With("product_id", p.ProductID, "url", p.ProductURL)

	if err := m.validate.ValidateVar(p.ProductURL, "required,http_url"); err != nil {
		log.Warn("Skipping product with invalid URL", "error", err)
		return fmt.Errorf("product %s: %w", p.ProductID, err)
	}

	result, err := m.scraper.Scrape(ctx, p.ProductURL)
	if err != nil {
		log.Warn("Failed to scrape product", "error", err)
		return fmt.Errorf("scrape product %s: %w", p.ProductID, err)
	}

	amount, err := util.ParsePrice(result.RawPrice)
	if err != nil {
		log.Warn("Failed to parse scraped price", "raw_price", result.RawPrice, "error", err)
		return fmt.Errorf("parse price of product %s: %w", p.ProductID, err)
	}
	display, err := util.FormatINR(result.RawPrice)
	if err != nil {
		display = util.FormatINRAmount(amount)
	}

	title := result.Title
	if title == "" {
		title = p.ProductURL
	}
	capturedAt := m.now().UTC()

	history := models.PriceHistory{
		ProductID:    p.ProductID,
		ProductName:  title,
		ProductURL:   p.ProductURL,
		ProductPrice: display,
		Amount:       amount,
		CaptureTime:  capturedAt,
		UserIDs:      slices.Clone(p.UserIDs),
	}
	if len(p.UserIDs) > 0 {
		history.UserID = p.UserIDs[0]
	}
	if err := m.store.InsertHistory(ctx, history); err != nil {
		log.Error("Failed to record price history", "error", err)
	}

	target, err := util.ParsePrice(p.TargetPrice)
	if err != nil {
		log.Warn("Invalid target price, skipping alert", "target_price", p.TargetPrice, "error", err)
		return nil
	}
	if amount > target {
		log.Debug("Price above target", "price", amount, "target", target)
		return nil
	}

	log.Info("Price at or below target", "price", amount, "target", target, "subscribers", len(p.UserIDs))
	alert := models.Alert{
		ProductID:   p.ProductID,
		Title:       title,
		URL:         p.ProductURL,
		Price:       display,
		TargetPrice: util.FormatINRAmount(target),
		Amount:      amount,
		CapturedAt:  capturedAt,
	}
	for _, userID := range p.UserIDs {
		m.notify(ctx, log, userID, alert)
	}
	return nil
}

func (m *Monitor) notify(ctx context.Context, log *slog.Logger, userID string, alert models.Alert) {
	log = log.With("user_id", userID)

	user, err := m.store.GetUser(ctx, userID)
	if err != nil {
		log.Warn("Failed to load subscriber", "error", err)
		return
	}
	if err := m.sender.Send(ctx, *user, alert); err != nil {
		log.Error("Failed to send price alert", "error", err)
	}
}

// TrackProduct subscribes a user to a product URL at a target price. The
// URL is normalized so equivalent links share one product. An existing
// product keeps its target price; the bool reports whether it was created.
func (m *Monitor) TrackProduct(ctx context.Context, req models.TrackRequest) (*models.Product, bool, error) {
	if err := m.validate.ValidateStruct(req); err != nil {
		return nil, false, err
	}

	canonical, err := util.NormalizeURL(req.URL)
	if err != nil {
		return nil, false, err
	}
	target, err := util.ParsePrice(req.TargetPrice)
	if err != nil {
		return nil, false, fmt.Errorf("invalid target price: %w", err)
	}

	p := models.Product{
		ProductID:   util.DeriveProductID(req.URL),
		ProductURL:  canonical,
		UserIDs:     []string{req.UserID},
		TargetPrice: strconv.FormatInt(target, 10),
		CreatedAt:   m.now().UTC(),
	}
	if err := m.validate.ValidateStruct(p); err != nil {
		return nil, false, err
	}

	stored, created, err := m.store.UpsertProduct(ctx, p, req.UserID)
	if err != nil {
		return nil, false, err
	}
	slog.Info("Tracking product", "product_id", stored.ProductID, "user_id", req.UserID, "created", created, "target_price", stored.TargetPrice)
	return stored, created, nil
}
