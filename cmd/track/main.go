// Command track subscribes a user to a product URL at a target price.
//
//	track -user u123 -url https://www.amazon.in/dp/B0XXXX -target 1999
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pricedrop/pricedrop-monitor/internal/config"
	"github.com/pricedrop/pricedrop-monitor/internal/models"
	"github.com/pricedrop/pricedrop-monitor/internal/monitor"
	"github.com/pricedrop/pricedrop-monitor/internal/storage"
)

func main() {
	userID := flag.String("user", "", "ID of the subscribing user")
	productURL := flag.String("url", "", "product page URL")
	target := flag.String("target", "", "alert when the price is at or below this amount")
	timeout := flag.Duration("timeout", 30*time.Second, "Firestore timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Critical error loading configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, err := storage.New(ctx, cfg.ProjectID)
	if err != nil {
		slog.Error("Critical error initializing Firestore client", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Tracking only touches the store.
	m := monitor.New(store, nil, nil, cfg)
	p, created, err := m.TrackProduct(ctx, models.TrackRequest{
		UserID:      *userID,
		URL:         *productURL,
		TargetPrice: *target,
	})
	if err != nil {
		slog.Error("Failed to track product", "error", err)
		os.Exit(1)
	}

	verb := "Subscribed to"
	if created {
		verb = "Now tracking"
	}
	fmt.Printf("%s %s (id %s, target %s, %d subscribers)\n", verb, p.ProductURL, p.ProductID, p.TargetPrice, len(p.UserIDs))
}
