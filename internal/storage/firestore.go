package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pricedrop/pricedrop-monitor/internal/models"
)

const (
	productsCollection = "products"
	historyCollection  = "history"
	usersCollection    = "users"
)

// ErrUserNotFound is returned by GetUser when no user document matches.
var ErrUserNotFound = errors.New("user not found")

type Client struct {
	client *firestore.Client
}

func New(ctx context.Context, projectID string) (*Client, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore.NewClient: %w", err)
	}
	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// ListProducts returns every tracked product. Documents that cannot be
// decoded are logged and skipped so one bad record does not block the run.
func (c *Client) ListProducts(ctx context.Context) ([]models.Product, error) {
	iter := c.client.Collection(productsCollection).Documents(ctx)
	defer iter.Stop()

	var products []models.Product
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate products: %w", err)
		}

		var p models.Product
		if err := doc.DataTo(&p); err != nil {
			slog.Warn("Skipping undecodable product document", "id", doc.Ref.ID, "error", err)
			continue
		}
		normalizeProduct(&p, doc.Ref.ID)
		products = append(products, p)
	}
	return products, nil
}

// InsertHistory appends one price observation with an auto-generated ID.
func (c *Client) InsertHistory(ctx context.Context, h models.PriceHistory) error {
	if _, _, err := c.client.Collection(historyCollection).Add(ctx, h); err != nil {
		return fmt.Errorf("failed to insert history for product %s: %w", h.ProductID, err)
	}
	return nil
}

// GetUser looks a user up by document ID, then by the userId field for
// documents created with auto IDs.
func (c *Client) GetUser(ctx context.Context, userID string) (*models.User, error) {
	if userID == "" {
		return nil, ErrUserNotFound
	}

	doc, err := c.client.Collection(usersCollection).Doc(userID).Get(ctx)
	switch {
	case err == nil && doc.Exists():
		return decodeUser(doc)
	case err != nil && status.Code(err) != codes.NotFound:
		return nil, fmt.Errorf("failed to get user %s: %w", userID, err)
	}

	iter := c.client.Collection(usersCollection).Where("userId", "==", userID).Limit(1).Documents(ctx)
	defer iter.Stop()
	doc, err = iter.Next()
	if err == iterator.Done {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user %s: %w", userID, err)
	}
	return decodeUser(doc)
}

func decodeUser(doc *firestore.DocumentSnapshot) (*models.User, error) {
	var u models.User
	if err := doc.DataTo(&u); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user data: %w", err)
	}
	if u.UserID == "" {
		u.UserID = doc.Ref.ID
	}
	return &u, nil
}

// UpsertProduct inserts p when no product with its ID exists, otherwise adds
// userID to the existing product's subscribers. The existing target price is
// kept. It returns the stored product and whether it was created.
func (c *Client) UpsertProduct(ctx context.Context, p models.Product, userID string) (*models.Product, bool, error) {
	docRef := c.client.Collection(productsCollection).Doc(p.ProductID)

	var stored models.Product
	var created bool
	err := c.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		stored, created = models.Product{}, false
		doc, err := tx.Get(docRef)
		if err != nil {
			if status.Code(err) != codes.NotFound {
				return err
			}
			stored = p
			stored.UserIDs = slices.Clone(p.UserIDs)
			if !stored.HasSubscriber(userID) {
				stored.UserIDs = append(stored.UserIDs, userID)
			}
			created = true
			return tx.Create(docRef, stored)
		}

		if err := doc.DataTo(&stored); err != nil {
			return fmt.Errorf("failed to unmarshal product data: %w", err)
		}
		normalizeProduct(&stored, doc.Ref.ID)
		if stored.HasSubscriber(userID) {
			return nil
		}
		stored.UserIDs = append(stored.UserIDs, userID)
		return tx.Update(docRef, []firestore.Update{
			{Path: "userIds", Value: firestore.ArrayUnion(userID)},
		})
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert product %s: %w", p.ProductID, err)
	}
	return &stored, created, nil
}

// normalizeProduct fills the ID from the document key and drops duplicate or
// empty subscriber IDs.
func normalizeProduct(p *models.Product, docID string) {
	if p.ProductID == "" {
		p.ProductID = docID
	}
	seen := make(map[string]struct{}, len(p.UserIDs))
	ids := p.UserIDs[:0]
	for _, id := range p.UserIDs {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	p.UserIDs = ids
}
