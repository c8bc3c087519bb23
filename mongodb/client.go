package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/v2/mongo/otelmongo"
)

const (
	// LoginSessionsCollection holds ephemeral QR login sessions.
	LoginSessionsCollection = "login_sessions"
	// UsersCollection holds user accounts supplied by the identity collaborator.
	UsersCollection = "user_accounts"
)

// Client bundles a connected mongo client with the database handle the
// repositories operate on. It is created once at startup and injected,
// never reached for as an ambient singleton.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect establishes the MongoDB connection and verifies it with a ping.
func Connect(ctx context.Context, uri, dbName string) (*Client, error) {
	log.Info().Str("db", dbName).Msg("connecting to MongoDB")

	opts := options.Client().ApplyURI(uri)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetMonitor(otelmongo.NewMonitor())

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	return &Client{client: client, db: client.Database(dbName)}, nil
}

// Database returns the database handle.
func (c *Client) Database() *mongo.Database {
	return c.db
}

// Ping verifies the connection, used by health checks.
func (c *Client) Ping(ctx context.Context) error {
	if c.client == nil {
		return errors.New("mongodb client is not connected")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return c.client.Ping(pingCtx, readpref.Primary())
}

// Close disconnects the client. Called on application shutdown.
func (c *Client) Close(ctx context.Context) {
	if c.client == nil {
		return
	}
	if err := c.client.Disconnect(ctx); err != nil {
		log.Error().Err(err).Msg("error closing MongoDB connection")
	}
}
