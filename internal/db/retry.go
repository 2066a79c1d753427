package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/adamwilson22/Velaa-Backend/internal/models"
)

// Operation is a function that performs an action and returns an error if it fails.
type Operation func() error

// IsRetryable reports whether an error returned by an Operation should be retried.
type IsRetryable func(err error) bool

const (
	DefaultMaxRetries = 3
	duplicateKeyCode  = 11000
)

// Try executes an operation with default retry settings for duplicate key errors.
func Try(op Operation) error {
	return WithRetries(op, DefaultMaxRetries, IsMongoDuplicateKeyError)
}

// WithRetries runs op up to maxRetries+1 times, retrying only while
// isRetryable(err) holds. The delay between attempts grows linearly.
func WithRetries(op Operation, maxRetries int, isRetryable IsRetryable) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if attempt == maxRetries || !isRetryable(err) {
			return err
		}
		time.Sleep(time.Duration(50*(attempt+1)) * time.Millisecond)
	}
	return err
}

// IsMongoDuplicateKeyError checks if an error from MongoDB is a duplicate key error (code 11000).
func IsMongoDuplicateKeyError(err error) bool {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == duplicateKeyCode {
				return true
			}
		}
	}
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		for _, e := range bwe.WriteErrors {
			if e.Code == duplicateKeyCode {
				return true
			}
		}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == duplicateKeyCode {
		return true
	}
	return false
}

// IsMongoDuplicateIDError reports a duplicate key error raised by the _id index.
// Collisions on other unique indexes are not fixed by a new identifier.
func IsMongoDuplicateIDError(err error) bool {
	if !IsMongoDuplicateKeyError(err) {
		return false
	}
	return strings.Contains(err.Error(), "index: _id_")
}

// InsertOne inserts doc, generating a fresh SixID after each _id collision so
// that a random clash is retried instead of surfaced.
func InsertOne[T models.IBase](ctx context.Context, coll *mongo.Collection, doc T) (T, error) {
	attempt := 0
	err := WithRetries(func() error {
		if attempt == 0 {
			doc.GenIDIfEmpty()
		} else {
			doc.GenID()
		}
		attempt++
		_, err := coll.InsertOne(ctx, doc)
		return err
	}, DefaultMaxRetries, IsMongoDuplicateIDError)
	if err != nil {
		return doc, fmt.Errorf("insert into %s failed: %w", coll.Name(), err)
	}
	return doc, nil
}
