// Package checkpoint defines the ingest checkpoint record and the store
// contract used to resume the zip rotation across runs.
package checkpoint

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/yelp-ingest/pkg/zipqueue"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

// DefaultOp is the operation name recorded by the restaurant ingest.
const DefaultOp = "yelp-restaurant-ingest"

// Checkpoint records the zip codes searched by one run.
type Checkpoint struct {
	Date     time.Time `json:"date" bson:"date"`
	Searches Zips      `json:"searches" bson:"searches"`
	Op       string    `json:"op" bson:"op"`
}

// Zips is the list of zip codes searched by a run. Older checkpoints stored
// them as integers (1907 for "01907"); decoding accepts both forms.
type Zips []string

// UnmarshalBSONValue decodes an array of string or integer zip codes.
func (z *Zips) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	switch t {
	case bsontype.Null, bsontype.Undefined:
		*z = nil
		return nil
	case bsontype.Array:
	default:
		return fmt.Errorf("decode searches: unexpected BSON type %s", t)
	}

	values, err := bsoncore.Array(data).Values()
	if err != nil {
		return fmt.Errorf("decode searches: %w", err)
	}

	out := make(Zips, 0, len(values))
	for i, v := range values {
		switch v.Type {
		case bsontype.String:
			out = append(out, v.StringValue())
		case bsontype.Int32:
			out = append(out, zipqueue.FormatZip(int(v.Int32())))
		case bsontype.Int64:
			out = append(out, zipqueue.FormatZip(int(v.Int64())))
		default:
			return fmt.Errorf("decode searches.%d: unexpected BSON type %s", i, v.Type)
		}
	}
	*z = out
	return nil
}

// New returns a checkpoint for op stamped with now.
func New(op string, searches []string, now time.Time) Checkpoint {
	s := make(Zips, len(searches))
	copy(s, searches)
	return Checkpoint{Date: now, Searches: s, Op: op}
}

// IsEmpty reports whether this is the zero baseline returned before any run
// was recorded.
func (c Checkpoint) IsEmpty() bool {
	return c.Op == "" && c.Date.IsZero() && len(c.Searches) == 0
}

// LastSearch returns the final zip searched by the run.
func (c Checkpoint) LastSearch() (string, bool) {
	if len(c.Searches) == 0 {
		return "", false
	}
	return c.Searches[len(c.Searches)-1], true
}

// Store persists checkpoints. Implementations are append-only.
type Store interface {
	// Last returns the most recent checkpoint for op by date, or an empty
	// Checkpoint when none exists.
	Last(ctx context.Context, op string) (Checkpoint, error)

	// Save appends a checkpoint.
	Save(ctx context.Context, cp Checkpoint) error
}
