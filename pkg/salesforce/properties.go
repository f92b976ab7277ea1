package salesforce

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultPropertyObject is the SObject new property records are inserted into.
const DefaultPropertyObject = "Property__c"

// CreateProperty inserts record into object (DefaultPropertyObject when
// empty) and returns the generated record id.
func CreateProperty(ctx context.Context, c Client, object string, record map[string]any) (string, error) {
	if object == "" {
		object = DefaultPropertyObject
	}
	if len(record) == 0 {
		return "", eris.Errorf("sf: create %s: empty record", object)
	}

	id, err := c.InsertOne(ctx, object, record)
	if err != nil {
		return "", eris.Wrapf(err, "sf: create %s", object)
	}
	if id == "" {
		return "", eris.Errorf("sf: create %s: no id returned", object)
	}

	zap.L().Info("sf: created property",
		zap.String("object", object),
		zap.String("id", id),
		zap.Int("fields", len(record)),
	)
	return id, nil
}
