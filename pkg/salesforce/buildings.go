package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/property-map/internal/model"
)

// DefaultBuildingObject is the SObject holding the building portfolio.
const DefaultBuildingObject = "Building__c"

// fetchConcurrency bounds the number of asset-class queries in flight.
const fetchConcurrency = 4

// BuildingRecord is one row of the building SObject.
type BuildingRecord struct {
	ID           string   `json:"Id" salesforce:"Id"`
	Name         string   `json:"Name" salesforce:"Name"`
	Street       string   `json:"Street__c" salesforce:"Street__c"`
	HouseNumber  string   `json:"House_Number__c" salesforce:"House_Number__c"`
	PostalCode   string   `json:"Postal_Code__c" salesforce:"Postal_Code__c"`
	City         string   `json:"City__c" salesforce:"City__c"`
	CadastralRef string   `json:"Cadastral_Reference__c" salesforce:"Cadastral_Reference__c"`
	Longitude    *float64 `json:"Longitude__c" salesforce:"Longitude__c"`
	Latitude     *float64 `json:"Latitude__c" salesforce:"Latitude__c"`
	Surface      *float64 `json:"Total_Surface__c" salesforce:"Total_Surface__c"`
	Tenants      *string  `json:"Tenants__c" salesforce:"Tenants__c"`
	Owner        *string  `json:"Owner__c" salesforce:"Owner__c"`
	AssetClass   string   `json:"Asset_Class__c" salesforce:"Asset_Class__c"`
}

// buildingFields are the SOQL fields selected for building queries.
var buildingFields = []string{
	"Id", "Name", "Street__c", "House_Number__c", "Postal_Code__c", "City__c",
	"Cadastral_Reference__c", "Longitude__c", "Latitude__c", "Total_Surface__c",
	"Tenants__c", "Owner__c", "Asset_Class__c",
}

// Building converts the record to the domain model. ok is false when the
// record has no coordinates and cannot be placed on the map.
func (r BuildingRecord) Building() (model.Building, bool) {
	if r.Longitude == nil || r.Latitude == nil {
		return model.Building{}, false
	}
	b := model.Building{
		ID:           r.ID,
		Name:         r.Name,
		Street:       r.Street,
		HouseNumber:  r.HouseNumber,
		PostalCode:   r.PostalCode,
		City:         r.City,
		CadastralRef: r.CadastralRef,
		Longitude:    *r.Longitude,
		Latitude:     *r.Latitude,
		Surface:      r.Surface,
		Tenants:      r.Tenants,
		Owner:        r.Owner,
	}
	if r.AssetClass != "" {
		b.Extra = map[string]any{"asset_class": r.AssetClass}
	}
	return b, true
}

// BuildingQuery returns the SOQL selecting every building of one asset class.
func BuildingQuery(object, assetClass string) string {
	if object == "" {
		object = DefaultBuildingObject
	}
	return fmt.Sprintf(
		"SELECT %s FROM %s WHERE Asset_Class__c = '%s' ORDER BY Name",
		strings.Join(buildingFields, ", "),
		object,
		escapeSoql(assetClass),
	)
}

// FetchBuildings loads the buildings of every asset class, one query per
// class. Results keep the order of assetClasses; a building returned for more
// than one class is kept once. Any failed query fails the whole fetch.
func FetchBuildings(ctx context.Context, c Client, object string, assetClasses []string) ([]model.Building, error) {
	if len(assetClasses) == 0 {
		return nil, eris.New("sf: fetch buildings: no asset classes configured")
	}

	perClass := make([][]BuildingRecord, len(assetClasses))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, class := range assetClasses {
		g.Go(func() error {
			var records []BuildingRecord
			if err := c.Query(gCtx, BuildingQuery(object, class), &records); err != nil {
				return eris.Wrapf(err, "sf: fetch buildings for asset class %s", class)
			}
			perClass[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var (
		out     []model.Building
		skipped int
	)
	for _, records := range perClass {
		for _, r := range records {
			if seen[r.ID] {
				continue
			}
			seen[r.ID] = true
			b, ok := r.Building()
			if !ok {
				skipped++
				continue
			}
			out = append(out, b)
		}
	}

	zap.L().Info("sf: fetched buildings",
		zap.Int("buildings", len(out)),
		zap.Int("without_coordinates", skipped),
		zap.Strings("asset_classes", assetClasses),
	)
	return out, nil
}

func escapeSoql(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
