package salesforce

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }
func str(s string) *string    { return &s }

func record(id, name, class string) BuildingRecord {
	return BuildingRecord{
		ID: id, Name: name, City: "Antwerpen", CadastralRef: "11002A0123",
		Longitude: f64(4.40), Latitude: f64(51.21), AssetClass: class,
	}
}

// classQuerier answers building queries with the records registered for the
// asset class named in the SOQL.
func classQuerier(byClass map[string][]BuildingRecord, fail map[string]error) *mockClient {
	var mu sync.Mutex
	return &mockClient{
		queryFn: func(_ context.Context, soql string, out any) error {
			mu.Lock()
			defer mu.Unlock()
			for class, err := range fail {
				if strings.Contains(soql, "'"+class+"'") {
					return err
				}
			}
			for class, records := range byClass {
				if strings.Contains(soql, "'"+class+"'") {
					*out.(*[]BuildingRecord) = records
					return nil
				}
			}
			return nil
		},
	}
}

func TestBuildingQuery(t *testing.T) {
	tests := []struct {
		name   string
		object string
		class  string
		want   []string
	}{
		{"default object", "", "Office", []string{"FROM Building__c", "Asset_Class__c = 'Office'", "Cadastral_Reference__c"}},
		{"custom object", "Asset__c", "Retail", []string{"FROM Asset__c", "'Retail'"}},
		{"escapes quotes", "", "Owner's", []string{`'Owner\'s'`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildingQuery(tt.object, tt.class)
			for _, w := range tt.want {
				assert.Contains(t, got, w)
			}
		})
	}
}

func TestBuildingRecord_Building(t *testing.T) {
	r := record("a0B1", "Meir Tower", "Office")
	r.Surface = f64(1200)
	r.Tenants = str("Acme NV")

	b, ok := r.Building()
	require.True(t, ok)
	assert.Equal(t, "a0B1", b.ID)
	assert.Equal(t, 4.40, b.Longitude)
	assert.Equal(t, 1200.0, *b.Surface)
	assert.Equal(t, "Acme NV", b.TenantsText())
	assert.Nil(t, b.Owner)
	assert.Equal(t, "Office", b.Extra["asset_class"])

	r.Latitude = nil
	_, ok = r.Building()
	assert.False(t, ok)
}

func TestFetchBuildings_OrderAndDedup(t *testing.T) {
	c := classQuerier(map[string][]BuildingRecord{
		"Office":     {record("1", "A", "Office"), record("2", "B", "Office")},
		"Logistics":  {record("3", "C", "Logistics"), record("1", "A", "Logistics")},
		"Retail":     {},
		"Industrial": {{ID: "4", Name: "no coords"}},
	}, nil)

	got, err := FetchBuildings(context.Background(), c, "", []string{"Office", "Logistics", "Retail", "Industrial"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "2", got[1].ID)
	assert.Equal(t, "3", got[2].ID)
}

func TestFetchBuildings_QueryFailure(t *testing.T) {
	c := classQuerier(
		map[string][]BuildingRecord{"Office": {record("1", "A", "Office")}},
		map[string]error{"Retail": errors.New("INVALID_SESSION_ID")},
	)

	_, err := FetchBuildings(context.Background(), c, "", []string{"Office", "Retail"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "asset class Retail")
}

func TestFetchBuildings_NoAssetClasses(t *testing.T) {
	_, err := FetchBuildings(context.Background(), &mockClient{}, "", nil)
	assert.Error(t, err)
}

func TestEscapeSoql(t *testing.T) {
	assert.Equal(t, "plain", escapeSoql("plain"))
	assert.Equal(t, `it\'s`, escapeSoql("it's"))
}
