package salesforce

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateProperty(t *testing.T) {
	var gotObject string
	var gotRecord map[string]any
	c := &mockClient{
		insertOneFn: func(_ context.Context, object string, rec map[string]any) (string, error) {
			gotObject, gotRecord = object, rec
			return "a0P42", nil
		},
	}

	id, err := CreateProperty(context.Background(), c, "", map[string]any{"Name": "Meir 24"})
	require.NoError(t, err)
	assert.Equal(t, "a0P42", id)
	assert.Equal(t, DefaultPropertyObject, gotObject)
	assert.Equal(t, "Meir 24", gotRecord["Name"])
}

func TestCreateProperty_Errors(t *testing.T) {
	tests := []struct {
		name    string
		client  *mockClient
		record  map[string]any
		wantErr string
	}{
		{
			name:    "empty record",
			client:  &mockClient{},
			record:  map[string]any{},
			wantErr: "empty record",
		},
		{
			name: "insert fails",
			client: &mockClient{insertOneFn: func(context.Context, string, map[string]any) (string, error) {
				return "", errors.New("REQUIRED_FIELD_MISSING")
			}},
			record:  map[string]any{"Name": "x"},
			wantErr: "REQUIRED_FIELD_MISSING",
		},
		{
			name: "no id returned",
			client: &mockClient{insertOneFn: func(context.Context, string, map[string]any) (string, error) {
				return "", nil
			}},
			record:  map[string]any{"Name": "x"},
			wantErr: "no id returned",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CreateProperty(context.Background(), tt.client, "Custom__c", tt.record)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Contains(t, err.Error(), "Custom__c")
		})
	}
}
