package property

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/property-map/internal/cadastre"
	"github.com/sells-group/property-map/internal/record"
	"github.com/sells-group/property-map/internal/store"
)

// --- Resolver Mock ---

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context, pointID string) (*cadastre.Aggregate, error) {
	args := m.Called(ctx, pointID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cadastre.Aggregate), args.Error(1)
}

// --- Creator Mock ---

type mockCreator struct {
	mock.Mock
}

func (m *mockCreator) CreateProperty(ctx context.Context, rec map[string]any) (string, error) {
	args := m.Called(ctx, rec)
	return args.String(0), args.Error(1)
}

func TestService_Submit_SendsBuiltRecord(t *testing.T) {
	agg := resolver()["P1"]

	res := new(mockResolver)
	res.On("Resolve", mock.Anything, "P1").Return(agg, nil).Once()

	crm := new(mockCreator)
	crm.On("CreateProperty", mock.Anything, mock.MatchedBy(func(rec map[string]any) bool {
		return rec[record.FieldName] == "Meir 24" &&
			rec[record.FieldPointID] == "P1" &&
			rec[record.FieldPrimary] == ";office;" &&
			rec[record.FieldSub] == ";office_grade_a;" &&
			rec[record.FieldBuildingID] == "B7"
	})).Return("a0P000000000009", nil).Once()

	svc := NewService(res, record.DefaultCatalog(), crm)
	req := validRequest()
	req.PointID = "  P1 "
	sub, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, store.StatusCreated, sub.Status)
	assert.Equal(t, "a0P000000000009", sub.CRMID)
	res.AssertExpectations(t)
	crm.AssertExpectations(t)
}

func TestService_Preview_NeverCallsCRM(t *testing.T) {
	res := new(mockResolver)
	res.On("Resolve", mock.Anything, "P1").Return(resolver()["P1"], nil)
	crm := new(mockCreator)

	svc := NewService(res, record.DefaultCatalog(), crm)
	p, err := svc.Preview(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, "Meir 24", p.Result.Name)

	crm.AssertNotCalled(t, "CreateProperty", mock.Anything, mock.Anything)
}

func TestService_Preview_UnknownCategorySkipsLookup(t *testing.T) {
	res := new(mockResolver)
	svc := NewService(res, record.DefaultCatalog(), nil)

	_, err := svc.Preview(context.Background(), Request{PointID: "P1", Primary: []string{"spaceport"}})
	require.Error(t, err)
	res.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
}
