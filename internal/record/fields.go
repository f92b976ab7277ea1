package record

import (
	"golang.org/x/text/message"

	"github.com/sells-group/property-map/internal/cadastre"
	"github.com/sells-group/property-map/internal/model"
)

// Section is one part of the aggregate a field is read from.
type Section string

const (
	SectionPoint     Section = "Address point"
	SectionBuilding  Section = "Building"
	SectionParcel    Section = "Parcel"
	SectionSubmarket Section = "Submarket"
)

var sectionOrder = []Section{SectionPoint, SectionBuilding, SectionParcel, SectionSubmarket}

// CRM field names written by the builder.
const (
	FieldName         = "Name"
	FieldPointID      = "Cadastral_Point_Id__c"
	FieldStreet       = "Street__c"
	FieldHouseNumber  = "House_Number__c"
	FieldPostalCode   = "Postal_Code__c"
	FieldCity         = "City__c"
	FieldLongitude    = "Longitude__c"
	FieldLatitude     = "Latitude__c"
	FieldBuildingID   = "Building_Id__c"
	FieldBuildingType = "Building_Type__c"
	FieldBuildingArea = "Building_Area__c"
	FieldFloors       = "Floors__c"
	FieldParcelID     = "Parcel_Id__c"
	FieldParcelArea   = "Parcel_Area__c"
	FieldSubmarket    = "Submarket__c"
	FieldMarket       = "Market__c"
	FieldPrimary      = "Primary_Category__c"
	FieldSub          = "Sub_Category__c"
)

// Attribute key candidates, in priority order.
var (
	streetKeys      = []string{"street_nl", "street_fr", "street_de", "street"}
	houseNumberKeys = []string{"number", "housenumber"}
	cityKeys        = []string{"municipality_nl", "municipality_fr", "municipality", "city"}
)

type kind int

const (
	kindText kind = iota
	kindNumber
)

// formatter renders a resolved value for the summary.
type formatter func(p *message.Printer, v any) string

// field is one row of the field table: where a value comes from, the CRM
// field it fills (empty for summary-only rows) and how it reads in the
// summary.
type field struct {
	section Section
	keys    []string
	kind    kind
	crm     string
	label   string
	format  formatter
}

var fields = []field{
	{section: SectionPoint, keys: streetKeys, crm: FieldStreet, label: "Street", format: asText},
	{section: SectionPoint, keys: houseNumberKeys, crm: FieldHouseNumber, label: "House number", format: asText},
	{section: SectionPoint, keys: []string{"box", "box_number"}, label: "Box", format: asText},
	{section: SectionPoint, keys: []string{"postcode", "postal_code", "zip"}, crm: FieldPostalCode, label: "Postal code", format: asText},
	{section: SectionPoint, keys: cityKeys, crm: FieldCity, label: "Municipality", format: asText},
	{section: SectionPoint, keys: []string{model.AttrLongitude}, kind: kindNumber, crm: FieldLongitude, label: "Longitude", format: asCoordinate},
	{section: SectionPoint, keys: []string{model.AttrLatitude}, kind: kindNumber, crm: FieldLatitude, label: "Latitude", format: asCoordinate},

	{section: SectionBuilding, keys: []string{"id", "building_id"}, crm: FieldBuildingID, label: "Building id", format: asText},
	{section: SectionBuilding, keys: []string{"type", "function", "usage"}, crm: FieldBuildingType, label: "Type", format: asText},
	{section: SectionBuilding, keys: []string{"area", "surface", "shape_area"}, kind: kindNumber, crm: FieldBuildingArea, label: "Footprint", format: asArea},
	{section: SectionBuilding, keys: []string{"floors", "storeys"}, kind: kindNumber, crm: FieldFloors, label: "Floors", format: asCount},
	{section: SectionBuilding, keys: []string{"status"}, label: "Status", format: asText},

	{section: SectionParcel, keys: []string{"capakey", "parcel_id", "id"}, crm: FieldParcelID, label: "Parcel", format: asText},
	{section: SectionParcel, keys: []string{"area", "shape_area"}, kind: kindNumber, crm: FieldParcelArea, label: "Area", format: asArea},
	{section: SectionParcel, keys: []string{"division", "section"}, label: "Division", format: asText},

	{section: SectionSubmarket, keys: []string{"name", "submarket", "label"}, crm: FieldSubmarket, label: "Name", format: asText},
	{section: SectionSubmarket, keys: []string{"market", "region"}, crm: FieldMarket, label: "Market", format: asText},
	{section: SectionSubmarket, keys: []string{"code"}, label: "Code", format: asText},
}

// sectionAttrs returns the record a section reads from: the point, the
// authoritative first building, the parcel or the submarket.
func sectionAttrs(agg *cadastre.Aggregate, s Section) model.Attributes {
	switch s {
	case SectionPoint:
		return agg.Point
	case SectionBuilding:
		return agg.FirstBuilding()
	case SectionParcel:
		return agg.Parcel
	case SectionSubmarket:
		return agg.Submarket
	default:
		return nil
	}
}

// resolve returns the first safe value among the field's keys: a trimmed
// non-empty string for text fields, a finite number for numeric ones.
func (f field) resolve(attrs model.Attributes) (any, bool) {
	if attrs == nil {
		return nil, false
	}
	if f.kind == kindText {
		return attrs.FirstString(f.keys...)
	}
	for _, k := range f.keys {
		if v, ok := attrs.Float(k); ok {
			return v, true
		}
	}
	return nil, false
}

func asText(_ *message.Printer, v any) string {
	s, _ := v.(string)
	return s
}

func asCoordinate(p *message.Printer, v any) string {
	return p.Sprintf("%.6f", v)
}

func asArea(p *message.Printer, v any) string {
	return p.Sprintf("%.0f m²", v)
}

func asCount(p *message.Printer, v any) string {
	return p.Sprintf("%.0f", v)
}
